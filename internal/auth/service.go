package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-grocery/internal/common"
)

const defaultAccessTTL = 24 * time.Hour

// User is the safe subset of the user model returned to clients.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session bundles the token and user returned by signup and login.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Config configures the auth service.
type Config struct {
	Store          Store
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
}

// Service handles signup, login and access token verification.
type Service struct {
	store     Store
	secret    []byte
	accessTTL time.Duration
	issuer    string
	audience  string
	signer    jwa.SignatureAlgorithm
	now       func() time.Time
}

// NewService constructs a Service with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-grocery"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "grocery-app"
	}
	return &Service{
		store:     cfg.Store,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		issuer:    issuer,
		audience:  audience,
		signer:    jwa.HS256,
		now:       time.Now,
	}, nil
}

// Signup creates an account and logs it in. A duplicate email is a client
// error, mirroring what the storefront shows inline on the form.
func (s *Service) Signup(ctx context.Context, name, email, password string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, common.ValidationError("name is required")
	}
	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	if normalizedEmail == "" || !strings.Contains(normalizedEmail, "@") {
		return Session{}, common.ValidationError("a valid email is required")
	}
	if len(password) < 8 {
		return Session{}, common.ValidationError("password must be at least 8 characters")
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	record := &UserRecord{Name: name, Email: normalizedEmail, PasswordHash: hash}
	if err := s.store.CreateUser(ctx, record); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Session{}, common.ValidationError("email is already registered")
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}
	return s.sessionFor(record)
}

// Login verifies credentials and issues a token. Invalid email and invalid
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	if normalizedEmail == "" || password == "" {
		return Session{}, invalidCredentials()
	}
	record, err := s.store.GetUserByEmail(ctx, normalizedEmail)
	if err != nil {
		return Session{}, invalidCredentials()
	}
	ok, err := argon2id.ComparePasswordAndHash(password, record.PasswordHash)
	if err != nil || !ok {
		return Session{}, invalidCredentials()
	}
	return s.sessionFor(&record)
}

// ParseAccessToken verifies the token and returns the subject user id.
func (s *Service) ParseAccessToken(raw string) (string, error) {
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(s.signer, s.secret),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithValidate(true),
	)
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid or expired token", http.StatusUnauthorized, err)
	}
	sub := token.Subject()
	if sub == "" {
		return "", common.NewAppError("UNAUTHORIZED", "token missing subject", http.StatusUnauthorized, nil)
	}
	return sub, nil
}

func (s *Service) sessionFor(record *UserRecord) (Session, error) {
	token, err := s.signAccessToken(record.ID.String())
	if err != nil {
		return Session{}, fmt.Errorf("sign access token: %w", err)
	}
	return Session{
		Token: token,
		User: User{
			ID:        record.ID.String(),
			Name:      record.Name,
			Email:     record.Email,
			CreatedAt: record.CreatedAt,
		},
	}, nil
}

func (s *Service) signAccessToken(userID string) (string, error) {
	now := s.now()
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		Expiration(now.Add(s.accessTTL)).
		Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func invalidCredentials() *common.AppError {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
}
