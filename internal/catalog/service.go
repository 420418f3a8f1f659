package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-grocery/internal/common"
)

// CreateProductInput is the validated POST body.
type CreateProductInput struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Price       int64  `json:"price" validate:"required,gt=0"`
	ImageURL    string `json:"imageUrl" validate:"omitempty,url"`
	Category    string `json:"category" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=2000"`
	Stock       int32  `json:"stock" validate:"gte=0"`
}

// Validator matches go-playground/validator's Struct method.
type Validator interface {
	Struct(s any) error
}

// Service reads and writes the product catalog with a Redis read-through
// cache in front of listings.
type Service struct {
	Store    Store
	Cache    *Cache
	Validate Validator
	Logger   zerolog.Logger
}

// List returns products for the given search and category. Cache failures
// fall through to the store.
func (s *Service) List(ctx context.Context, query, category string) ([]Product, error) {
	key := listCacheKey(query, category)
	var cached []Product
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err != nil {
		s.Logger.Warn().Err(err).Msg("catalog_cache_read_failed")
	} else if hit {
		return cached, nil
	}

	products, err := s.Store.List(ctx, ListFilter{Query: query, Category: category})
	if err != nil {
		return nil, err
	}
	if err := s.Cache.SetJSON(ctx, key, products); err != nil {
		s.Logger.Warn().Err(err).Msg("catalog_cache_write_failed")
	}
	return products, nil
}

// Get fetches a single product by id.
func (s *Service) Get(ctx context.Context, rawID string) (Product, error) {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return Product{}, ErrProductNotFound
	}
	return s.Store.GetByID(ctx, id)
}

// Create validates and stores a new product, then drops stale listings.
func (s *Service) Create(ctx context.Context, in CreateProductInput) (Product, error) {
	if s.Validate != nil {
		if err := s.Validate.Struct(in); err != nil {
			return Product{}, common.ValidationError(err.Error())
		}
	}
	p := Product{
		Name:        strings.TrimSpace(in.Name),
		Price:       in.Price,
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
		Stock:       in.Stock,
	}
	if err := s.Store.Insert(ctx, &p); err != nil {
		return Product{}, err
	}
	if err := s.Cache.Invalidate(ctx, "catalog:list:*"); err != nil {
		s.Logger.Warn().Err(err).Msg("catalog_cache_invalidate_failed")
	}
	return p, nil
}

func listCacheKey(query, category string) string {
	return fmt.Sprintf("catalog:list:%s:%s", strings.ToLower(strings.TrimSpace(query)), strings.ToLower(strings.TrimSpace(category)))
}
