package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	products []Product
	inserted []*Product
	lastList ListFilter
	listErr  error
}

func (f *fakeStore) List(_ context.Context, filter ListFilter) ([]Product, error) {
	f.lastList = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.products, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

func (f *fakeStore) Insert(_ context.Context, p *Product) error {
	p.CreatedAt = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	f.inserted = append(f.inserted, p)
	f.products = append(f.products, *p)
	return nil
}

func newTestRouter(t *testing.T, store Store) (*chi.Mux, *fakeStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fs, _ := store.(*fakeStore)
	h := &Handler{Svc: &Service{
		Store:    store,
		Cache:    NewCache(rdb, time.Minute),
		Validate: validator.New(),
		Logger:   zerolog.Nop(),
	}}
	r := chi.NewRouter()
	r.Get("/products", h.List)
	r.Get("/products/{id}", h.Get)
	r.Post("/products", h.Create)
	return r, fs
}

func TestListProductsBareArray(t *testing.T) {
	store := &fakeStore{products: []Product{
		{ID: uuid.New(), Name: "Red Apple", Price: 40, Category: "Fruits", Stock: 50},
		{ID: uuid.New(), Name: "Milk 1L", Price: 50, Category: "Dairy", Stock: 200},
	}}
	router, _ := newTestRouter(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	trimmed := strings.TrimSpace(rec.Body.String())
	assert.True(t, strings.HasPrefix(trimmed, "["), "list must be a bare array, got %s", trimmed)

	var products []Product
	require.NoError(t, json.Unmarshal([]byte(trimmed), &products))
	require.Len(t, products, 2)
	assert.Equal(t, "Red Apple", products[0].Name)
}

func TestListProductsFilters(t *testing.T) {
	store := &fakeStore{}
	router, fs := newTestRouter(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products?q=apple&category=Fruits", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "apple", fs.lastList.Query)
	assert.Equal(t, "Fruits", fs.lastList.Category)
}

func TestListProductsServedFromCache(t *testing.T) {
	store := &fakeStore{products: []Product{{ID: uuid.New(), Name: "Spinach Pack", Price: 20}}}
	router, fs := newTestRouter(t, store)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusOK, first.Code)

	// Mutate the store; a cache hit must not observe it.
	fs.products = nil
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusOK, second.Code)

	var products []Product
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &products))
	assert.Len(t, products, 1)
}

func TestGetProduct(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{products: []Product{{ID: id, Name: "Paneer 200g", Price: 120}}}
	router, _ := newTestRouter(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var p Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Paneer 200g", p.Name)
}

func TestGetProductNotFound(t *testing.T) {
	router, _ := newTestRouter(t, &fakeStore{})

	for _, path := range []string{"/products/" + uuid.NewString(), "/products/not-a-uuid"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Product not found", body["error"])
	}
}

func TestCreateProduct(t *testing.T) {
	router, fs := newTestRouter(t, &fakeStore{})

	payload := `{"name":"Orange 1kg","price":60,"imageUrl":"https://img.example/orange.jpg","category":"Fruits","description":"Juicy sweet oranges","stock":60}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var p Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, "Orange 1kg", p.Name)
	require.Len(t, fs.inserted, 1)
}

func TestCreateProductValidation(t *testing.T) {
	router, fs := newTestRouter(t, &fakeStore{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(`{"price":-1}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Bad request", body["error"])
	assert.Empty(t, fs.inserted)
}
