package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-grocery/internal/common"
)

// Handler exposes the product endpoints. The list returns a bare JSON array
// and errors are flat objects, matching what the storefront client expects.
type Handler struct {
	Svc *Service
}

// List handles GET /products with optional q and category filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.Svc.List(r.Context(), r.URL.Query().Get("q"), r.URL.Query().Get("category"))
	if err != nil {
		common.FlatError(w, http.StatusInternalServerError, "Server error", "")
		return
	}
	common.JSON(w, http.StatusOK, products)
}

// Get handles GET /products/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			common.FlatError(w, http.StatusNotFound, "Product not found", "")
			return
		}
		common.FlatError(w, http.StatusInternalServerError, "Server error", "")
		return
	}
	common.JSON(w, http.StatusOK, product)
}

// Create handles POST /products.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.FlatError(w, http.StatusBadRequest, "Bad request", err.Error())
		return
	}
	product, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) && appErr.Code == common.CodeValidation {
			common.FlatError(w, http.StatusBadRequest, "Bad request", appErr.Message)
			return
		}
		common.FlatError(w, http.StatusInternalServerError, "Server error", "")
		return
	}
	common.JSON(w, http.StatusCreated, product)
}
