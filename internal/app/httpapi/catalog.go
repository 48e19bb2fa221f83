package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	catalogsvc "github.com/patisserie-labs/storefront/internal/app/services/catalog"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/internal/httputil"
)

func (h *handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.app.Catalog.ListCategories(r.Context(), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// getCategory returns the category with the first page of its products.
func (h *handler) getCategory(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	category, err := h.app.Catalog.GetCategoryBySlug(r.Context(), slug, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := productQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q.CategorySlug = ""
	q.CategoryID = category.ID
	page, err := h.app.Catalog.ListProducts(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"category": category, "products": page})
}

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q, err := productQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.app.Catalog.ListProducts(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.app.Catalog.GetProduct(r.Context(), mux.Vars(r)["slug"], false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}

func (h *handler) listProductReviews(w http.ResponseWriter, r *http.Request) {
	product, err := h.app.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"], false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reviews, err := h.app.Reviews.ListApproved(r.Context(), product.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"reviews":      reviews,
		"rating":       product.Rating,
		"review_count": product.ReviewCount,
	})
}

func (h *handler) listBanners(w http.ResponseWriter, r *http.Request) {
	banners, err := h.app.Banners.Visible(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"banners": banners})
}

// productQuery parses the catalog listing filters.
func productQuery(r *http.Request) (catalogsvc.ProductQuery, error) {
	values := r.URL.Query()
	page, limit, err := pagination(r)
	if err != nil {
		return catalogsvc.ProductQuery{}, err
	}
	q := catalogsvc.ProductQuery{
		CategorySlug: strings.TrimSpace(values.Get("category")),
		CategoryID:   strings.TrimSpace(values.Get("category_id")),
		Search:       strings.TrimSpace(firstOf(values.Get("q"), values.Get("search"))),
		Sort:         strings.TrimSpace(values.Get("sort")),
		Page:         page,
		Limit:        limit,
	}
	if q.MinPrice, err = decimalParam(values.Get("min_price"), "min_price"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = decimalParam(values.Get("max_price"), "max_price"); err != nil {
		return q, err
	}
	if raw := values.Get("featured"); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			return q, svcerrors.Validation("featured", "featured must be true or false")
		}
		q.Featured = &featured
	}
	if raw := values.Get("in_stock"); raw != "" {
		inStock, err := strconv.ParseBool(raw)
		if err != nil {
			return q, svcerrors.Validation("in_stock", "in_stock must be true or false")
		}
		q.InStock = inStock
	}
	return q, nil
}

func decimalParam(raw, name string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, svcerrors.Validation(name, name+" must be a non-negative number")
	}
	return &d, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
