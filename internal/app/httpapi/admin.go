package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	catalogsvc "github.com/patisserie-labs/storefront/internal/app/services/catalog"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/internal/httputil"
	"github.com/patisserie-labs/storefront/internal/media"
)

const (
	defaultReportWindow = 30 * 24 * time.Hour
	defaultTopProducts  = 10
	// multipart overhead allowed on top of the image limit
	uploadSlack = 1 << 20
)

func (h *handler) registerAdmin(r *mux.Router) {
	r.HandleFunc("/categories", h.adminListCategories).Methods(http.MethodGet)
	r.HandleFunc("/categories", h.adminCreateCategory).Methods(http.MethodPost)
	r.HandleFunc("/categories/{id}", h.adminGetCategory).Methods(http.MethodGet)
	r.HandleFunc("/categories/{id}", h.adminUpdateCategory).Methods(http.MethodPut)
	r.HandleFunc("/categories/{id}", h.adminDeleteCategory).Methods(http.MethodDelete)

	r.HandleFunc("/products", h.adminListProducts).Methods(http.MethodGet)
	r.HandleFunc("/products", h.adminCreateProduct).Methods(http.MethodPost)
	r.HandleFunc("/products/{id}", h.adminGetProduct).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", h.adminUpdateProduct).Methods(http.MethodPut)
	r.HandleFunc("/products/{id}", h.adminDeleteProduct).Methods(http.MethodDelete)

	r.HandleFunc("/banners", h.adminListBanners).Methods(http.MethodGet)
	r.HandleFunc("/banners", h.adminCreateBanner).Methods(http.MethodPost)
	r.HandleFunc("/banners/{id}", h.adminUpdateBanner).Methods(http.MethodPut)
	r.HandleFunc("/banners/{id}", h.adminDeleteBanner).Methods(http.MethodDelete)

	r.HandleFunc("/coupons", h.adminListCoupons).Methods(http.MethodGet)
	r.HandleFunc("/coupons", h.adminCreateCoupon).Methods(http.MethodPost)
	r.HandleFunc("/coupons/{id}", h.adminGetCoupon).Methods(http.MethodGet)
	r.HandleFunc("/coupons/{id}", h.adminUpdateCoupon).Methods(http.MethodPut)
	r.HandleFunc("/coupons/{id}", h.adminDeleteCoupon).Methods(http.MethodDelete)

	r.HandleFunc("/reviews", h.adminListReviews).Methods(http.MethodGet)
	r.HandleFunc("/reviews/{id}", h.adminModerateReview).Methods(http.MethodPatch)
	r.HandleFunc("/reviews/{id}", h.adminDeleteReview).Methods(http.MethodDelete)

	r.HandleFunc("/orders", h.adminListOrders).Methods(http.MethodGet)
	r.Handle("/orders/live", http.HandlerFunc(h.app.Events.ServeWS)).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}", h.adminGetOrder).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}/status", h.adminUpdateOrderStatus).Methods(http.MethodPatch)

	r.HandleFunc("/users", h.adminListUsers).Methods(http.MethodGet)

	r.HandleFunc("/settings/tax", h.adminGetTax).Methods(http.MethodGet)
	r.HandleFunc("/settings/tax", h.adminUpdateTax).Methods(http.MethodPut)
	r.HandleFunc("/settings/delivery", h.adminGetDelivery).Methods(http.MethodGet)
	r.HandleFunc("/settings/delivery", h.adminUpdateDelivery).Methods(http.MethodPut)

	r.HandleFunc("/uploads", h.adminUpload).Methods(http.MethodPost)
	r.HandleFunc("/reports/sales", h.adminSalesReport).Methods(http.MethodGet)
	r.HandleFunc("/audit", h.adminAudit).Methods(http.MethodGet)
}

// Categories -----------------------------------------------------------------

func (h *handler) adminListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.app.Catalog.ListCategories(r.Context(), true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *handler) adminGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Catalog.GetCategory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) adminCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.app.Catalog.CreateCategory(r.Context(), req.toCategory())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *handler) adminUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.app.Catalog.UpdateCategory(r.Context(), mux.Vars(r)["id"], req.toCategory())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) adminDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Catalog.DeleteCategory(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Products -------------------------------------------------------------------

func (h *handler) adminListProducts(w http.ResponseWriter, r *http.Request) {
	q, err := productQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q.IncludeInactive = true
	page, err := h.app.Catalog.ListProducts(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *handler) adminGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"], true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *handler) adminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.app.Catalog.CreateProduct(r.Context(), req.toProduct())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *handler) adminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.app.Catalog.UpdateProduct(r.Context(), mux.Vars(r)["id"], req.toProduct())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *handler) adminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Catalog.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Banners --------------------------------------------------------------------

func (h *handler) adminListBanners(w http.ResponseWriter, r *http.Request) {
	banners, err := h.app.Banners.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"banners": banners})
}

func (h *handler) adminCreateBanner(w http.ResponseWriter, r *http.Request) {
	var req bannerRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.app.Banners.Create(r.Context(), req.toBanner())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, b)
}

func (h *handler) adminUpdateBanner(w http.ResponseWriter, r *http.Request) {
	var req bannerRequest
	if !h.decode(w, r, &req) {
		return
	}
	b := req.toBanner()
	b.ID = mux.Vars(r)["id"]
	updated, err := h.app.Banners.Update(r.Context(), b)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) adminDeleteBanner(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Banners.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Coupons --------------------------------------------------------------------

func (h *handler) adminListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.app.Coupons.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"coupons": coupons})
}

func (h *handler) adminGetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Coupons.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) adminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.app.Coupons.Create(r.Context(), req.toCoupon())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *handler) adminUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.app.Coupons.Update(r.Context(), mux.Vars(r)["id"], req.toCoupon())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) adminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Coupons.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reviews --------------------------------------------------------------------

func (h *handler) adminListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.app.Reviews.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

func (h *handler) adminModerateReview(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	if !h.decode(w, r, &req) {
		return
	}
	rv, err := h.app.Reviews.Moderate(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rv)
}

func (h *handler) adminDeleteReview(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Reviews.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Orders ---------------------------------------------------------------------

func (h *handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagination(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.app.Orders.List(r.Context(), "", order.Status(r.URL.Query().Get("status")), page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// adminGetOrder returns the order with its gateway payments.
func (h *handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, err := h.app.Orders.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payments, err := h.app.Orders.Payments(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"order": o, "payments": payments})
}

func (h *handler) adminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.app.Orders.UpdateStatus(r.Context(), mux.Vars(r)["id"], order.Status(req.Status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

// Users ----------------------------------------------------------------------

func (h *handler) adminListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagination(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	users, err := h.app.Accounts.ListUsers(r.Context(), page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"users": users, "page": page})
}

// Settings -------------------------------------------------------------------

func (h *handler) adminGetTax(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Pricing.TaxSettings(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s)
}

func (h *handler) adminUpdateTax(w http.ResponseWriter, r *http.Request) {
	var req taxRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.app.Pricing.UpdateTaxSettings(r.Context(), req.GSTPercent)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s)
}

func (h *handler) adminGetDelivery(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Pricing.DeliverySettings(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s)
}

func (h *handler) adminUpdateDelivery(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.app.Pricing.UpdateDeliverySettings(r.Context(), req.toSettings())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s)
}

// Uploads --------------------------------------------------------------------

// adminUpload accepts a multipart "file" part and stores it on the CDN under
// the optional "folder" (products, banners, categories).
func (h *handler) adminUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadBytes+uploadSlack)
	if err := r.ParseMultipartForm(media.MaxUploadBytes + uploadSlack); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, string(svcerrors.CodeBadRequest), "image exceeds 5 MiB", nil)
			return
		}
		h.fail(w, r, svcerrors.BadRequest("expected multipart form data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, svcerrors.Validation("file", "file is required"))
		return
	}
	defer file.Close()

	folder := strings.Trim(strings.TrimSpace(r.FormValue("folder")), "/")
	switch folder {
	case "", "products", "banners", "categories":
	default:
		h.fail(w, r, svcerrors.Validation("folder", "folder must be one of products, banners, categories"))
		return
	}

	upload, err := h.app.Media.Upload(r.Context(), file, header.Filename, header.Header.Get("Content-Type"), folder, catalogsvc.Slugify(r.FormValue("public_id")))
	switch {
	case err == nil:
	case errors.Is(err, media.ErrTooLarge):
		httputil.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, string(svcerrors.CodeBadRequest), "image exceeds 5 MiB", nil)
		return
	case errors.Is(err, media.ErrUnsupportedType):
		h.fail(w, r, svcerrors.Validation("file", "file must be a jpeg, png or webp image"))
		return
	case errors.Is(err, media.ErrUploadNotConfigured):
		httputil.WriteErrorResponse(w, http.StatusServiceUnavailable, string(svcerrors.CodeUpstream), "image uploads are not configured", nil)
		return
	default:
		h.fail(w, r, svcerrors.Upstream("image cdn", err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, upload)
}

// Reports --------------------------------------------------------------------

func (h *handler) adminSalesReport(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-defaultReportWindow)
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.fail(w, r, svcerrors.Validation("since", "since must be an RFC3339 timestamp"))
			return
		}
		since = t
	}
	top, err := intParam(r.URL.Query().Get("top"), "top", defaultTopProducts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if top > 100 {
		top = 100
	}
	summary, err := h.app.Reports.SalesSummary(r.Context(), since, top)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *handler) adminAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), "limit", 100)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": h.audit.listLimit(limit)})
}
