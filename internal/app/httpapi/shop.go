package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/services/checkout"
	"github.com/patisserie-labs/storefront/internal/app/services/pricing"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/internal/httputil"
)

// maxWebhookBody bounds gateway webhook payloads.
const maxWebhookBody = 1 << 20

// Cart -----------------------------------------------------------------------

func (h *handler) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.app.Carts.Get(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.app.Carts.Add(r.Context(), userID(r), req.ProductID, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// setCartItem sets an absolute quantity; repeating it leaves the cart unchanged.
func (h *handler) setCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.app.Carts.SetQuantity(r.Context(), userID(r), mux.Vars(r)["productID"], req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.app.Carts.Remove(r.Context(), userID(r), mux.Vars(r)["productID"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Carts.Clear(r.Context(), userID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Favorites ------------------------------------------------------------------

func (h *handler) listFavorites(w http.ResponseWriter, r *http.Request) {
	products, err := h.app.Favorites.List(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *handler) addFavorite(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Favorites.Add(r.Context(), userID(r), mux.Vars(r)["productID"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) removeFavorite(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Favorites.Remove(r.Context(), userID(r), mux.Vars(r)["productID"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Pricing --------------------------------------------------------------------

// validateCoupon previews a coupon against the caller's cart.
func (h *handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.app.Carts.Get(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.app.Coupons.Validate(r.Context(), req.Code, userID(r), view.Quote.Subtotal)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"code":        result.Coupon.Code,
		"description": result.Coupon.Description,
		"type":        result.Coupon.Type,
		"discount":    result.Discount,
		"subtotal":    view.Quote.Subtotal,
	})
}

func (h *handler) quoteDelivery(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	var dest *pricing.Destination
	if req.Destination != nil {
		dest = &pricing.Destination{Zone: req.Destination.Zone, DistanceKm: req.Destination.DistanceKm}
	}
	quote, err := h.app.Checkout.Preview(r.Context(), userID(r), req.CouponCode, dest)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, quote)
}

// Checkout -------------------------------------------------------------------

func (h *handler) startCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	started, err := h.app.Checkout.Start(r.Context(), userID(r), checkout.StartRequest{
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress.toAddress(),
		Notes:           req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, started)
}

func (h *handler) getCheckout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.app.Checkout.Get(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess)
}

func (h *handler) verifyCheckout(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.app.Checkout.Verify(r.Context(), userID(r), mux.Vars(r)["id"], checkout.VerifyRequest{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadAllStrict(r.Body, maxWebhookBody)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			httputil.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, string(svcerrors.CodeBadRequest), "webhook body too large", nil)
			return
		}
		h.fail(w, r, svcerrors.BadRequest("unreadable webhook body"))
		return
	}
	if err := h.app.Checkout.HandleWebhook(r.Context(), body, r.Header.Get("X-Razorpay-Signature")); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Orders ---------------------------------------------------------------------

func (h *handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagination(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.app.Orders.List(r.Context(), userID(r), order.Status(r.URL.Query().Get("status")), page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *handler) getMyOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.app.Orders.GetForUser(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *handler) cancelMyOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.app.Orders.Cancel(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

// Reviews --------------------------------------------------------------------

func (h *handler) submitReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.app.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"], false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rv, err := h.app.Reviews.Submit(r.Context(), userID(r), product.ID, req.Rating, req.Comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rv)
}
