package httpapi

import (
	"net/http"

	"github.com/patisserie-labs/storefront/internal/app/services/accounts"
	"github.com/patisserie-labs/storefront/internal/auth"
	"github.com/patisserie-labs/storefront/internal/httputil"
)

func (h *handler) requestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.app.Accounts.RequestOTP(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.app.Accounts.VerifyOTP(r.Context(), req.Email, req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeSession(w, session)
}

func (h *handler) oauth(w http.ResponseWriter, r *http.Request) {
	var req oauthRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.app.Accounts.LoginOAuth(r.Context(), req.AccessToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeSession(w, session)
}

func (h *handler) writeSession(w http.ResponseWriter, session accounts.Session) {
	auth.SetCookie(w, session.Token, session.ExpiresAt, h.cookieSecure)
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w, h.cookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Accounts.Profile(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !h.decode(w, r, &req) {
		return
	}
	upd := accounts.ProfileUpdate{Name: req.Name, Phone: req.Phone}
	if req.DefaultAddress != nil {
		addr := req.DefaultAddress.toAddress()
		upd.DefaultAddress = &addr
	}
	u, err := h.app.Accounts.UpdateProfile(r.Context(), userID(r), upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}
