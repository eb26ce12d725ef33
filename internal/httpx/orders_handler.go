package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/digikrishi/krishi-market/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type OrdersHandler struct {
	Service    *orders.Service
	Reconciler *orders.Reconciler
	Auth       *Auth
	Limiter    *IPRateLimiter
	Log        zerolog.Logger

	// Where the buyer's browser lands after the payment callback.
	SuccessRedirect string
	FailureRedirect string
}

type createOrderReq struct {
	ProductID    string              `json:"productId"`
	DeliveryType orders.DeliveryType `json:"deliveryType"`
}

type updateOrderReq struct {
	Status orders.Status `json:"status"`
}

type statusResp struct {
	OrderID string        `json:"orderId"`
	Status  orders.Status `json:"orderStatus"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/order", func(r chi.Router) {
		r.With(h.Limiter.Middleware).Get("/esewa/callback", h.esewaCallback)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Middleware)
			r.Post("/", h.createOrder)
			r.Get("/", h.listMine)
			r.Get("/{id}", h.listForProduct)
			r.Put("/{id}", h.updateStatus)
			r.Get("/{id}/status", h.getStatus)
		})
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	buyer, err := userID(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	co, err := h.Service.CreateOrder(ctx, buyer, req.ProductID, req.DeliveryType)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, co)
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	buyer, err := userID(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Service.ListMine(ctx, buyer)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) listForProduct(w http.ResponseWriter, r *http.Request) {
	seller, err := userID(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Service.ListForProduct(ctx, seller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	seller, err := userID(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.UpdateStatus(ctx, seller, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	s, err := h.Service.GetStatus(ctx, uid, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResp{OrderID: id, Status: s})
}

// esewaCallback is hit by the buyer's browser on return from eSewa. It never
// reports errors to the caller, only which page to go to next.
func (h *OrdersHandler) esewaCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := h.Reconciler.HandleCallback(ctx, r.URL.Query().Get("data")); err != nil {
		h.Log.Warn().Err(err).Str("request_id", requestID(r)).Msg("payment callback rejected")
		http.Redirect(w, r, h.FailureRedirect, http.StatusFound)
		return
	}
	http.Redirect(w, r, h.SuccessRedirect, http.StatusFound)
}
