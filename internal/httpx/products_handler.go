package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/digikrishi/krishi-market/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type ProductsHandler struct {
	Service *orders.Service
	Auth    *Auth
	Log     zerolog.Logger
}

type createProductReq struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	Price                decimal.Decimal `json:"price"`
	Quantity             int             `json:"quantity"`
	AvailableForDelivery bool            `json:"availableForDelivery"`
}

type stockReq struct {
	Quantity *int `json:"quantity"`
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Route("/product", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Middleware)
			r.With(RequireRole(orders.RoleFarmer, orders.RoleAdmin)).Post("/", h.create)
			r.Put("/{id}/stock", h.setStock)
		})
	})
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Service.ListProducts(ctx)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Service.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
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

	p, err := h.Service.CreateProduct(ctx, seller, orders.Product{
		Name:                 req.Name,
		Description:          req.Description,
		Price:                req.Price,
		Quantity:             req.Quantity,
		AvailableForDelivery: req.AvailableForDelivery,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) setStock(w http.ResponseWriter, r *http.Request) {
	var req stockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		writeMessage(w, http.StatusBadRequest, "quantity is required")
		return
	}
	seller, err := userID(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Service.Restock(ctx, seller, chi.URLParam(r, "id"), *req.Quantity); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
