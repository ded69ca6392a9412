package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecombase/checkout/internal/cache"
	"github.com/ecombase/checkout/internal/catalog"
	"github.com/ecombase/checkout/internal/checkout"
	"github.com/ecombase/checkout/internal/orders"
	"github.com/ecombase/checkout/internal/payments"
	"github.com/ecombase/checkout/internal/redisx"
)

type SubmitOrderReq struct {
	UserID         string                `json:"user_id"`
	PaymentMethod  string                `json:"payment_method"`
	ShippingMethod string                `json:"shipping_method"`
	CouponCode     string                `json:"coupon_code,omitempty"`
	Address        orders.AddressDetails `json:"address"`
	Items          []orders.ItemQty      `json:"items"`
}

type SubmitOrderResp struct {
	OrderID    int64  `json:"order_id"`
	Number     string `json:"number"`
	Total      string `json:"total"`
	Currency   string `json:"currency"`
	PaymentID  string `json:"payment_id"`
	SessionURL string `json:"session_url,omitempty"`
}

type WebhookReq struct {
	Event         string `json:"event"` // succeeded | failed | canceled
	PaymentID     string `json:"payment_id"`
	ProviderTxnID string `json:"provider_txn_id,omitempty"`
}

type CheckoutHandler struct {
	Orchestrator *checkout.Orchestrator
	Payments     *payments.Service
	Orders       *orders.Repo
	DB           *pgxpool.Pool
	Cache        cache.Cache
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.submitOrder)
	r.Get("/orders/{number}", h.getOrder)
	r.Post("/webhooks/payment", h.paymentWebhook)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, code int, msgs ...string) {
	writeJSON(w, code, map[string]any{"errors": msgs})
}

func (h *CheckoutHandler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Orchestrator.SubmitOrder(ctx, checkout.CartSubmission{
		UserID:         req.UserID,
		PaymentMethod:  req.PaymentMethod,
		ShippingMethod: req.ShippingMethod,
		CouponCode:     req.CouponCode,
		Address:        req.Address,
		Items:          req.Items,
	})
	if err != nil {
		status := http.StatusUnprocessableEntity
		var verr *orders.ValidationError
		switch {
		case errors.As(err, &verr):
			writeErrors(w, status, verr.Messages...)
			return
		case errors.Is(err, checkout.ErrUnexpected):
			status = http.StatusInternalServerError
		}
		writeErrors(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, SubmitOrderResp{
		OrderID:    res.Order.ID,
		Number:     res.Order.Number,
		Total:      res.Order.Total.StringFixed(2),
		Currency:   res.Order.Currency,
		PaymentID:  res.PaymentID,
		SessionURL: res.SessionURL,
	})
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if number == "" {
		writeErrors(w, http.StatusBadRequest, "missing order number")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if b, err := h.Cache.Get(ctx, redisx.PrefixOrderDetail, number); err == nil && b != nil {
		writeJSON(w, http.StatusOK, json.RawMessage(b))
		return
	}

	o, err := h.Orders.GetByNumber(ctx, h.DB, number)
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, "unexpected error")
		return
	}
	if o == nil {
		writeErrors(w, http.StatusNotFound, "order does not exist")
		return
	}
	body := map[string]any{
		"number":   o.Number,
		"status":   o.Status,
		"is_paid":  o.IsPaid,
		"subtotal": o.Subtotal.StringFixed(2),
		"shipping": o.Shipping.StringFixed(2),
		"discount": o.Discount.StringFixed(2),
		"total":    o.Total.StringFixed(2),
		"currency": o.Currency,
	}
	b, _ := json.Marshal(body)
	_ = h.Cache.Set(ctx, redisx.PrefixOrderDetail, number, b, redisx.TTLOrderDetail)
	writeJSON(w, http.StatusOK, json.RawMessage(b))
}

func (h *CheckoutHandler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid json")
		return
	}
	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	switch req.Event {
	case "succeeded":
		err = h.Payments.Confirm(ctx, paymentID, req.ProviderTxnID)
	case "failed":
		err = h.Payments.Fail(ctx, paymentID, req.ProviderTxnID)
	case "canceled":
		err = h.Payments.Cancel(ctx, paymentID)
	default:
		writeErrors(w, http.StatusBadRequest, fmt.Sprintf("unknown event %q", req.Event))
		return
	}
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			writeErrors(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, orders.ErrAlreadyPaid) || errors.Is(err, catalog.ErrInsufficientStock) {
			writeErrors(w, http.StatusConflict, err.Error())
			return
		}
		writeErrors(w, http.StatusInternalServerError, "unexpected error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
