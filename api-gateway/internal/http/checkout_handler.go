package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/partshop/api-gateway/internal/checkout"
	"github.com/fjod/partshop/api-gateway/internal/session"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/fjod/partshop/pkg/pricing"
	"github.com/sirupsen/logrus"
)

type CheckoutHandler struct {
	store    CartStore
	sessions *session.Registry
	timeout  time.Duration
	log      *logrus.Entry
}

func NewCheckoutHandler(store CartStore, sessions *session.Registry, timeout time.Duration, log *logrus.Entry) *CheckoutHandler {
	return &CheckoutHandler{
		store:    store,
		sessions: sessions,
		timeout:  timeout,
		log:      log,
	}
}

type CheckoutResponse struct {
	checkout.View
	CartTotals pricing.Totals `json:"cart_totals"`
	CartItems  int            `json:"cart_items"`
}

type SameAsBillingRequestDTO struct {
	Enabled *bool `json:"enabled"`
}

func (h *CheckoutHandler) respond(w http.ResponseWriter, status int, ws *session.Workspace) {
	ws.Lock()
	resp := CheckoutResponse{
		View:       ws.Flow.View(),
		CartTotals: ws.Cart.Totals(),
		CartItems:  ws.Cart.TotalItems(),
	}
	ws.Unlock()
	respondJSON(w, status, resp)
}

func (h *CheckoutHandler) workspace(w http.ResponseWriter, r *http.Request) (*session.Workspace, bool) {
	s, ok := currentSession(w, r)
	if !ok {
		return nil, false
	}
	return h.sessions.Workspace(s), true
}

// GET /api/v1/checkout
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, ws)
}

// PUT /api/v1/checkout/form
// Body is an object of field id to value; same_as_billing may be a bool.
func (h *CheckoutHandler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	values := make(map[string]string, len(raw))
	for id, v := range raw {
		switch val := v.(type) {
		case string:
			values[id] = val
		case bool:
			values[id] = strconv.FormatBool(val)
		case nil:
			values[id] = ""
		default:
			respondJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   fmt.Sprintf("%s must be a string", id),
				Code:    "invalid_request",
				Details: id,
			})
			return
		}
	}

	if err := ws.Flow.SetFields(values); err != nil {
		handleError(w, logger.WithContext(r.Context(), h.log), err)
		return
	}
	h.respond(w, http.StatusOK, ws)
}

// PUT /api/v1/checkout/same-as-billing
func (h *CheckoutHandler) SetSameAsBilling(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var req SameAsBillingRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"enabled\": true|false}")
		return
	}
	if err := ws.Flow.SetSameAsBilling(*req.Enabled); err != nil {
		handleError(w, logger.WithContext(r.Context(), h.log), err)
		return
	}
	h.respond(w, http.StatusOK, ws)
}

// POST /api/v1/checkout/next
func (h *CheckoutHandler) Next(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Flow.Next(); err != nil {
		handleError(w, logger.WithContext(r.Context(), h.log), err)
		return
	}
	h.respond(w, http.StatusOK, ws)
}

// POST /api/v1/checkout/back
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Flow.Back(); err != nil {
		handleError(w, logger.WithContext(r.Context(), h.log), err)
		return
	}
	h.respond(w, http.StatusOK, ws)
}

// POST /api/v1/checkout/place-order
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	ws := h.sessions.Workspace(s)
	log := logger.WithContext(r.Context(), h.log)

	// Price what the cart store holds, not what this instance last saw.
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	ws.Lock()
	items, err := h.store.GetCart(ctx, s.Owner())
	if err == nil {
		ws.Cart.Replace(items)
	}
	snapshot := ws.Cart.Clone()
	ws.Unlock()
	cancel()
	if err != nil {
		handleError(w, log, err)
		return
	}

	// The flow bounds the submission itself and rejects re-entry.
	if _, err := ws.Flow.PlaceOrder(r.Context(), snapshot); err != nil {
		handleError(w, log, err)
		return
	}

	ws.Lock()
	ws.Cart.Clear()
	ws.Unlock()

	h.respond(w, http.StatusCreated, ws)
}

// POST /api/v1/checkout/reset
func (h *CheckoutHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Flow.Reset(); err != nil {
		handleError(w, logger.WithContext(r.Context(), h.log), err)
		return
	}
	h.respond(w, http.StatusOK, ws)
}
