package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	ledgerv1 "github.com/vladislavdragonenkov/orderledger/api/ledger/v1"
	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	"github.com/vladislavdragonenkov/orderledger/internal/service/ledger"
)

// Handler обслуживает ресурс заказов.
type Handler struct {
	ledger Ledger
	logger *log.Entry
}

// MountRoutes регистрирует маршруты относительно /api/v1/orders.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)

	r.Route("/{orderID}", func(r chi.Router) {
		r.Get("/", h.getOrder)
		r.Get("/timeline", h.getTimeline)
		r.Post("/payments", h.recordPayment)
		r.Put("/advance-payment", h.setAdvancePayment)
		r.Post("/credit-notes", h.issueCreditNote)
		r.Post("/credit-notes/{creditNoteID}/transition", h.transitionCreditNote)
		r.Patch("/delivery", h.updateDelivery)
		r.Patch("/status", h.updateStatus)
		r.Patch("/raw-material", h.updateRawMaterial)
	})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var cmd ledger.CreateOrderCommand
	if !h.decode(w, r, &cmd) {
		return
	}

	order, err := h.ledger.CreateOrder(r.Context(), cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSON(w, http.StatusCreated, ledgerv1.OrderResponse{Order: ledgerv1.OrderFromDomain(order)})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := ledger.ListOrdersQuery{CustomerID: r.URL.Query().Get("customer_id")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: limit must be an integer", errMalformedBody))
			return
		}
		q.Limit = limit
	}

	orders, err := h.ledger.ListOrders(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerv1.ListOrdersResponse{Orders: ledgerv1.OrdersFromDomain(orders)})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ledger.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerv1.OrderResponse{Order: ledgerv1.OrderFromDomain(order)})
}

func (h *Handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.ledger.Timeline(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerv1.GetTimelineResponse{Events: ledgerv1.TimelineFromDomain(events)})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var cmd ledger.RecordPaymentCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")

	order, err := h.ledger.RecordPayment(r.Context(), cmd)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) setAdvancePayment(w http.ResponseWriter, r *http.Request) {
	var cmd ledger.SetAdvancePaymentCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")

	order, err := h.ledger.SetAdvancePayment(r.Context(), cmd)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) issueCreditNote(w http.ResponseWriter, r *http.Request) {
	var cmd ledger.IssueCreditNoteCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")

	order, err := h.ledger.IssueCreditNote(r.Context(), cmd)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) transitionCreditNote(w http.ResponseWriter, r *http.Request) {
	var cmd ledger.TransitionCreditNoteCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")
	cmd.CreditNoteID = chi.URLParam(r, "creditNoteID")

	order, err := h.ledger.TransitionCreditNote(r.Context(), cmd)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) updateDelivery(w http.ResponseWriter, r *http.Request) {
	var cmd ledger.UpdateDeliveryCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")

	order, err := h.ledger.UpdateDelivery(r.Context(), cmd)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var cmd ledger.UpdateStatusCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")

	order, err := h.ledger.UpdateStatus(r.Context(), cmd)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) updateRawMaterial(w http.ResponseWriter, r *http.Request) {
	var cmd ledger.UpdateRawMaterialCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")

	order, err := h.ledger.UpdateRawMaterialConsumption(r.Context(), cmd)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, order domain.Order, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerv1.OrderResponse{Order: ledgerv1.OrderFromDomain(order)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", errMalformedBody, err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err)
	p.Type = "about:blank"

	entry := h.logger.WithError(err).WithFields(log.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"order_id": chi.URLParam(r, "orderID"),
	})
	if p.Status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	writeProblem(w, p)
}
