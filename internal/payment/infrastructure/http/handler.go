package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/application"
	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

type PaymentLookup interface {
	Get(ctx context.Context, cmd domain.GetPaymentCommand) (*domain.Record, error)
}

type BatchProcessor interface {
	Process(ctx context.Context, items []application.Item) []string
}

type Handler struct {
	log    *slog.Logger
	lookup PaymentLookup
	batch  BatchProcessor
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, lookup PaymentLookup, batch BatchProcessor) *Handler {
	return &Handler{
		log:    log,
		lookup: lookup,
		batch:  batch,
		tracer: otel.Tracer("payment-http"),
	}
}

type notificationRecord struct {
	MessageID  string            `json:"messageId"`
	Body       string            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type notificationBatch struct {
	Records []notificationRecord `json:"records"`
}

type itemFailure struct {
	ItemIdentifier string `json:"itemIdentifier"`
}

type batchResponse struct {
	BatchItemFailures []itemFailure `json:"batchItemFailures"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.healthz)
	r.Get("/payments/{orderId}", h.getPayment)
	r.Post("/notifications", h.processNotifications)
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "GetPayment")
	defer span.End()

	orderID := chi.URLParam(r, "orderId")
	span.SetAttributes(attribute.String("order_id", orderID))

	cmd, err := domain.NewGetPaymentCommand(orderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := h.lookup.Get(ctx, cmd)
	if err != nil {
		h.log.Error("payment lookup failed", "order_id", orderID, "err", err)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	if rec == nil {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) processNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "ProcessNotifications")
	defer span.End()

	var req notificationBatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int("batch_size", len(req.Records)))

	items := make([]application.Item, len(req.Records))
	for i, rec := range req.Records {
		items[i] = application.Item{ID: rec.MessageID, Body: []byte(rec.Body), Metadata: rec.Attributes}
	}

	resp := batchResponse{BatchItemFailures: []itemFailure{}}
	for _, id := range h.batch.Process(ctx, items) {
		resp.BatchItemFailures = append(resp.BatchItemFailures, itemFailure{ItemIdentifier: id})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
