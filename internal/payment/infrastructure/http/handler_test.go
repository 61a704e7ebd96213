package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/application"
	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

type stubLookup struct {
	records map[string]domain.Record
	err     error
}

func (s stubLookup) Get(_ context.Context, cmd domain.GetPaymentCommand) (*domain.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[cmd.OrderID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

type stubBatch struct {
	items []application.Item
	retry []string
}

func (b *stubBatch) Process(_ context.Context, items []application.Item) []string {
	b.items = items
	return b.retry
}

func newServer(t *testing.T, lookup PaymentLookup, batch BatchProcessor) *httptest.Server {
	t.Helper()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), lookup, batch)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestGetPayment(t *testing.T) {
	t.Parallel()

	lookup := stubLookup{records: map[string]domain.Record{
		"o-1": {
			Order:     domain.Order{OrderID: "o-1", SKU: "SKU-1", Units: 2, Price: decimal.RequireFromString("9.99"), UserID: "u-1"},
			PaymentID: "pay-1",
			Status:    domain.StatusAccepted,
		},
	}}
	srv := newServer(t, lookup, &stubBatch{})

	resp, err := http.Get(srv.URL + "/payments/o-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "o-1", got["orderId"])
	assert.Equal(t, "pay-1", got["paymentId"])
	assert.Equal(t, "ACCEPTED", got["paymentStatus"])

	missing, err := http.Get(srv.URL + "/payments/o-2")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestGetPaymentStoreDown(t *testing.T) {
	t.Parallel()

	srv := newServer(t, stubLookup{err: fmt.Errorf("read: %w", domain.ErrStoreUnavailable)}, &stubBatch{})

	resp, err := http.Get(srv.URL + "/payments/o-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestProcessNotificationsReportsFailures(t *testing.T) {
	t.Parallel()

	batch := &stubBatch{retry: []string{"m-2"}}
	srv := newServer(t, stubLookup{}, batch)

	body := `{"records":[
		{"messageId":"m-1","body":"{\"orderId\":\"o-1\"}","attributes":{"traceparent":"00-abc-def-01"}},
		{"messageId":"m-2","body":"{\"orderId\":\"o-2\"}"}
	]}`
	resp, err := http.Post(srv.URL+"/notifications", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got batchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, []itemFailure{{ItemIdentifier: "m-2"}}, got.BatchItemFailures)

	require.Len(t, batch.items, 2)
	assert.Equal(t, "m-1", batch.items[0].ID)
	assert.JSONEq(t, `{"orderId":"o-1"}`, string(batch.items[0].Body))
	assert.Equal(t, "00-abc-def-01", batch.items[0].Metadata["traceparent"])
}

func TestProcessNotificationsEmptyFailureList(t *testing.T) {
	t.Parallel()

	srv := newServer(t, stubLookup{}, &stubBatch{retry: []string{}})

	resp, err := http.Post(srv.URL+"/notifications", "application/json", strings.NewReader(`{"records":[]}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"batchItemFailures":[]}`, string(raw))
}

func TestProcessNotificationsRejectsBadBody(t *testing.T) {
	t.Parallel()

	srv := newServer(t, stubLookup{}, &stubBatch{})

	resp, err := http.Post(srv.URL+"/notifications", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newServer(t, stubLookup{}, &stubBatch{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
