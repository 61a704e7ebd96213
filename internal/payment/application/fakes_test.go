package application

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOrder(id string) domain.Order {
	return domain.Order{
		OrderID: id,
		SKU:     "SKU-1",
		Units:   2,
		Price:   decimal.RequireFromString("19.99"),
		UserID:  "user-1",
	}
}

type fakeRepo struct {
	mu      sync.Mutex
	records map[string]domain.Record
	puts    int
	getErr  error
	putErr  error
	// beforePut runs under no lock before the precondition is evaluated.
	beforePut func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]domain.Record{}}
}

func (r *fakeRepo) Get(_ context.Context, orderID string) (domain.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return domain.Record{}, false, r.getErr
	}
	rec, ok := r.records[orderID]
	return rec, ok, nil
}

func (r *fakeRepo) ConditionalPut(_ context.Context, rec domain.Record, pre domain.Precondition) error {
	if r.beforePut != nil {
		r.beforePut()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.putErr != nil {
		return r.putErr
	}
	var current *domain.Record
	if stored, ok := r.records[rec.OrderID]; ok {
		current = &stored
	}
	if err := pre.Check(current); err != nil {
		return err
	}
	r.records[rec.OrderID] = rec
	r.puts++
	return nil
}

func (r *fakeRepo) record(orderID string) (domain.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[orderID]
	return rec, ok
}

func (r *fakeRepo) putCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.puts
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	chargeFn func(cmd domain.SubmitPaymentCommand) (ChargeResult, error)
}

func (g *fakeGateway) Charge(_ context.Context, cmd domain.SubmitPaymentCommand) (ChargeResult, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return g.chargeFn(cmd)
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func accepting(paymentID string) *fakeGateway {
	return &fakeGateway{chargeFn: func(domain.SubmitPaymentCommand) (ChargeResult, error) {
		return ChargeResult{PaymentID: paymentID, Status: domain.StatusAccepted}, nil
	}}
}

type fakeAnnouncements struct {
	mu     sync.Mutex
	events map[string]domain.PaymentEvent
	dups   int
	err    error
}

func newFakeAnnouncements() *fakeAnnouncements {
	return &fakeAnnouncements{events: map[string]domain.PaymentEvent{}}
}

func (a *fakeAnnouncements) InsertIfAbsent(_ context.Context, ev domain.PaymentEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if _, ok := a.events[ev.Key()]; ok {
		a.dups++
		return domain.ErrEventAlreadyPublished
	}
	a.events[ev.Key()] = ev
	return nil
}

func (a *fakeAnnouncements) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

type harness struct {
	repo          *fakeRepo
	gateway       *fakeGateway
	announcements *fakeAnnouncements
	reconciler    *Reconciler
}

func newHarness(gateway *fakeGateway) *harness {
	h := &harness{
		repo:          newFakeRepo(),
		gateway:       gateway,
		announcements: newFakeAnnouncements(),
	}
	h.reconciler = NewReconciler(discardLogger(), h.repo, h.gateway, h.announcements)
	return h
}
