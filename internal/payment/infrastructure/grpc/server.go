package grpc

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

// OutcomeMemory keeps the first settled outcome per order.
type OutcomeMemory interface {
	Key(parts ...string) string
	Remember(ctx context.Context, key, value string) (stored string, fresh bool, err error)
}

// Simulator is a payment gateway for local runs. It rejects charges above
// limit, fails at random with the given rate, and answers repeated charges of
// a settled order with AlreadyExists.
type Simulator struct {
	log         *slog.Logger
	memory      OutcomeMemory
	limit       decimal.Decimal
	failureRate float64
	random      func() float64
}

func NewSimulator(log *slog.Logger, memory OutcomeMemory, limit, failureRate float64) *Simulator {
	return &Simulator{
		log:         log,
		memory:      memory,
		limit:       decimal.NewFromFloat(limit),
		failureRate: failureRate,
		random:      rand.Float64,
	}
}

func (s *Simulator) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	if req.OrderID == "" || req.UserID == "" || req.Units <= 0 {
		return nil, status.Error(codes.InvalidArgument, "orderId, userId and positive units are required")
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return nil, status.Errorf(codes.InvalidArgument, "invalid price %q", req.Price)
	}

	outcome := domain.StatusAccepted
	if price.Mul(decimal.NewFromInt(int64(req.Units))).GreaterThan(s.limit) {
		outcome = domain.StatusRejected
	} else if s.random() < s.failureRate {
		s.log.Info("simulated gateway failure", "order_id", req.OrderID)
		return nil, status.Error(codes.Unavailable, "gateway temporarily unavailable")
	}

	paymentID := uuid.NewString()
	stored, fresh, err := s.memory.Remember(ctx, s.memory.Key("gateway", req.OrderID), string(outcome)+"|"+paymentID)
	if err != nil {
		s.log.Error("gateway memory unavailable", "order_id", req.OrderID, "err", err)
		return nil, status.Error(codes.Unavailable, "gateway memory unavailable")
	}
	if !fresh {
		prev, prevID, _ := strings.Cut(stored, "|")
		s.log.Info("repeated charge for settled order", "order_id", req.OrderID, "payment_status", prev, "payment_id", prevID)
		return nil, status.Error(codes.AlreadyExists, stored)
	}

	s.log.Info("charge settled", "order_id", req.OrderID, "payment_id", paymentID, "payment_status", outcome)
	return &ChargeResponse{PaymentID: paymentID, Status: string(outcome)}, nil
}

// Run serves the simulator on addr until the returned server is stopped.
func Run(addr string, srv GatewayServer) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	RegisterGatewayServer(gs, srv)
	go func() {
		_ = gs.Serve(lis)
	}()
	return gs, nil
}
