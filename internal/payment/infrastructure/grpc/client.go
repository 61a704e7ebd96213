package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/application"
	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

type GatewayClient struct {
	log     *slog.Logger
	conn    *grpc.ClientConn
	timeout time.Duration
}

func NewGatewayClient(log *slog.Logger, addr string, timeout time.Duration, opts ...grpc.DialOption) (*GatewayClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &GatewayClient{log: log, conn: conn, timeout: timeout}, nil
}

func (c *GatewayClient) Close() error {
	return c.conn.Close()
}

// Charge asks the gateway to charge the order. AlreadyExists replies carrying
// "STATUS|paymentId" map to a *domain.TerminalError holding the settled
// outcome; other RPC failures are returned as is and treated as transient by
// the caller.
func (c *GatewayClient) Charge(ctx context.Context, cmd domain.SubmitPaymentCommand) (application.ChargeResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := &ChargeRequest{
		OrderID: cmd.OrderID,
		SKU:     cmd.SKU,
		Units:   cmd.Units,
		Price:   cmd.Price.String(),
		UserID:  cmd.UserID,
	}
	resp := new(ChargeResponse)
	if err := c.conn.Invoke(ctx, chargeMethod, req, resp); err != nil {
		st := status.Convert(err)
		if st.Code() == codes.AlreadyExists {
			settled, paymentID, _ := strings.Cut(st.Message(), "|")
			if s := domain.Status(settled); s.Terminal() {
				return application.ChargeResult{}, domain.AlreadyTerminal(domain.Record{
					Order:     cmd.Order,
					PaymentID: paymentID,
					Status:    s,
				})
			}
		}
		c.log.Warn("gateway charge failed", "order_id", cmd.OrderID, "code", st.Code().String(), "err", err)
		return application.ChargeResult{}, fmt.Errorf("gateway charge %s: %w", cmd.OrderID, err)
	}
	return application.ChargeResult{PaymentID: resp.PaymentID, Status: domain.Status(resp.Status)}, nil
}
