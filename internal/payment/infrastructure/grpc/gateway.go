package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// The gateway contract is small enough to describe by hand; messages travel
// as JSON through a dedicated codec instead of generated protobuf types.

const (
	gatewayServiceName = "payments.gateway.v1.Gateway"
	chargeMethod       = "/" + gatewayServiceName + "/Charge"
)

type ChargeRequest struct {
	OrderID string `json:"orderId"`
	SKU     string `json:"sku"`
	Units   int    `json:"units"`
	Price   string `json:"price"`
	UserID  string `json:"userId"`
}

type ChargeResponse struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

type GatewayServer interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error)
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

func chargeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ChargeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).Charge(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: chargeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GatewayServer).Charge(ctx, req.(*ChargeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: gatewayServiceName,
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Charge", Handler: chargeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payments/gateway/v1/gateway.proto",
}

func RegisterGatewayServer(s grpc.ServiceRegistrar, srv GatewayServer) {
	s.RegisterService(&gatewayServiceDesc, srv)
}
