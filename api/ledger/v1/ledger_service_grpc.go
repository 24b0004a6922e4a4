package ledgerv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName содержит полное имя gRPC сервиса.
const ServiceName = "ledger.v1.LedgerService"

const (
	LedgerService_CreateOrder_FullMethodName          = "/ledger.v1.LedgerService/CreateOrder"
	LedgerService_GetOrder_FullMethodName             = "/ledger.v1.LedgerService/GetOrder"
	LedgerService_ListOrders_FullMethodName           = "/ledger.v1.LedgerService/ListOrders"
	LedgerService_RecordPayment_FullMethodName        = "/ledger.v1.LedgerService/RecordPayment"
	LedgerService_SetAdvancePayment_FullMethodName    = "/ledger.v1.LedgerService/SetAdvancePayment"
	LedgerService_IssueCreditNote_FullMethodName      = "/ledger.v1.LedgerService/IssueCreditNote"
	LedgerService_TransitionCreditNote_FullMethodName = "/ledger.v1.LedgerService/TransitionCreditNote"
	LedgerService_UpdateDelivery_FullMethodName       = "/ledger.v1.LedgerService/UpdateDelivery"
	LedgerService_UpdateStatus_FullMethodName         = "/ledger.v1.LedgerService/UpdateStatus"
	LedgerService_UpdateRawMaterial_FullMethodName    = "/ledger.v1.LedgerService/UpdateRawMaterial"
	LedgerService_RefreshOrder_FullMethodName         = "/ledger.v1.LedgerService/RefreshOrder"
	LedgerService_GetTimeline_FullMethodName          = "/ledger.v1.LedgerService/GetTimeline"
)

// LedgerServiceClient вызывает методы ledger.v1.LedgerService.
type LedgerServiceClient interface {
	CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error)
	ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error)
	RecordPayment(ctx context.Context, in *RecordPaymentRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	SetAdvancePayment(ctx context.Context, in *SetAdvancePaymentRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	IssueCreditNote(ctx context.Context, in *IssueCreditNoteRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	TransitionCreditNote(ctx context.Context, in *TransitionCreditNoteRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	UpdateDelivery(ctx context.Context, in *UpdateDeliveryRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	UpdateRawMaterial(ctx context.Context, in *UpdateRawMaterialRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	RefreshOrder(ctx context.Context, in *RefreshOrderRequest, opts ...grpc.CallOption) (*RefreshOrderResponse, error)
	GetTimeline(ctx context.Context, in *GetTimelineRequest, opts ...grpc.CallOption) (*GetTimelineResponse, error)
}

type ledgerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerServiceClient создаёт клиента поверх соединения; все вызовы идут через JSON-кодек.
func NewLedgerServiceClient(cc grpc.ClientConnInterface) LedgerServiceClient {
	return &ledgerServiceClient{cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{CallOption()}, opts...)
}

func (c *ledgerServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, LedgerService_CreateOrder_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	out := new(GetOrderResponse)
	if err := c.cc.Invoke(ctx, LedgerService_GetOrder_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	if err := c.cc.Invoke(ctx, LedgerService_ListOrders_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) RecordPayment(ctx context.Context, in *RecordPaymentRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, LedgerService_RecordPayment_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) SetAdvancePayment(ctx context.Context, in *SetAdvancePaymentRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, LedgerService_SetAdvancePayment_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) IssueCreditNote(ctx context.Context, in *IssueCreditNoteRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, LedgerService_IssueCreditNote_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) TransitionCreditNote(ctx context.Context, in *TransitionCreditNoteRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, LedgerService_TransitionCreditNote_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) UpdateDelivery(ctx context.Context, in *UpdateDeliveryRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, LedgerService_UpdateDelivery_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, LedgerService_UpdateStatus_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) UpdateRawMaterial(ctx context.Context, in *UpdateRawMaterialRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, LedgerService_UpdateRawMaterial_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) RefreshOrder(ctx context.Context, in *RefreshOrderRequest, opts ...grpc.CallOption) (*RefreshOrderResponse, error) {
	out := new(RefreshOrderResponse)
	if err := c.cc.Invoke(ctx, LedgerService_RefreshOrder_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) GetTimeline(ctx context.Context, in *GetTimelineRequest, opts ...grpc.CallOption) (*GetTimelineResponse, error) {
	out := new(GetTimelineResponse)
	if err := c.cc.Invoke(ctx, LedgerService_GetTimeline_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// LedgerServiceServer реализует ledger.v1.LedgerService.
type LedgerServiceServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*OrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	RecordPayment(context.Context, *RecordPaymentRequest) (*OrderResponse, error)
	SetAdvancePayment(context.Context, *SetAdvancePaymentRequest) (*OrderResponse, error)
	IssueCreditNote(context.Context, *IssueCreditNoteRequest) (*OrderResponse, error)
	TransitionCreditNote(context.Context, *TransitionCreditNoteRequest) (*OrderResponse, error)
	UpdateDelivery(context.Context, *UpdateDeliveryRequest) (*OrderResponse, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*OrderResponse, error)
	UpdateRawMaterial(context.Context, *UpdateRawMaterialRequest) (*OrderResponse, error)
	RefreshOrder(context.Context, *RefreshOrderRequest) (*RefreshOrderResponse, error)
	GetTimeline(context.Context, *GetTimelineRequest) (*GetTimelineResponse, error)
	mustEmbedUnimplementedLedgerServiceServer()
}

// UnimplementedLedgerServiceServer отвечает Unimplemented на все методы.
type UnimplementedLedgerServiceServer struct{}

func (UnimplementedLedgerServiceServer) CreateOrder(context.Context, *CreateOrderRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateOrder not implemented")
}
func (UnimplementedLedgerServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}
func (UnimplementedLedgerServiceServer) ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOrders not implemented")
}
func (UnimplementedLedgerServiceServer) RecordPayment(context.Context, *RecordPaymentRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RecordPayment not implemented")
}
func (UnimplementedLedgerServiceServer) SetAdvancePayment(context.Context, *SetAdvancePaymentRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetAdvancePayment not implemented")
}
func (UnimplementedLedgerServiceServer) IssueCreditNote(context.Context, *IssueCreditNoteRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method IssueCreditNote not implemented")
}
func (UnimplementedLedgerServiceServer) TransitionCreditNote(context.Context, *TransitionCreditNoteRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method TransitionCreditNote not implemented")
}
func (UnimplementedLedgerServiceServer) UpdateDelivery(context.Context, *UpdateDeliveryRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateDelivery not implemented")
}
func (UnimplementedLedgerServiceServer) UpdateStatus(context.Context, *UpdateStatusRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateStatus not implemented")
}
func (UnimplementedLedgerServiceServer) UpdateRawMaterial(context.Context, *UpdateRawMaterialRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateRawMaterial not implemented")
}
func (UnimplementedLedgerServiceServer) RefreshOrder(context.Context, *RefreshOrderRequest) (*RefreshOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RefreshOrder not implemented")
}
func (UnimplementedLedgerServiceServer) GetTimeline(context.Context, *GetTimelineRequest) (*GetTimelineResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetTimeline not implemented")
}
func (UnimplementedLedgerServiceServer) mustEmbedUnimplementedLedgerServiceServer() {}

// RegisterLedgerServiceServer регистрирует реализацию на gRPC сервере.
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerService_ServiceDesc, srv)
}

func _LedgerService_CreateOrder_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).CreateOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_CreateOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).CreateOrder(ctx, req.(*CreateOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_GetOrder_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).GetOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_GetOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).GetOrder(ctx, req.(*GetOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_ListOrders_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListOrdersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).ListOrders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_ListOrders_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).ListOrders(ctx, req.(*ListOrdersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_RecordPayment_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RecordPaymentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).RecordPayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_RecordPayment_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).RecordPayment(ctx, req.(*RecordPaymentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_SetAdvancePayment_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SetAdvancePaymentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).SetAdvancePayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_SetAdvancePayment_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).SetAdvancePayment(ctx, req.(*SetAdvancePaymentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_IssueCreditNote_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(IssueCreditNoteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).IssueCreditNote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_IssueCreditNote_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).IssueCreditNote(ctx, req.(*IssueCreditNoteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_TransitionCreditNote_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(TransitionCreditNoteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).TransitionCreditNote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_TransitionCreditNote_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).TransitionCreditNote(ctx, req.(*TransitionCreditNoteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_UpdateDelivery_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UpdateDeliveryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).UpdateDelivery(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_UpdateDelivery_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).UpdateDelivery(ctx, req.(*UpdateDeliveryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_UpdateStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UpdateStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).UpdateStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_UpdateStatus_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).UpdateStatus(ctx, req.(*UpdateStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_UpdateRawMaterial_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UpdateRawMaterialRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).UpdateRawMaterial(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_UpdateRawMaterial_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).UpdateRawMaterial(ctx, req.(*UpdateRawMaterialRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_RefreshOrder_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RefreshOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).RefreshOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_RefreshOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).RefreshOrder(ctx, req.(*RefreshOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_GetTimeline_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetTimelineRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).GetTimeline(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_GetTimeline_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).GetTimeline(ctx, req.(*GetTimelineRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// LedgerService_ServiceDesc описывает ledger.v1.LedgerService для grpc.ServiceRegistrar.
var LedgerService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateOrder",
			Handler:    _LedgerService_CreateOrder_Handler,
		},
		{
			MethodName: "GetOrder",
			Handler:    _LedgerService_GetOrder_Handler,
		},
		{
			MethodName: "ListOrders",
			Handler:    _LedgerService_ListOrders_Handler,
		},
		{
			MethodName: "RecordPayment",
			Handler:    _LedgerService_RecordPayment_Handler,
		},
		{
			MethodName: "SetAdvancePayment",
			Handler:    _LedgerService_SetAdvancePayment_Handler,
		},
		{
			MethodName: "IssueCreditNote",
			Handler:    _LedgerService_IssueCreditNote_Handler,
		},
		{
			MethodName: "TransitionCreditNote",
			Handler:    _LedgerService_TransitionCreditNote_Handler,
		},
		{
			MethodName: "UpdateDelivery",
			Handler:    _LedgerService_UpdateDelivery_Handler,
		},
		{
			MethodName: "UpdateStatus",
			Handler:    _LedgerService_UpdateStatus_Handler,
		},
		{
			MethodName: "UpdateRawMaterial",
			Handler:    _LedgerService_UpdateRawMaterial_Handler,
		},
		{
			MethodName: "RefreshOrder",
			Handler:    _LedgerService_RefreshOrder_Handler,
		},
		{
			MethodName: "GetTimeline",
			Handler:    _LedgerService_GetTimeline_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/ledger_service.json",
}
