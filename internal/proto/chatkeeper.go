// Package proto declares the chatkeeper.v1.ChatKeeper gRPC service. Every
// method is unary and carries google.protobuf.Struct in both directions, so
// the service needs no generated message types.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "chatkeeper.v1.ChatKeeper"

const (
	MethodCreateOrUpdateConversation  = "CreateOrUpdateConversation"
	MethodGetConversation             = "GetConversation"
	MethodGetConversationWithMessages = "GetConversationWithMessages"
	MethodListConversations           = "ListConversations"
	MethodDeleteConversation          = "DeleteConversation"
	MethodAppendMessage               = "AppendMessage"
	MethodDeleteMessage               = "DeleteMessage"
	MethodUpdateContext               = "UpdateContext"
	MethodStats                       = "Stats"
	MethodTriggerBackup               = "TriggerBackup"
	MethodBackupStatus                = "BackupStatus"
)

// FullMethod returns the wire name, e.g. /chatkeeper.v1.ChatKeeper/Stats.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type ChatKeeperServer interface {
	CreateOrUpdateConversation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetConversation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetConversationWithMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListConversations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteConversation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AppendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateContext(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TriggerBackup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BackupStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ChatKeeperServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatKeeperServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatKeeperServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ChatKeeper_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatKeeperServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc(MethodCreateOrUpdateConversation, ChatKeeperServer.CreateOrUpdateConversation),
		methodDesc(MethodGetConversation, ChatKeeperServer.GetConversation),
		methodDesc(MethodGetConversationWithMessages, ChatKeeperServer.GetConversationWithMessages),
		methodDesc(MethodListConversations, ChatKeeperServer.ListConversations),
		methodDesc(MethodDeleteConversation, ChatKeeperServer.DeleteConversation),
		methodDesc(MethodAppendMessage, ChatKeeperServer.AppendMessage),
		methodDesc(MethodDeleteMessage, ChatKeeperServer.DeleteMessage),
		methodDesc(MethodUpdateContext, ChatKeeperServer.UpdateContext),
		methodDesc(MethodStats, ChatKeeperServer.Stats),
		methodDesc(MethodTriggerBackup, ChatKeeperServer.TriggerBackup),
		methodDesc(MethodBackupStatus, ChatKeeperServer.BackupStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chatkeeper/v1/chatkeeper.proto",
}

func RegisterChatKeeperServer(s grpc.ServiceRegistrar, srv ChatKeeperServer) {
	s.RegisterService(&ChatKeeper_ServiceDesc, srv)
}

// ChatKeeperClient invokes any method by name.
type ChatKeeperClient interface {
	Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type chatKeeperClient struct {
	cc grpc.ClientConnInterface
}

func NewChatKeeperClient(cc grpc.ClientConnInterface) ChatKeeperClient {
	return &chatKeeperClient{cc: cc}
}

func (c *chatKeeperClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
