package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/runtime"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "goalrunner.v1.GoalService"

	// ExecuteMethod is the full method name of GoalService.Execute.
	ExecuteMethod = "/" + ServiceName + "/Execute"
)

// Runner executes one goal. *runtime.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, goal string) (*runtime.Result, error)
}

// GoalServiceServer is the server API for GoalService.
//
// Requests and responses are google.protobuf.Struct so the service needs no
// generated code: the request carries {"goal": string} and the response is
// the run result map.
type GoalServiceServer interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// GoalServiceDesc describes GoalService for grpc.Server.RegisterService.
var GoalServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GoalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler:    executeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "goalrunner/v1/goal_service",
}

// RegisterGoalServiceServer registers srv on s.
func RegisterGoalServiceServer(s grpc.ServiceRegistrar, srv GoalServiceServer) {
	s.RegisterService(&GoalServiceDesc, srv)
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GoalServiceServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ExecuteMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GoalServiceServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// =============================================================================
// CLIENT
// =============================================================================

// GoalServiceClient calls GoalService.
type GoalServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewGoalServiceClient creates a client on cc.
func NewGoalServiceClient(cc grpc.ClientConnInterface) *GoalServiceClient {
	return &GoalServiceClient{cc: cc}
}

// Execute runs goal remotely and returns the result map.
func (c *GoalServiceClient) Execute(ctx context.Context, goal string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"goal": goal})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ExecuteMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// SERVER
// =============================================================================

// GoalServer implements GoalServiceServer on top of a Runner factory.
// Agents carry per-run state, so every request gets a fresh Runner.
type GoalServer struct {
	logger    Logger
	newRunner func() Runner
}

// NewGoalServer creates a GoalServer.
func NewGoalServer(logger Logger, newRunner func() Runner) *GoalServer {
	return &GoalServer{logger: logger, newRunner: newRunner}
}

// Execute validates the goal, runs it and encodes the result.
func (s *GoalServer) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	goal, err := goalFromRequest(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	s.logger.Info("goal_execute_started", "goal_length", len(goal))

	result, err := s.newRunner().Run(ctx, goal)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, Internal("execute", err)
	}

	m, err := result.ToMap()
	if err != nil {
		return nil, Internal("encode result", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, Internal("encode result", err)
	}

	s.logger.Info("goal_execute_completed",
		"goal_satisfaction", result.Evaluation.GoalSatisfaction,
		"success", result.Evaluation.Success,
		"iterations", result.Iterations,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
