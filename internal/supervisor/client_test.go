package supervisor

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"wsagent/internal/ports"
	"wsagent/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// fakeSupervisor serves the supervisor API from memory.
type fakeSupervisor struct {
	mu         sync.Mutex
	snapshots  []*PortsStatusResponse
	notifs     []*SubscribeResponse
	responses  []*RespondRequest
	exposed    []*ExposePortRequest
	tokenReqs  []*GetTokenRequest
	respondErr error
	// hold keeps streams open after the queued messages until the client
	// goes away.
	hold bool
}

type anyService interface{}

func unaryHandler[Req any, PReq interface {
	*Req
	message
}](fn func(ctx context.Context, req PReq) (message, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		req := PReq(new(Req))
		if err := dec(req); err != nil {
			return nil, err
		}
		return fn(ctx, req)
	}
}

func (f *fakeSupervisor) register(s *grpc.Server) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "supervisor.StatusService",
		HandlerType: (*anyService)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "PortsStatus",
			ServerStreams: true,
			Handler: func(_ any, ss grpc.ServerStream) error {
				req := &PortsStatusRequest{}
				if err := ss.RecvMsg(req); err != nil {
					return err
				}
				if !req.Observe {
					return status.Error(codes.InvalidArgument, "observe expected")
				}
				f.mu.Lock()
				msgs := append([]*PortsStatusResponse(nil), f.snapshots...)
				f.mu.Unlock()
				for _, m := range msgs {
					if err := ss.SendMsg(m); err != nil {
						return err
					}
				}
				return f.finish(ss)
			},
		}},
	}, f)

	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "supervisor.NotificationService",
		HandlerType: (*anyService)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "Subscribe",
			ServerStreams: true,
			Handler: func(_ any, ss grpc.ServerStream) error {
				if err := ss.RecvMsg(&SubscribeRequest{}); err != nil {
					return err
				}
				f.mu.Lock()
				msgs := append([]*SubscribeResponse(nil), f.notifs...)
				f.mu.Unlock()
				for _, m := range msgs {
					if err := ss.SendMsg(m); err != nil {
						return err
					}
				}
				return f.finish(ss)
			},
		}},
		Methods: []grpc.MethodDesc{{
			MethodName: "Respond",
			Handler: unaryHandler(func(ctx context.Context, req *RespondRequest) (message, error) {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.responses = append(f.responses, req)
				if f.respondErr != nil {
					return nil, f.respondErr
				}
				return &Empty{}, nil
			}),
		}},
	}, f)

	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "supervisor.ControlService",
		HandlerType: (*anyService)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "ExposePort",
			Handler: unaryHandler(func(ctx context.Context, req *ExposePortRequest) (message, error) {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.exposed = append(f.exposed, req)
				return &Empty{}, nil
			}),
		}},
	}, f)

	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "supervisor.InfoService",
		HandlerType: (*anyService)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "WorkspaceInfo",
			Handler: unaryHandler(func(ctx context.Context, req *Empty) (message, error) {
				return &WorkspaceInfoResponse{
					WorkspaceID:         "amber-wolf-1234",
					InstanceID:          "inst-1",
					CheckoutLocation:    "project",
					GitpodAPI:           &GitpodAPI{Endpoint: "wss://gitpod.example.com/api/v1", Host: "gitpod.example.com"},
					GitpodHost:          "https://gitpod.example.com",
					WorkspaceContextURL: "https://github.com/acme/project",
				}, nil
			}),
		}},
	}, f)

	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "supervisor.TokenService",
		HandlerType: (*anyService)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "GetToken",
			Handler: unaryHandler(func(ctx context.Context, req *GetTokenRequest) (message, error) {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.tokenReqs = append(f.tokenReqs, req)
				return &GetTokenResponse{Token: "secret-token", Scope: req.Scope}, nil
			}),
		}},
	}, f)
}

func (f *fakeSupervisor) finish(ss grpc.ServerStream) error {
	if f.hold {
		<-ss.Context().Done()
		return ss.Context().Err()
	}
	return nil
}

// startFake runs f over an in-memory listener and returns a client for it.
func startFake(t *testing.T, f *fakeSupervisor, register ...func(*grpc.Server)) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ForceServerCodec(Codec{}))
	if len(register) == 0 {
		f.register(srv)
	}
	for _, r := range register {
		r(srv)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := Dial("passthrough:///bufnet", "wsagent-test",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn, Deadlines{})
}

func TestClient_WorkspaceInfo(t *testing.T) {
	c := startFake(t, &fakeSupervisor{})

	info, err := c.WorkspaceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, WorkspaceInfo{
		WorkspaceID:      "amber-wolf-1234",
		InstanceID:       "inst-1",
		CheckoutLocation: "project",
		GitpodHost:       "https://gitpod.example.com",
		APIEndpoint:      "wss://gitpod.example.com/api/v1",
		APIHost:          "gitpod.example.com",
		ContextURL:       "https://github.com/acme/project",
	}, info)
}

func TestClient_PortsStatusStream(t *testing.T) {
	f := &fakeSupervisor{snapshots: []*PortsStatusResponse{
		{Ports: []*PortsStatus{{LocalPort: 8080, Served: true}}},
		{Ports: []*PortsStatus{{
			LocalPort:  8080,
			GlobalPort: 38080,
			Served:     true,
			Exposed:    &ExposedPortInfo{URL: "https://8080-ws.example.com", Visibility: 0, OnExposed: 3},
		}}},
	}}
	c := startFake(t, f)

	s, err := c.PortsStatus(context.Background(), true)
	require.NoError(t, err)
	defer s.Cancel()

	first, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, []ports.Status{{LocalPort: 8080, Served: true}}, first.Statuses())

	second, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, []ports.Status{{
		LocalPort:  8080,
		GlobalPort: 38080,
		Served:     true,
		Exposed: &ports.Exposure{
			GlobalPort: 38080,
			URL:        "https://8080-ws.example.com",
			Visibility: ports.VisibilityPrivate,
			OnExposed:  ports.ActionNotify,
		},
	}}, second.Statuses())

	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestClient_CancelEndsRecv(t *testing.T) {
	c := startFake(t, &fakeSupervisor{hold: true})

	s, err := c.PortsStatus(context.Background(), true)
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Recv()
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	s.Cancel()
	s.Cancel()

	select {
	case err := <-errs:
		assert.Equal(t, stream.ConditionCancelled, stream.Classify(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not return after Cancel")
	}
}

func TestClient_UnimplementedStream(t *testing.T) {
	// a supervisor without any services
	c := startFake(t, &fakeSupervisor{}, func(*grpc.Server) {})

	s, err := c.SubscribeNotifications(context.Background())
	if err == nil {
		_, err = s.Recv()
	}
	require.Error(t, err)
	assert.Equal(t, stream.ConditionUnimplemented, stream.Classify(err))
}

func TestClient_NotificationsRoundTrip(t *testing.T) {
	f := &fakeSupervisor{notifs: []*SubscribeResponse{
		{RequestID: 1},
		{RequestID: 42, Request: &NotifyRequest{Level: 1, Message: "Port 3000 is slow", Actions: []string{"Restart", "Ignore"}}},
	}}
	c := startFake(t, f)

	s, err := c.SubscribeNotifications(context.Background())
	require.NoError(t, err)
	defer s.Cancel()

	empty, err := s.Recv()
	require.NoError(t, err)
	_, ok := empty.Notification()
	assert.False(t, ok, "a message without a request carries nothing to present")

	msg, err := s.Recv()
	require.NoError(t, err)
	req, ok := msg.Notification()
	require.True(t, ok)
	assert.Equal(t, uint64(42), req.ID)
	assert.Equal(t, "request/42", req.Key)
	assert.Equal(t, "warning", req.Level.String())
	assert.Equal(t, []string{"Restart", "Ignore"}, req.Actions)

	require.NoError(t, c.Respond(context.Background(), req, "Restart"))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.responses, 1)
	assert.Equal(t, uint64(42), f.responses[0].RequestID)
	assert.Equal(t, "Restart", f.responses[0].Response.Action)
}

func TestClient_RespondError(t *testing.T) {
	f := &fakeSupervisor{respondErr: status.Error(codes.DeadlineExceeded, "too slow")}
	c := startFake(t, f)

	err := c.RespondNotification(context.Background(), 1, "")
	assert.True(t, stream.IsDeadlineExceeded(err))
}

func TestClient_ExposePortAndToken(t *testing.T) {
	f := &fakeSupervisor{}
	c := startFake(t, f)

	require.NoError(t, c.ExposePort(context.Background(), 3000, 3000))
	token, err := c.GetToken(context.Background(), "gitpod", "gitpod.example.com", []string{"function:openPort"})
	require.NoError(t, err)
	assert.Equal(t, "secret-token", token)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []*ExposePortRequest{{Port: 3000, TargetPort: 3000}}, f.exposed)
	require.Len(t, f.tokenReqs, 1)
	assert.Equal(t, "gitpod", f.tokenReqs[0].Kind)
	assert.Equal(t, []string{"function:openPort"}, f.tokenReqs[0].Scope)
}

func TestDial_Insecure(t *testing.T) {
	conn, err := Dial("localhost:22999", "wsagent/test")
	require.NoError(t, err)
	assert.NoError(t, conn.Close())
}
