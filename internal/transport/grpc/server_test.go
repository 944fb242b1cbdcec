package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cwrk-planet/caption-relay/internal/domain"
	"github.com/cwrk-planet/caption-relay/internal/gate"
	"github.com/cwrk-planet/caption-relay/internal/relay"
	"github.com/cwrk-planet/caption-relay/internal/storage"
)

func startServer(t *testing.T, g *gate.Gate, rooms Rooms) *grpc.ClientConn {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(log, 0)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(log)),
	)
	Register(srv, NewServer(rooms, g))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

func newManager(t *testing.T) *relay.Manager {
	t.Helper()
	m := relay.NewManager(storage.NewMemory(), relay.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(m.Close)
	return m
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestGetRoomStatus(t *testing.T) {
	g, err := gate.New(gate.Config{Secret: "s3cret"})
	require.NoError(t, err)
	client := NewRoomAdminClient(startServer(t, g, newManager(t)))

	st, err := client.GetRoomStatus(withToken("s3cret"), wrapperspb.String("talk47"))

	require.NoError(t, err)
	fields := st.GetFields()
	assert.Equal(t, "TALK47", fields["roomId"].GetStringValue())
	assert.Equal(t, float64(0), fields["participantCount"].GetNumberValue())
	assert.True(t, fields["isEmpty"].GetBoolValue())
}

func TestGetRoomStatus_Errors(t *testing.T) {
	g, err := gate.New(gate.Config{Secret: "s3cret"})
	require.NoError(t, err)
	client := NewRoomAdminClient(startServer(t, g, newManager(t)))

	_, err = client.GetRoomStatus(withToken("s3cret"), wrapperspb.String("no.dots"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetRoomStatus(context.Background(), wrapperspb.String("TALK47"))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.GetRoomStatus(withToken("wrong"), wrapperspb.String("TALK47"))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGetRoomStatus_ManagerClosed(t *testing.T) {
	m := newManager(t)
	client := NewRoomAdminClient(startServer(t, nil, m))
	m.Close()

	_, err := client.GetRoomStatus(context.Background(), wrapperspb.String("TALK47"))

	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestListRooms(t *testing.T) {
	g, err := gate.New(gate.Config{})
	require.NoError(t, err)
	m := newManager(t)
	_, err = m.Get(context.Background(), "ROOM2")
	require.NoError(t, err)
	_, err = m.Get(context.Background(), "ROOM1")
	require.NoError(t, err)
	client := NewRoomAdminClient(startServer(t, g, m))

	out, err := client.ListRooms(context.Background(), &emptypb.Empty{})

	require.NoError(t, err)
	items := out.GetFields()["items"].GetListValue().AsSlice()
	assert.Equal(t, []any{"ROOM1", "ROOM2"}, items)
}

func TestHealth(t *testing.T) {
	cc := startServer(t, nil, newManager(t))

	resp, err := healthpb.NewHealthClient(cc).Check(context.Background(), &healthpb.HealthCheckRequest{Service: AdminServiceName})

	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

type panickyRooms struct{}

func (panickyRooms) Status(context.Context, string) (domain.RoomStatus, error) { panic("boom") }

func (panickyRooms) Rooms() []string { return nil }

func TestUnaryInterceptor_RecoversPanics(t *testing.T) {
	client := NewRoomAdminClient(startServer(t, nil, panickyRooms{}))

	_, err := client.GetRoomStatus(context.Background(), wrapperspb.String("TALK47"))

	assert.Equal(t, codes.Internal, status.Code(err))
}
