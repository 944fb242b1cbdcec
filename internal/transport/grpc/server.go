package grpcx

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cwrk-planet/caption-relay/internal/domain"
	"github.com/cwrk-planet/caption-relay/internal/gate"
	"github.com/cwrk-planet/caption-relay/internal/relay"
)

const mdAuthorization = "authorization"

// Rooms is the part of relay.Manager the admin service reads from.
type Rooms interface {
	Status(ctx context.Context, code string) (domain.RoomStatus, error)
	Rooms() []string
}

type Server struct {
	rooms Rooms
	gate  *gate.Gate
}

var _ RoomAdminServer = (*Server)(nil)

func NewServer(rooms Rooms, g *gate.Gate) *Server {
	return &Server{rooms: rooms, gate: g}
}

// Register installs the admin and health services on grpcServer and returns
// the health server so the caller can flip it on shutdown.
func Register(grpcServer *grpc.Server, s *Server) *health.Server {
	grpcServer.RegisterService(&RoomAdminServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(AdminServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
	return hs
}

func (s *Server) GetRoomStatus(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	room, err := domain.NormalizeRoomCode(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid room code")
	}
	if err := s.authorize(ctx, room); err != nil {
		return nil, err
	}

	st, err := s.rooms.Status(ctx, room)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"roomId":           st.RoomID,
		"participantCount": st.ParticipantCount,
		"activeCount":      st.ActiveCount,
		"timedOutCount":    st.TimedOutCount,
		"declinedCount":    st.DeclinedCount,
		"pendingCount":     st.PendingCount,
		"connectedCount":   st.ConnectedCount,
		"isEmpty":          st.IsEmpty,
	})
}

func (s *Server) ListRooms(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.authorize(ctx, gate.AnyRoom); err != nil {
		return nil, err
	}
	rooms := s.rooms.Rooms()
	items := make([]any, 0, len(rooms))
	for _, r := range rooms {
		items = append(items, r)
	}
	return structpb.NewStruct(map[string]any{"items": items})
}

// -------- helpers --------

func (s *Server) authorize(ctx context.Context, room string) error {
	if s.gate == nil || s.gate.Open() {
		return nil
	}
	if err := s.gate.Check(room, tokenFromMD(ctx)); err != nil {
		if errors.Is(err, gate.ErrRoomMismatch) {
			return status.Error(codes.PermissionDenied, err.Error())
		}
		return status.Error(codes.Unauthenticated, err.Error())
	}
	return nil
}

// tokenFromMD reads "authorization: Bearer <token>".
func tokenFromMD(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	auth := first(md.Get(mdAuthorization))
	if len(auth) <= 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidRoomCode):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, relay.ErrManagerClosed), errors.Is(err, relay.ErrRoomClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
