package events

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/alarm-notifier/internal/domain/alarm"
	"github.com/oshokin/alarm-notifier/internal/logger"
)

// ErrUnknownAlarm is returned by a Publisher for alarms it does not watch.
var ErrUnknownAlarm = errors.New("unknown alarm")

// Publisher abstracts the business operation the transport layer depends on.
type Publisher interface {
	Publish(ctx context.Context, alarmID string, fields domain.Fields) error
}

// Server implements the AlarmEventService gRPC API.
type Server struct {
	// publisher handles decoded events.
	publisher Publisher
	// now provides the default event time.
	now func() time.Time
}

// NewServer wires the provided publisher into a gRPC handler.
func NewServer(publisher Publisher) *Server {
	return &Server{
		publisher: publisher,
		now:       time.Now,
	}
}

// PublishEvent decodes an alarm event and hands it to the publisher.
func (s *Server) PublishEvent(ctx context.Context, request *structpb.Struct) (*emptypb.Empty, error) {
	if request == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	alarmID, fields, err := DecodeEvent(request, s.now)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err = s.publisher.Publish(ctx, alarmID, fields); err != nil {
		if errors.Is(err, ErrUnknownAlarm) {
			return nil, status.Errorf(codes.NotFound, "alarm %s is not watched", alarmID)
		}

		logger.ErrorKV(ctx, "Failed to publish alarm event", "alarm_id", alarmID, "error", err)

		return nil, status.Error(codes.Internal, "unable to publish event")
	}

	return new(emptypb.Empty), nil
}
