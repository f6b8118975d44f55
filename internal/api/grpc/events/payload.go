package events

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/alarm-notifier/internal/domain/alarm"
)

// Payload keys of a PublishEvent request.
const (
	KeyAlarmID        = "alarm_id"
	KeyActiveState    = "active_state"
	KeyTime           = "time"
	KeyAckedState     = "acked_state"
	KeyConfirmedState = "confirmed_state"
)

var (
	// errAlarmIDRequired is returned when the payload has no alarm id.
	errAlarmIDRequired = errors.New(KeyAlarmID + " must be a non-empty string")
	// errActiveStateRequired is returned when the payload has no boolean active state.
	errActiveStateRequired = errors.New(KeyActiveState + " must be a boolean")
	// errInvalidLabel is returned when a state label is not a scalar.
	errInvalidLabel = errors.New("state label must be a string, boolean or number")
)

// EncodeEvent builds a PublishEvent payload.
func EncodeEvent(alarmID string, fields domain.Fields) *structpb.Struct {
	values := map[string]*structpb.Value{
		KeyAlarmID:        structpb.NewStringValue(alarmID),
		KeyActiveState:    structpb.NewBoolValue(fields.ActiveState),
		KeyAckedState:     structpb.NewStringValue(fields.AckedState),
		KeyConfirmedState: structpb.NewStringValue(fields.ConfirmedState),
	}

	if !fields.Time.IsZero() {
		values[KeyTime] = structpb.NewStringValue(fields.Time.Format(time.RFC3339Nano))
	}

	return &structpb.Struct{Fields: values}
}

// DecodeEvent extracts the alarm id and fields from a PublishEvent payload.
// A missing time defaults to now.
func DecodeEvent(payload *structpb.Struct, now func() time.Time) (string, domain.Fields, error) {
	values := payload.GetFields()

	alarmID := strings.TrimSpace(values[KeyAlarmID].GetStringValue())
	if alarmID == "" {
		return "", domain.Fields{}, errAlarmIDRequired
	}

	active, ok := values[KeyActiveState].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return "", domain.Fields{}, errActiveStateRequired
	}

	fields := domain.Fields{
		ActiveState: active.BoolValue,
		Time:        now(),
	}

	if raw := values[KeyTime].GetStringValue(); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return "", domain.Fields{}, fmt.Errorf("invalid %s: %w", KeyTime, err)
		}

		fields.Time = ts
	}

	var err error

	if fields.AckedState, err = label(values[KeyAckedState]); err != nil {
		return "", domain.Fields{}, fmt.Errorf("invalid %s: %w", KeyAckedState, err)
	}

	if fields.ConfirmedState, err = label(values[KeyConfirmedState]); err != nil {
		return "", domain.Fields{}, fmt.Errorf("invalid %s: %w", KeyConfirmedState, err)
	}

	return alarmID, fields, nil
}

// label renders a scalar value as a state label. Booleans become 1 or 0.
func label(value *structpb.Value) (string, error) {
	switch kind := value.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return "0", nil
	case *structpb.Value_StringValue:
		return kind.StringValue, nil
	case *structpb.Value_BoolValue:
		if kind.BoolValue {
			return "1", nil
		}

		return "0", nil
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64), nil
	default:
		return "", errInvalidLabel
	}
}
