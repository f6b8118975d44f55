package retained

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-notifier/internal/config"
	domain "github.com/oshokin/alarm-notifier/internal/domain/alarm"
)

// Record is the last known state of an alarm.
type Record struct {
	// ActiveState is the last observed active state.
	ActiveState bool
	// AckedState is the last observed acknowledgement label.
	AckedState string
	// ConfirmedState is the last observed confirmation label.
	ConfirmedState string
	// Time is when the state was observed.
	Time time.Time
}

// RecordFromFields builds a record from event fields.
func RecordFromFields(fields domain.Fields) Record {
	return Record{
		ActiveState:    fields.ActiveState,
		AckedState:     fields.AckedState,
		ConfirmedState: fields.ConfirmedState,
		Time:           fields.Time,
	}
}

// Repository defines persistence operations for retained alarms.
type Repository interface {
	ActiveState(ctx context.Context, name string) (active, found bool, err error)
	Update(ctx context.Context, name string, record Record) error
}

// Record field names in the JSON document.
const (
	fieldActiveState    = "active_state"
	fieldAckedState     = "acked_state"
	fieldConfirmedState = "confirmed_state"
	fieldTime           = "time"
)

// errInvalidRecord is returned when a stored record is not a JSON object.
var errInvalidRecord = errors.New("retained record is not an object")

// FileRepository persists retained alarms to a JSON file on disk.
// JSON is produced and consumed via protobuf JSON (protojson) of a
// google.protobuf.Struct keyed by alarm name.
type FileRepository struct {
	// path is the filesystem location of the JSON file.
	path string
	// records caches the file contents, loaded on first use.
	records map[string]Record
	// mu protects records and the file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// ActiveState returns the retained active state of the alarm.
// found is false when no record exists for the name.
func (r *FileRepository) ActiveState(_ context.Context, name string) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(); err != nil {
		return false, false, err
	}

	record, ok := r.records[name]

	return record.ActiveState, ok, nil
}

// Get returns the retained record of the alarm.
func (r *FileRepository) Get(_ context.Context, name string) (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(); err != nil {
		return Record{}, false, err
	}

	record, ok := r.records[name]

	return record, ok, nil
}

// Update stores the record of the alarm and writes the file.
func (r *FileRepository) Update(_ context.Context, name string, record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(); err != nil {
		return err
	}

	previous, existed := r.records[name]
	r.records[name] = record

	if err := r.write(); err != nil {
		// Keep memory consistent with the file.
		if existed {
			r.records[name] = previous
		} else {
			delete(r.records, name)
		}

		return err
	}

	return nil
}

// ensureLoaded reads the file once. A missing file is an empty store.
func (r *FileRepository) ensureLoaded() error {
	if r.records != nil {
		return nil
	}

	records, err := r.read()
	if err != nil {
		return err
	}

	r.records = records

	return nil
}

// read decodes the file into records.
func (r *FileRepository) read() (map[string]Record, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]Record), nil
		}

		return nil, fmt.Errorf("read retained alarms file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode retained alarms file: %w", err)
	}

	records := make(map[string]Record, len(document.GetFields()))

	for name, value := range document.GetFields() {
		record, err := fromProto(value)
		if err != nil {
			return nil, fmt.Errorf("decode retained alarm %q: %w", name, err)
		}

		records[name] = record
	}

	return records, nil
}

// write encodes records and replaces the file.
func (r *FileRepository) write() error {
	document := &structpb.Struct{
		Fields: make(map[string]*structpb.Value, len(r.records)),
	}

	for name, record := range r.records {
		document.Fields[name] = toProto(record)
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode retained alarms: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write retained alarms file: %w", err)
	}

	return nil
}

// fromProto converts a stored JSON object into a Record.
func fromProto(value *structpb.Value) (Record, error) {
	object := value.GetStructValue()
	if object == nil {
		return Record{}, errInvalidRecord
	}

	fields := object.GetFields()

	record := Record{
		ActiveState:    fields[fieldActiveState].GetBoolValue(),
		AckedState:     fields[fieldAckedState].GetStringValue(),
		ConfirmedState: fields[fieldConfirmedState].GetStringValue(),
	}

	if raw := fields[fieldTime].GetStringValue(); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Record{}, fmt.Errorf("parse time: %w", err)
		}

		record.Time = ts
	}

	return record, nil
}

// toProto converts a Record into a JSON object value.
func toProto(record Record) *structpb.Value {
	fields := map[string]*structpb.Value{
		fieldActiveState:    structpb.NewBoolValue(record.ActiveState),
		fieldAckedState:     structpb.NewStringValue(record.AckedState),
		fieldConfirmedState: structpb.NewStringValue(record.ConfirmedState),
	}

	if !record.Time.IsZero() {
		fields[fieldTime] = structpb.NewStringValue(record.Time.UTC().Format(time.RFC3339Nano))
	}

	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}
