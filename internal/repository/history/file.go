package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/sisx-deploy/internal/config"
	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/pbconv"
)

// DefaultMaxRecords is how many records a FileRepository keeps by default.
const DefaultMaxRecords = 20

const recordsField = "records"

// Repository defines persistence operations for deployment records.
type Repository interface {
	Save(ctx context.Context, record *deploy.Record) error
	Last(ctx context.Context) (*deploy.Record, error)
	List(ctx context.Context, limit int) ([]*deploy.Record, error)
}

// ErrNotFound is returned when no run has been recorded yet.
var ErrNotFound = errors.New("no deployment recorded")

var (
	errRecordIsNotSet = errors.New("record is not set")
	errMalformedFile  = errors.New("malformed history file")
)

// FileRepository persists records to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the history file.
	path string
	// maxRecords caps the number of records kept, oldest dropped first.
	maxRecords int
	// mu protects concurrent access to the history file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes JSON at the
// provided path, keeping at most maxRecords records (DefaultMaxRecords when
// maxRecords is not positive).
func NewFileRepository(path string, maxRecords int) *FileRepository {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}

	return &FileRepository{
		path:       filepath.Clean(path),
		maxRecords: maxRecords,
	}
}

// Save appends record to the history.
func (r *FileRepository) Save(_ context.Context, record *deploy.Record) error {
	if record == nil {
		return errRecordIsNotSet
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	records = append(records, record.Clone())
	if len(records) > r.maxRecords {
		records = records[len(records)-r.maxRecords:]
	}

	return r.write(records)
}

// Last returns the most recently saved record.
func (r *FileRepository) Last(_ context.Context) (*deploy.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, ErrNotFound
	}

	return records[len(records)-1], nil
}

// List returns up to limit records, newest first. A non-positive limit
// returns all of them.
func (r *FileRepository) List(_ context.Context, limit int) ([]*deploy.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}

	out := make([]*deploy.Record, 0, limit)
	for i := len(records) - 1; i >= len(records)-limit; i-- {
		out = append(out, records[i])
	}

	return out, nil
}

func (r *FileRepository) read() ([]*deploy.Record, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read history file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode history file: %w", err)
	}

	values := document.GetFields()[recordsField].GetListValue().GetValues()
	records := make([]*deploy.Record, 0, len(values))

	for i, v := range values {
		encoded := v.GetStructValue()
		if encoded == nil {
			return nil, fmt.Errorf("%w: entry %d is not an object", errMalformedFile, i)
		}

		var record *deploy.Record

		record, err = pbconv.RecordFromStruct(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode history entry %d: %w", i, err)
		}

		records = append(records, record)
	}

	return records, nil
}

func (r *FileRepository) write(records []*deploy.Record) error {
	values := make([]*structpb.Value, 0, len(records))

	for _, record := range records {
		encoded, err := pbconv.RecordToStruct(record)
		if err != nil {
			return err
		}

		values = append(values, structpb.NewStructValue(encoded))
	}

	document := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			recordsField: structpb.NewListValue(&structpb.ListValue{Values: values}),
		},
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	// Write next to the target and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create history file: %w", err)
	}

	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Chmod(tmpName, config.DefaultFilePermissions)
	}

	if err == nil {
		err = os.Rename(tmpName, r.path)
	}

	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("write history file: %w", err)
	}

	return nil
}
