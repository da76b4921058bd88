package pbconv

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
)

// Field names of an encoded record.
const (
	FieldRunID         = "run_id"
	FieldConfiguration = "configuration"
	FieldActor         = "actor"
	FieldHostname      = "hostname"
	FieldUsername      = "username"
	FieldStage         = "stage"
	FieldFailedStage   = "failed_stage"
	FieldFailureKind   = "failure_kind"
	FieldError         = "error"
	FieldArtifact      = "artifact"
	FieldMessages      = "messages"
	FieldStartedAt     = "started_at"
	FieldFinishedAt    = "finished_at"
	FieldVersion       = "version"
)

var (
	errRecordIsNil   = errors.New("record is nil")
	errUnknownStage  = errors.New("unknown run stage")
	errBadTimestamp  = errors.New("malformed timestamp")
	errBadMessageVal = errors.New("messages must be strings")
)

// RecordToStruct encodes r. Timestamps are RFC 3339 strings in UTC and are
// omitted when zero.
func RecordToStruct(r *deploy.Record) (*structpb.Struct, error) {
	if r == nil {
		return nil, errRecordIsNil
	}

	messages := make([]any, 0, len(r.Messages))
	for _, m := range r.Messages {
		messages = append(messages, m)
	}

	fields := map[string]any{
		FieldRunID:         r.RunID,
		FieldConfiguration: r.Configuration,
		FieldStage:         r.Stage.String(),
		FieldError:         r.Error,
		FieldArtifact:      r.Artifact,
		FieldMessages:      messages,
		FieldVersion:       r.Version,
	}

	if r.FailureKind != 0 {
		fields[FieldFailureKind] = r.FailureKind.String()
	}

	if r.FailedStage != deploy.StageIdle {
		fields[FieldFailedStage] = r.FailedStage.String()
	}

	if r.Actor != nil {
		fields[FieldActor] = ActorToMap(r.Actor)
	}

	if !r.StartedAt.IsZero() {
		fields[FieldStartedAt] = r.StartedAt.UTC().Format(time.RFC3339Nano)
	}

	if !r.FinishedAt.IsZero() {
		fields[FieldFinishedAt] = r.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	return s, nil
}

// RecordFromStruct decodes a record produced by RecordToStruct.
func RecordFromStruct(s *structpb.Struct) (*deploy.Record, error) {
	if s == nil {
		return nil, errRecordIsNil
	}

	stageName := stringField(s, FieldStage)

	stage, ok := deploy.ParseRunStage(stageName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownStage, stageName)
	}

	failedStage := deploy.StageIdle

	if name := stringField(s, FieldFailedStage); name != "" {
		if failedStage, ok = deploy.ParseRunStage(name); !ok {
			return nil, fmt.Errorf("%w: %q", errUnknownStage, name)
		}
	}

	r := &deploy.Record{
		RunID:         stringField(s, FieldRunID),
		Configuration: stringField(s, FieldConfiguration),
		Actor:         ActorFromStruct(s.GetFields()[FieldActor].GetStructValue()),
		Stage:         stage,
		FailedStage:   failedStage,
		FailureKind:   deploy.ParseFailureKind(stringField(s, FieldFailureKind)),
		Error:         stringField(s, FieldError),
		Artifact:      stringField(s, FieldArtifact),
		Version:       stringField(s, FieldVersion),
	}

	for _, v := range s.GetFields()[FieldMessages].GetListValue().GetValues() {
		text, isString := v.GetKind().(*structpb.Value_StringValue)
		if !isString {
			return nil, errBadMessageVal
		}

		r.Messages = append(r.Messages, text.StringValue)
	}

	var err error

	if r.StartedAt, err = timeField(s, FieldStartedAt); err != nil {
		return nil, err
	}

	if r.FinishedAt, err = timeField(s, FieldFinishedAt); err != nil {
		return nil, err
	}

	return r, nil
}

// ActorToMap returns the Struct-compatible form of a.
func ActorToMap(a *deploy.Actor) map[string]any {
	return map[string]any{
		FieldHostname: a.Hostname,
		FieldUsername: a.Username,
	}
}

// ActorFromStruct decodes an actor, returning nil for a nil struct.
func ActorFromStruct(s *structpb.Struct) *deploy.Actor {
	if s == nil {
		return nil
	}

	return &deploy.Actor{
		Hostname: stringField(s, FieldHostname),
		Username: stringField(s, FieldUsername),
	}
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func timeField(s *structpb.Struct, name string) (time.Time, error) {
	raw := stringField(s, name)
	if raw == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %w", errBadTimestamp, name, err)
	}

	return t, nil
}
