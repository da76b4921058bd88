package deployer

import (
	"sync"
	"time"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/version"
)

// Recorder is a Sink that builds the history record of a run.
type Recorder struct {
	mu     sync.Mutex
	record *deploy.Record
	now    func() time.Time
}

// NewRecorder prepares a record for a run of the named configuration.
func NewRecorder(configuration string, actor *deploy.Actor) *Recorder {
	return &Recorder{
		record: &deploy.Record{
			Configuration: configuration,
			Actor:         actor.Clone(),
			Stage:         deploy.StageIdle,
			Version:       version.Short(),
		},
		now: time.Now,
	}
}

// Record returns a snapshot of the record built so far.
func (r *Recorder) Record() *deploy.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.record.Clone()
}

// RunStarted implements Sink.
func (r *Recorder) RunStarted(runID string, pctx *deploy.PackagingContext) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record.RunID = runID
	r.record.Artifact = pctx.SisxPath()
	r.record.StartedAt = r.now().UTC()
	r.record.Stage = deploy.StagePackaging
}

// Output implements Sink. Tool output is not kept in history.
func (r *Recorder) Output(string, deploy.RunStage, Stream, string) {}

// Message implements Sink.
func (r *Recorder) Message(_ string, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record.Messages = append(r.record.Messages, text)
}

// StageError implements Sink.
func (r *Recorder) StageError(_ string, stage deploy.RunStage, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record.Messages = append(r.record.Messages, message)
	r.record.Error = message
	r.record.FailedStage = stage
}

// RunFinished implements Sink.
func (r *Recorder) RunFinished(_ string, result *deploy.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record.Stage = result.Stage
	r.record.FinishedAt = r.now().UTC()

	if result.Failure != nil {
		r.record.FailedStage = result.Failure.Stage
		r.record.FailureKind = result.Failure.Kind
	}
}
