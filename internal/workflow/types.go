package workflow

import (
	"context"
	"time"

	"github.com/LimaAnalytica/cleaning-process/internal/endpoint"
	"github.com/LimaAnalytica/cleaning-process/internal/fault"
	"github.com/LimaAnalytica/cleaning-process/internal/result"
	"github.com/LimaAnalytica/cleaning-process/internal/selection"
)

type State string

const (
	StateIdle      State = "idle"
	StateReady     State = "ready"
	StateInFlight  State = "in_flight"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// DefaultDownloadName names in-memory results offered for download.
const DefaultDownloadName = "processed_dataset.csv"

// Processor sends an artifact to the processing endpoint.
type Processor interface {
	Process(ctx context.Context, artifact selection.Artifact) (endpoint.Reply, error)
}

// Observer is told about every settled submission.
type Observer interface {
	ObserveSubmission(state State, category fault.Category, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveSubmission(State, fault.Category, time.Duration) {}

type Options struct {
	ID           string
	Guard        *selection.Guard
	Processor    Processor
	DownloadName string
	Observer     Observer
	// BaseContext bounds every outbound request; Close cancels requests
	// regardless of it.
	BaseContext context.Context
}

// Snapshot is a consistent view of a workflow at one instant.
type Snapshot struct {
	State     State
	Pending   bool
	Artifact  string
	Reference result.Reference
	Fault     *fault.Error
	// Rejection is the most recent refused selection, if any.
	Rejection *fault.Error
	Message   string
}

// HasArtifact reports whether an artifact is pending for the next submission.
func (s Snapshot) HasArtifact() bool { return s.Pending }

// ResultMissing reports a success that produced nothing to download.
func (s Snapshot) ResultMissing() bool {
	return s.State == StateSucceeded && s.Reference == nil
}

// CurrentFault is the failure to show: a refused selection outranks the
// failure of the last submission.
func (s Snapshot) CurrentFault() *fault.Error {
	if s.Rejection != nil {
		return s.Rejection
	}
	if s.State == StateFailed {
		return s.Fault
	}
	return nil
}

// ErrorMessage is the display text of the current failure, if any.
func (s Snapshot) ErrorMessage() string {
	if fe := s.CurrentFault(); fe != nil {
		return fe.Message
	}
	return ""
}

type outcome struct {
	ref     result.Reference
	message string
	fault   *fault.Error
}
