package workflow

import "github.com/LimaAnalytica/cleaning-process/internal/fault"

var (
	ErrNoInputSelected = fault.New(fault.Precondition, "no input selected")
	ErrAlreadyInFlight = fault.New(fault.Precondition, "a submission is already in flight")
	ErrClosed          = fault.New(fault.Precondition, "session has ended")
)
