package pipeline

import "errors"

// Stage identifies one step of the per-document ingestion flow.
type Stage string

const (
	StageDetect   Stage = "detect"
	StageAnalyze  Stage = "analyze"
	StageMap      Stage = "map"
	StageExtract  Stage = "extract"
	StageValidate Stage = "validate"
	StageDedup    Stage = "dedup"
	StageCrossVal Stage = "crossval"
	StageCached   Stage = "cached"
	StageFailed   Stage = "failed"
)

// Event is one progress notification. Items is the running item count for
// the document, zero when the stage has no item granularity.
type Event struct {
	Document string
	Stage    Stage
	Items    int
	Err      error
}

// ProgressFunc receives pipeline progress events. It is called from worker
// goroutines and must be safe for concurrent use; a nil func disables
// progress reporting.
type ProgressFunc func(Event)

func (p *Pipeline) emit(ev Event) {
	if p.progress != nil {
		p.progress(ev)
	}
}

// stageError tags a per-document failure with the stage it happened in so
// dead-letter records can name where ingestion stopped.
type stageError struct {
	stage Stage
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

func atStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

// failedStage extracts the tagged stage from a per-document failure,
// StageFailed when the error carries no tag.
func failedStage(err error) Stage {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return StageFailed
}
