package call

import "fmt"

// Kind classifies the stage that stopped a task.
type Kind string

const (
	UploadFailure        Kind = "UploadFailure"
	ExtractionFailure    Kind = "ExtractionFailure"
	TranscriptionFailure Kind = "TranscriptionFailure"
	GenerationFailure    Kind = "GenerationFailure"
	PublishFailure       Kind = "PublishFailure"
	SaveFailure          Kind = "SaveFailure"
	DeadlineExceeded     Kind = "DeadlineExceeded"
)

// StageError is returned by Orchestrator.Run when a stage fails. Message is
// the text shown to the user; Err is the internal cause.
type StageError struct {
	Stage   string
	Kind    Kind
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
