package model

// Status is the human-readable stage a task is currently in.
type Status string

const (
	StatusUploading    Status = "Uploading file"
	StatusExtracting   Status = "Extracting audio"
	StatusTranscribing Status = "Transcribing"
	StatusGenerating   Status = "Generating article"
	StatusPublishing   Status = "Publishing article"
	StatusSaving       Status = "Saving transcription"
	StatusCompleted    Status = "Completed"
	StatusError        Status = "Error"

	// StatusUnknown is returned for task ids the store has never seen.
	StatusUnknown Status = "Unknown"
)

// Task is the latest known state of one submission.
type Task struct {
	ID        string  `json:"taskId"`
	Status    Status  `json:"status"`
	ResultURL *string `json:"redirectUrl"`
}

// Segment is one time-bounded slice of a larger audio file.
type Segment struct {
	Index int
	Path  string
}

// TranscribedSegment is the provider output for one Segment.
type TranscribedSegment struct {
	Index int
	Text  string
}

// ArticleData is a generated article ready for publishing.
type ArticleData struct {
	Title   string
	Content string
}
