package types

// Flow selects which stages a task runs after transcription.
type Flow string

const (
	FlowTranscription Flow = "transcription"
	FlowArticle       Flow = "article"
)

// ArticleRequest is the JSON frame a client sends over /ws to start an
// article task from a remote file.
type ArticleRequest struct {
	FileURL    string `json:"fileUrl"`
	AuthorName string `json:"authorName"`
}

// SessionResponse hands a freshly generated username to a new client.
type SessionResponse struct {
	Username string `json:"username"`
}

// ErrorResponse is the JSON body of failed HTTP requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TaskAccepted is returned once a task finished its synchronous run.
type TaskAccepted struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}
