package output

import "fmt"

// Kind tags a notification frame.
type Kind int

const (
	KindStatus Kind = iota
	KindError
	KindResult
	KindDownload
)

// Message is one frame pushed to a user's channel.
type Message struct {
	Kind Kind
	Text string
}

// Status reports a stage transition, e.g. "Transcribing...".
func Status(text string) Message { return Message{Kind: KindStatus, Text: text} }

// Error carries a generic, user-facing failure message.
func Error(text string) Message { return Message{Kind: KindError, Text: text} }

// Result carries the final url of the article flow.
func Result(url string) Message { return Message{Kind: KindResult, Text: url} }

// Download carries the download path of a saved transcription.
func Download(path string) Message { return Message{Kind: KindDownload, Text: path} }

// Frame renders the wire text. Clients match on the prefix; a frame without
// one is the final result.
func (m Message) Frame() string {
	switch m.Kind {
	case KindStatus:
		return "STATUS: " + m.Text
	case KindError:
		return "ERROR: " + m.Text
	case KindDownload:
		return "DOWNLOAD:" + m.Text
	default:
		return m.Text
	}
}

func (m Message) String() string {
	return fmt.Sprintf("%q", m.Frame())
}
