package output

import (
	"errors"
	"sync"
	"testing"
)

// fakeChannel records frames written to it.
type fakeChannel struct {
	mu       sync.Mutex
	frames   []string
	closed   bool
	writeErr error
}

func (f *fakeChannel) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.frames = append(f.frames, string(data))
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) Frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

func TestFrames(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{Status("Transcribing..."), "STATUS: Transcribing..."},
		{Error("Error generating article. Please try again."), "ERROR: Error generating article. Please try again."},
		{Result("https://telegra.ph/Page-01-01"), "https://telegra.ph/Page-01-01"},
		{Download("/download-transcription/u-01/t/f.doc"), "DOWNLOAD:/download-transcription/u-01/t/f.doc"},
	}
	for _, tt := range tests {
		if got := tt.msg.Frame(); got != tt.want {
			t.Fatalf("Frame() = %q, want %q", got, tt.want)
		}
	}
}

func TestSendDeliversToRegisteredChannel(t *testing.T) {
	h := NewHub()
	ch := &fakeChannel{}
	h.Register("alice", ch)

	h.Send("alice", Status("Transcribing..."))

	frames := ch.Frames()
	if len(frames) != 1 || frames[0] != "STATUS: Transcribing..." {
		t.Fatalf("frames = %v", frames)
	}
}

func TestSendWithoutChannelIsDropped(t *testing.T) {
	h := NewHub()
	other := &fakeChannel{}
	h.Register("bob", other)

	h.Send("alice", Status("Transcribing..."))

	if len(other.Frames()) != 0 {
		t.Fatalf("message leaked to another user: %v", other.Frames())
	}
}

func TestRegisterReplacesAndClosesPrevious(t *testing.T) {
	h := NewHub()
	first := &fakeChannel{}
	second := &fakeChannel{}
	h.Register("alice", first)
	h.Register("alice", second)

	h.Send("alice", Status("Publishing article..."))

	if !first.closed {
		t.Fatal("superseded channel should be closed")
	}
	if len(first.Frames()) != 0 {
		t.Fatalf("old channel got frames: %v", first.Frames())
	}
	if got := second.Frames(); len(got) != 1 {
		t.Fatalf("new channel frames = %v, want one", got)
	}
}

func TestLateUnregisterKeepsReplacement(t *testing.T) {
	h := NewHub()
	first := &fakeChannel{}
	second := &fakeChannel{}
	h.Register("alice", first)
	h.Register("alice", second)

	h.Unregister("alice", first)
	if !h.Connected("alice") {
		t.Fatal("unregistering the superseded channel removed its replacement")
	}

	h.Unregister("alice", second)
	if h.Connected("alice") {
		t.Fatal("expected alice to be disconnected")
	}
}

func TestWriteFailureDropsChannel(t *testing.T) {
	h := NewHub()
	ch := &fakeChannel{writeErr: errors.New("broken pipe")}
	h.Register("alice", ch)

	h.Send("alice", Error("Error uploading file. Please try again."))

	if h.Connected("alice") {
		t.Fatal("failed channel should be unregistered")
	}
	if !ch.closed {
		t.Fatal("failed channel should be closed")
	}
}
