package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

func TestHasAudioTrack(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		err    error
		want   bool
	}{
		{name: "audio stream", stdout: "audio\n", want: true},
		{name: "two audio streams", stdout: "audio\naudio\n", want: true},
		{name: "no streams", stdout: "", want: false},
		{name: "ffprobe failure", stdout: "", err: errors.New("exit status 1"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotName string
			runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
				gotName = name
				if args[len(args)-1] != "/tmp/in.mp4" {
					t.Fatalf("last ffprobe arg = %q, want input path", args[len(args)-1])
				}
				code := 0
				if tt.err != nil {
					code = 1
				}
				return commandResult{Stdout: tt.stdout, ExitCode: code}, tt.err
			}}
			s := NewSegmenterForTests("ffmpeg-custom", "ffprobe-custom", runner)

			got, err := s.HasAudioTrack(context.Background(), "/tmp/in.mp4")
			if err != nil {
				t.Fatalf("HasAudioTrack() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("HasAudioTrack() = %v, want %v", got, tt.want)
			}
			if gotName != "ffprobe-custom" {
				t.Fatalf("command = %q, want ffprobe-custom", gotName)
			}
		})
	}
}

func TestNeedsExtraction(t *testing.T) {
	tests := []struct {
		path    string
		want    bool
		wantErr error
	}{
		{path: "talk.mp3", want: false},
		{path: "talk.M4A", want: false},
		{path: "talk.mp4", want: true},
		{path: "talk.wav", want: true},
		{path: "talk", wantErr: ErrNoExtension},
		{path: "talk.", wantErr: ErrNoExtension},
	}
	for _, tt := range tests {
		got, err := NeedsExtraction(tt.path)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("NeedsExtraction(%q) error = %v, want %v", tt.path, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("NeedsExtraction(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestExtractAudio(t *testing.T) {
	var args []string
	runner := &fakeRunner{run: func(ctx context.Context, name string, a ...string) (commandResult, error) {
		args = a
		return commandResult{}, nil
	}}
	s := NewSegmenterForTests("ffmpeg", "ffprobe", runner)

	out, err := s.ExtractAudio(context.Background(), "/work/file-lecture.mp4")
	if err != nil {
		t.Fatalf("ExtractAudio() error = %v", err)
	}
	if out != "/work/file-lecture.mp3" {
		t.Fatalf("output = %q, want /work/file-lecture.mp3", out)
	}
	if args[len(args)-1] != out {
		t.Fatalf("ffmpeg output arg = %q, want %q", args[len(args)-1], out)
	}
	if !hasArgPair(args, "-acodec", "libmp3lame") || !hasArgPair(args, "-b:a", "128k") {
		t.Fatalf("missing encoder args: %v", args)
	}
}

func TestExtractAudioFailure(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, a ...string) (commandResult, error) {
		return commandResult{ExitCode: 1, Stderr: "bad input"}, errors.New("exit status 1")
	}}
	s := NewSegmenterForTests("ffmpeg", "ffprobe", runner)

	if _, err := s.ExtractAudio(context.Background(), "/work/in.mov"); err == nil {
		t.Fatal("expected extraction error")
	}
}

func TestSplitOrdersSegmentsByIndex(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "file-podcast.mp3")
	mustWriteFile(t, source, "audio")

	var splitArgs []string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		splitArgs = args
		pattern := args[len(args)-1]
		dir := filepath.Dir(pattern)
		// written out of order on purpose
		for _, n := range []string{"segment_002.mp3", "segment_000.mp3", "segment_010.mp3", "segment_001.mp3"} {
			mustWriteFile(t, filepath.Join(dir, n), n)
		}
		mustWriteFile(t, filepath.Join(dir, "notes.txt"), "ignored")
		return commandResult{}, nil
	}}
	s := NewSegmenterForTests("ffmpeg", "ffprobe", runner)

	segments, err := s.Split(context.Background(), source, 20*time.Minute)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if !hasArgPair(splitArgs, "-segment_time", "1200") || !hasArgPair(splitArgs, "-c", "copy") {
		t.Fatalf("split args = %v", splitArgs)
	}
	if !strings.HasSuffix(splitArgs[len(splitArgs)-1], "segment_%03d.mp3") {
		t.Fatalf("output pattern = %q", splitArgs[len(splitArgs)-1])
	}

	wantIdx := []int{0, 1, 2, 10}
	if len(segments) != len(wantIdx) {
		t.Fatalf("segments = %d, want %d", len(segments), len(wantIdx))
	}
	for i, seg := range segments {
		if seg.Index != wantIdx[i] {
			t.Fatalf("segment %d index = %d, want %d", i, seg.Index, wantIdx[i])
		}
		if filepath.Dir(seg.Path) != filepath.Join(root, segmentDir) {
			t.Fatalf("segment path = %q", seg.Path)
		}
	}
}

func TestSplitRejectsSubSecondDuration(t *testing.T) {
	s := NewSegmenterForTests("ffmpeg", "ffprobe", &fakeRunner{})
	if _, err := s.Split(context.Background(), "/tmp/a.mp3", 500*time.Millisecond); err == nil {
		t.Fatal("expected error for sub-second duration")
	}
}

func TestSegmentIndex(t *testing.T) {
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"segment_000.mp3", 0, true},
		{"segment_007.m4a", 7, true},
		{"/work/alice-01-02-2024-10-00-00/segments/segment_123.mp3", 123, true},
		{"output_part012.mp4", 12, true},
		{"take2_segment_004.mp3", 4, true},
		{"intro.mp3", 0, false},
		{"segment_.mp3", 0, false},
	}
	for _, tt := range tests {
		got, ok := SegmentIndex(tt.name)
		if got != tt.want || ok != tt.wantOK {
			t.Fatalf("SegmentIndex(%q) = %d, %v, want %d, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func hasArgPair(args []string, key, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == key && args[i+1] == value {
			return true
		}
	}
	return false
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}
