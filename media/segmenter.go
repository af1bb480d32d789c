// Package media wraps ffprobe and ffmpeg: audio track detection, audio
// extraction and stream-copy splitting into indexed segments.
package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/mrsingh-rishi/transcriber/model"
)

var (
	// ErrNoExtension is returned for source files without an extension.
	ErrNoExtension = errors.New("file has no extension")
	// ErrNoAudioTrack is returned when the source has no audio stream.
	ErrNoAudioTrack = errors.New("file does not contain an audio track")
)

// segmentPrefix and segmentDir fix where Split writes its output; the
// ordinal always sits between the prefix and the extension.
const (
	segmentPrefix = "segment_"
	segmentDir    = "segments"
)

// directAudio lists extensions transcribed as-is, without extraction.
var directAudio = map[string]bool{
	"mp3": true,
	"m4a": true,
}

// Segmenter runs ffprobe/ffmpeg for the pipeline.
type Segmenter struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
	readDir     func(name string) ([]os.DirEntry, error)
	mkdirAll    func(path string, perm os.FileMode) error
}

// NewSegmenter constructs a segmenter using the given binaries.
func NewSegmenter(ffmpegPath, ffprobePath string) *Segmenter {
	return &Segmenter{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      &execRunner{},
		readDir:     os.ReadDir,
		mkdirAll:    os.MkdirAll,
	}
}

// HasAudioTrack reports whether ffprobe finds an audio stream. A failing
// ffprobe run counts as no audio.
func (s *Segmenter) HasAudioTrack(ctx context.Context, path string) (bool, error) {
	args := buildProbeArgs(path)
	res, err := s.runner.Run(ctx, s.ffprobePath, args...)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Errorf("ffprobe exited with error code %d for file %s: %s", res.ExitCode, path, strings.TrimSpace(res.Stderr))
		return false, nil
	}

	scanner := bufio.NewScanner(strings.NewReader(res.Stdout))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "audio" {
			return true, nil
		}
	}
	return false, nil
}

// NeedsExtraction reports whether path must be converted before
// transcription.
func NeedsExtraction(path string) (bool, error) {
	ext := extension(path)
	if ext == "" {
		return false, ErrNoExtension
	}
	return !directAudio[ext], nil
}

// ExtractAudio converts path to a 128k mp3 next to the source and returns
// the new path.
func (s *Segmenter) ExtractAudio(ctx context.Context, path string) (string, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	out := filepath.Join(filepath.Dir(path), stem+".mp3")
	if out == path {
		out = filepath.Join(filepath.Dir(path), stem+"_audio.mp3")
	}

	args := buildExtractArgs(path, out)
	res, err := s.runner.Run(ctx, s.ffmpegPath, args...)
	if err != nil {
		return "", fmt.Errorf("ffmpeg extract exited with code %d: %w", res.ExitCode, err)
	}
	log.Infof("Audio extraction completed: %s", out)
	return out, nil
}

// Split stream-copies path into parts of the given duration and returns
// them ordered by index.
func (s *Segmenter) Split(ctx context.Context, path string, duration time.Duration) ([]model.Segment, error) {
	secs := int(duration / time.Second)
	if secs <= 0 {
		return nil, fmt.Errorf("split duration must be at least one second, got %s", duration)
	}

	dir := filepath.Join(filepath.Dir(path), segmentDir)
	if err := s.mkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create segment directory: %w", err)
	}

	args := buildSplitArgs(path, dir, secs)
	res, err := s.runner.Run(ctx, s.ffmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg split exited with code %d: %w", res.ExitCode, err)
	}

	entries, err := s.readDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	var segments []model.Segment
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), segmentPrefix) {
			continue
		}
		index, ok := SegmentIndex(entry.Name())
		if !ok {
			log.Warnf("Failed to extract index from filename %s, defaulting to 0", entry.Name())
		}
		segments = append(segments, model.Segment{Index: index, Path: filepath.Join(dir, entry.Name())})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no segments for %s", path)
	}

	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Index < segments[j].Index })
	log.Infof("File splitting completed: %d segments", len(segments))
	return segments, nil
}

// SegmentIndex recovers the ordinal from a segment filename: the trailing
// run of digits of the name without its extension. Names without such a run
// report false and index 0.
func SegmentIndex(name string) (int, bool) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	end := len(stem)
	start := end
	for start > 0 && stem[start-1] >= '0' && stem[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.Atoi(stem[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// buildProbeArgs lists the codec type of every audio stream, one per line.
func buildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_type",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// buildExtractArgs drops video and re-encodes audio to 128k mp3.
func buildExtractArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-fflags", "+genpts",
		"-avoid_negative_ts", "make_zero",
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", "128k",
		outPath,
	}
}

// buildSplitArgs cuts by time without re-encoding, writing zero-padded
// ordinals.
func buildSplitArgs(inputPath, dir string, secs int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(secs),
		"-c", "copy",
		filepath.Join(dir, segmentPrefix+"%03d"+filepath.Ext(inputPath)),
	}
}

// NewSegmenterForTests constructs a segmenter with an injected runner.
func NewSegmenterForTests(ffmpegPath, ffprobePath string, runner commandRunner) *Segmenter {
	s := NewSegmenter(ffmpegPath, ffprobePath)
	s.runner = runner
	return s
}
