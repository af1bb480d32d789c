// Package stt transcribes audio files of any size. Files above the provider
// upload limit are split into indexed segments, transcribed in parallel and
// joined back in index order.
package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/mrsingh-rishi/transcriber/model"
	"github.com/mrsingh-rishi/transcriber/workers"
)

// SmallFileLimit is the largest file, in bytes, sent in a single call.
const SmallFileLimit = 25 * 1024 * 1024

// DefaultSplitDuration is the segment length used when none is configured.
const DefaultSplitDuration = 20 * time.Minute

// ErrDuplicateSegmentIndex is returned when two segments share an index and
// the joined transcript would silently lose one of them.
var ErrDuplicateSegmentIndex = errors.New("duplicate segment index")

// Splitter cuts an audio file into ordered segments.
type Splitter interface {
	Split(ctx context.Context, path string, duration time.Duration) ([]model.Segment, error)
}

// Dispatcher decides between the single-call and split paths.
type Dispatcher struct {
	Provider       Provider
	Splitter       Splitter
	SplitDuration  time.Duration
	SegmentTimeout time.Duration
	Pool           *workers.Pool

	stat func(name string) (os.FileInfo, error)
}

// NewDispatcher creates a dispatcher running at most maxConcurrent
// provider calls at once.
func NewDispatcher(provider Provider, splitter Splitter, splitDuration time.Duration, maxConcurrent int, segmentTimeout time.Duration) *Dispatcher {
	if splitDuration <= 0 {
		splitDuration = DefaultSplitDuration
	}
	return &Dispatcher{
		Provider:       provider,
		Splitter:       splitter,
		SplitDuration:  splitDuration,
		SegmentTimeout: segmentTimeout,
		Pool:           workers.NewPool(maxConcurrent),
		stat:           os.Stat,
	}
}

// Transcribe returns the full transcript of path.
func (d *Dispatcher) Transcribe(ctx context.Context, path string) (string, error) {
	info, err := d.stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	log.Infof("Transcribing audio from file: %s (%d bytes)", path, info.Size())
	if info.Size() <= SmallFileLimit {
		return d.call(ctx, path)
	}
	return d.transcribeSplit(ctx, path)
}

func (d *Dispatcher) transcribeSplit(ctx context.Context, path string) (string, error) {
	segments, err := d.Splitter.Split(ctx, path, d.SplitDuration)
	if err != nil {
		return "", fmt.Errorf("split %s: %w", path, err)
	}
	if err := checkIndices(segments); err != nil {
		return "", err
	}

	var (
		mu      sync.Mutex
		results = make([]model.TranscribedSegment, 0, len(segments))
	)
	err = d.Pool.Run(ctx, len(segments), func(ctx context.Context, i int) error {
		seg := segments[i]
		log.Debugf("Processing split file with index %d: %s", seg.Index, seg.Path)
		text, err := d.call(ctx, seg.Path)
		if err != nil {
			return fmt.Errorf("segment %d (%s): %w", seg.Index, filepath.Base(seg.Path), err)
		}
		mu.Lock()
		results = append(results, model.TranscribedSegment{Index: seg.Index, Text: text})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Infof("File splitting and transcription completed: %d segments", len(results))
	return Join(results), nil
}

// call runs one provider request under the per-segment timeout.
func (d *Dispatcher) call(ctx context.Context, path string) (string, error) {
	if d.SegmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.SegmentTimeout)
		defer cancel()
	}
	return d.Provider.Transcribe(ctx, path)
}

// Join orders segments by index and joins their text with single spaces.
// The result depends only on the set of pairs, not on their order.
func Join(segments []model.TranscribedSegment) string {
	sorted := append([]model.TranscribedSegment(nil), segments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	texts := make([]string, len(sorted))
	for i, seg := range sorted {
		texts[i] = seg.Text
	}
	return strings.Join(texts, " ")
}

func checkIndices(segments []model.Segment) error {
	seen := make(map[int]string, len(segments))
	for _, seg := range segments {
		if prev, ok := seen[seg.Index]; ok {
			return fmt.Errorf("%w %d: %s and %s", ErrDuplicateSegmentIndex, seg.Index, filepath.Base(prev), filepath.Base(seg.Path))
		}
		seen[seg.Index] = seg.Path
	}
	return nil
}
