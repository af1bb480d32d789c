// Package cleanup removes work directories past their retention.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/mrsingh-rishi/transcriber/upload"
)

// ErrMalformedDirName is returned when a work directory name carries no
// parseable timestamp suffix.
var ErrMalformedDirName = errors.New("directory name has no timestamp suffix")

type Sweeper struct {
	BaseDir   string
	Retention time.Duration
	// SkipMalformed logs and skips unparseable names instead of aborting.
	SkipMalformed bool
}

func NewSweeper(baseDir string, retention time.Duration, skipMalformed bool) *Sweeper {
	return &Sweeper{BaseDir: baseDir, Retention: retention, SkipMalformed: skipMalformed}
}

// Sweep deletes every directory under BaseDir whose name timestamp is older
// than Retention and returns the removed paths. Names are all parsed before
// anything is deleted.
func (s *Sweeper) Sweep(now time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.BaseDir, err)
	}

	cutoff := now.Add(-s.Retention)
	var expired []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		created, err := DirTime(e.Name())
		if err != nil {
			if !s.SkipMalformed {
				return nil, err
			}
			log.Warnf("Skipping %s: %v", e.Name(), err)
			continue
		}
		if created.Before(cutoff) {
			expired = append(expired, filepath.Join(s.BaseDir, e.Name()))
		}
	}

	var removed []string
	for _, dir := range expired {
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("remove %s: %w", dir, err)
		}
		log.Infof("Deleted expired directory %s", dir)
		removed = append(removed, dir)
	}
	return removed, nil
}

// DirTime parses the timestamp suffix of a work directory name.
func DirTime(name string) (time.Time, error) {
	n := len(upload.DirTimeLayout)
	if len(name) < n {
		return time.Time{}, fmt.Errorf("%q: %w", name, ErrMalformedDirName)
	}
	t, err := time.ParseInLocation(upload.DirTimeLayout, name[len(name)-n:], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", name, ErrMalformedDirName)
	}
	return t, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Infof("Cleanup of %s every %s, retention %s", s.BaseDir, interval, s.Retention)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := s.Sweep(now)
			if err != nil {
				log.Errorf("Cleanup sweep failed: %v", err)
				continue
			}
			if len(removed) > 0 {
				log.Infof("Cleanup removed %d directories", len(removed))
			}
		}
	}
}
