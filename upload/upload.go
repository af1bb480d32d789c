package upload

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const (
	// DirTimeLayout is the timestamp suffix of every work directory name.
	DirTimeLayout = "02-01-2006-15-04-05"
	filePrefix    = "file-"
)

// Source places the submitted media file into a work directory.
type Source interface {
	Fetch(ctx context.Context, dir string) (string, error)
	Describe() string
}

// WorkDirName names the directory holding one submission.
func WorkDirName(userID string, now time.Time) string {
	return fmt.Sprintf("%s-%s", userID, now.Format(DirTimeLayout))
}

// CreateWorkDir creates baseDir/WorkDirName(userID, now) and returns its path.
func CreateWorkDir(baseDir, userID string, now time.Time) (string, error) {
	dir := filepath.Join(baseDir, WorkDirName(userID, now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

// MultipartSource is a file posted in a multipart form.
type MultipartSource struct {
	Header *multipart.FileHeader
}

func (s MultipartSource) Describe() string {
	return "upload " + s.Header.Filename
}

func (s MultipartSource) Fetch(ctx context.Context, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return SaveMultipart(s.Header, dir)
}

// SaveMultipart stores the posted file as dir/file-<original name>.
func SaveMultipart(fh *multipart.FileHeader, dir string) (string, error) {
	name := filepath.Base(fh.Filename)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid upload filename %q", fh.Filename)
	}
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst := filepath.Join(dir, filePrefix+name)
	if err := writeFile(dst, src); err != nil {
		return "", err
	}
	log.Infof("Saved upload %s (%d bytes)", dst, fh.Size)
	return dst, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
