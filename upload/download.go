package upload

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Converter rewrites share links into direct download links.
type Converter interface {
	Match(rawURL string) bool
	Convert(rawURL string) (string, error)
}

var driveFileID = regexp.MustCompile(`/file/d/([^/]+)`)

// GoogleDriveConverter turns drive.google.com/file/d/<id>/view links into uc downloads.
type GoogleDriveConverter struct{}

func (GoogleDriveConverter) Match(rawURL string) bool {
	return strings.Contains(rawURL, "drive.google.com") && driveFileID.MatchString(rawURL)
}

func (GoogleDriveConverter) Convert(rawURL string) (string, error) {
	m := driveFileID.FindStringSubmatch(rawURL)
	if m == nil {
		return "", fmt.Errorf("no drive file id in %q", rawURL)
	}
	return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(m[1]), nil
}

// DefaultConverters is applied by URLSource when Converters is nil.
var DefaultConverters = []Converter{GoogleDriveConverter{}}

var contentTypeExt = map[string]string{
	"audio/mpeg":     ".mp3",
	"audio/wav":      ".wav",
	"audio/mp4":      ".m4a",
	"audio/flac":     ".flac",
	"audio/ogg":      ".ogg",
	"audio/amr":      ".amr",
	"audio/aiff":     ".aiff",
	"audio/x-ms-wma": ".wma",
}

// URLSource is a file fetched from a remote URL.
type URLSource struct {
	URL        string
	Client     *http.Client
	Converters []Converter
}

func (s URLSource) Describe() string {
	return "url " + s.URL
}

func (s URLSource) Fetch(ctx context.Context, dir string) (string, error) {
	converters := s.Converters
	if converters == nil {
		converters = DefaultConverters
	}
	return Download(ctx, s.Client, converters, s.URL, dir)
}

// Download fetches rawURL into dir and returns the stored path.
func Download(ctx context.Context, client *http.Client, converters []Converter, rawURL, dir string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	target := rawURL
	for _, c := range converters {
		if !c.Match(target) {
			continue
		}
		converted, err := c.Convert(target)
		if err != nil {
			return "", err
		}
		log.Debugf("Converted %s to %s", target, converted)
		target = converted
		break
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download %s: status %d", target, resp.StatusCode)
	}

	name := downloadName(resp.Header.Get("Content-Disposition"), req.URL, resp.Header.Get("Content-Type"))
	dst := filepath.Join(dir, name)
	if err := writeFile(dst, resp.Body); err != nil {
		return "", err
	}
	log.Infof("Downloaded %s to %s", target, dst)
	return dst, nil
}

func downloadName(disposition string, u *url.URL, contentType string) string {
	var name string
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			name = filepath.Base(params["filename"])
		}
	}
	if name == "" || name == "." || name == "/" {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = uuid.NewString()
	}
	if filepath.Ext(name) == "" {
		mediaType, _, _ := mime.ParseMediaType(contentType)
		name += contentTypeExt[mediaType]
	}
	return filePrefix + name
}
