// Package config reads service settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr  string
	TempDirPath string
	LogLevel    log.Level

	FFmpegPath  string
	FFprobePath string

	// STTProvider is "whisper" or "deepgram".
	STTProvider    string
	DeepgramAPIKey string
	DeepgramURL    string

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	TranscriptionModel string
	ArticleModel       string
	Prompt             string

	TelegraphBaseURL     string
	TelegraphAccessToken string

	SplitDuration         time.Duration
	MaxConcurrentSegments int
	SegmentTimeout        time.Duration
	StageTimeout          time.Duration

	StatusTTL      time.Duration
	StatusCapacity int

	CleanupInterval      time.Duration
	Retention            time.Duration
	CleanupSkipMalformed bool
}

// ArticleEnabled reports whether the article flow has what it needs.
func (c *Config) ArticleEnabled() bool {
	return c.OpenAIAPIKey != "" && c.TelegraphAccessToken != "" && c.Prompt != ""
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, falling back to environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	r := reader{}
	cfg := &Config{
		ListenAddr:  r.str("LISTEN_ADDR", ":3000"),
		TempDirPath: r.str("TEMP_DIR_PATH", "./data"),
		LogLevel:    r.level("LOG_LEVEL", log.LevelInfo),

		FFmpegPath:  r.str("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: r.str("FFPROBE_PATH", "ffprobe"),

		STTProvider:    strings.ToLower(r.str("STT_PROVIDER", "whisper")),
		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramURL:    os.Getenv("DEEPGRAM_URL"),

		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		TranscriptionModel: r.str("TRANSCRIPTION_MODEL", "whisper-1"),
		ArticleModel:       r.str("ARTICLE_MODEL", "gpt-4o-mini"),
		Prompt:             os.Getenv("PROMPT"),

		TelegraphBaseURL:     r.str("TELEGRAPH_BASE_URL", "https://api.telegra.ph"),
		TelegraphAccessToken: os.Getenv("TELEGRAPH_ACCESS_TOKEN"),

		SplitDuration:         r.duration("SPLIT_DURATION", 20*time.Minute),
		MaxConcurrentSegments: r.integer("MAX_CONCURRENT_SEGMENTS", 4),
		SegmentTimeout:        r.duration("SEGMENT_TIMEOUT", 10*time.Minute),
		StageTimeout:          r.duration("STAGE_TIMEOUT", 30*time.Minute),

		StatusTTL:      r.duration("STATUS_TTL", 24*time.Hour),
		StatusCapacity: r.integer("STATUS_CAPACITY", 10000),

		CleanupInterval:      r.duration("CLEANUP_INTERVAL", time.Hour),
		Retention:            r.duration("RETENTION", 24*time.Hour),
		CleanupSkipMalformed: r.boolean("CLEANUP_SKIP_MALFORMED", false),
	}
	if r.err != nil {
		return nil, r.err
	}
	switch cfg.STTProvider {
	case "whisper":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set")
		}
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			return nil, fmt.Errorf("DEEPGRAM_API_KEY must be set when STT_PROVIDER=deepgram")
		}
	default:
		return nil, fmt.Errorf("unknown STT_PROVIDER %q", cfg.STTProvider)
	}
	if cfg.MaxConcurrentSegments < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_SEGMENTS must be at least 1, got %d", cfg.MaxConcurrentSegments)
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive, got %s", cfg.CleanupInterval)
	}
	return cfg, nil
}

// reader keeps the first parse error so FromEnv can report it once.
type reader struct {
	err error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *reader) level(key string, def log.Level) log.Level {
	switch strings.ToLower(os.Getenv(key)) {
	case "":
		return def
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "info":
		return log.LevelInfo
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		r.fail(key, os.Getenv(key), fmt.Errorf("unknown level"))
		return def
	}
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}
