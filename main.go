package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/mrsingh-rishi/transcriber/call"
	"github.com/mrsingh-rishi/transcriber/cleanup"
	"github.com/mrsingh-rishi/transcriber/config"
	"github.com/mrsingh-rishi/transcriber/llm"
	"github.com/mrsingh-rishi/transcriber/media"
	"github.com/mrsingh-rishi/transcriber/output"
	"github.com/mrsingh-rishi/transcriber/publish"
	"github.com/mrsingh-rishi/transcriber/server"
	"github.com/mrsingh-rishi/transcriber/status"
	"github.com/mrsingh-rishi/transcriber/stt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	if err := os.MkdirAll(cfg.TempDirPath, 0o755); err != nil {
		log.Fatalf("Cannot create %s: %v", cfg.TempDirPath, err)
	}

	store := status.NewStore(status.WithTTL(cfg.StatusTTL), status.WithCapacity(cfg.StatusCapacity))
	hub := output.NewHub()
	segmenter := media.NewSegmenter(cfg.FFmpegPath, cfg.FFprobePath)

	var provider stt.Provider
	switch cfg.STTProvider {
	case "deepgram":
		provider = stt.NewDeepgramProvider(cfg.DeepgramAPIKey, cfg.DeepgramURL)
	default:
		provider = stt.NewWhisperProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TranscriptionModel)
	}
	log.Infof("Transcribing with %s", cfg.STTProvider)
	dispatcher := stt.NewDispatcher(provider, segmenter, cfg.SplitDuration, cfg.MaxConcurrentSegments, cfg.SegmentTimeout)

	orchestrator := &call.Orchestrator{
		Store:        store,
		Notifier:     hub,
		Media:        segmenter,
		Transcriber:  dispatcher,
		BaseDir:      cfg.TempDirPath,
		StageTimeout: cfg.StageTimeout,
	}
	if cfg.ArticleEnabled() {
		writer, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Prompt, cfg.ArticleModel)
		if err != nil {
			log.Fatalf("Cannot create article writer: %v", err)
		}
		orchestrator.Writer = writer
		orchestrator.Publisher = publish.NewTelegraph(cfg.TelegraphBaseURL, cfg.TelegraphAccessToken)
	} else {
		log.Warn("OPENAI_API_KEY, TELEGRAPH_ACCESS_TOKEN or PROMPT not set, article generation is disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := cleanup.NewSweeper(cfg.TempDirPath, cfg.Retention, cfg.CleanupSkipMalformed)
	go sweeper.Run(ctx, cfg.CleanupInterval)
	go sweepStatuses(ctx, store, cfg.CleanupInterval)

	srv := server.New(orchestrator, store, hub, cfg.TempDirPath)
	go func() {
		log.Infof("Fiber server listening on %s", cfg.ListenAddr)
		if err := srv.Listen(cfg.ListenAddr); err != nil {
			log.Errorf("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Shutdown: %v", err)
	}
}

// sweepStatuses drops expired task statuses on every tick.
func sweepStatuses(ctx context.Context, store *status.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				log.Debugf("Dropped %d expired task statuses", n)
			}
		}
	}
}
