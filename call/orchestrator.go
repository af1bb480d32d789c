// Package call runs one submitted task through its stages.
package call

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/mrsingh-rishi/transcriber/media"
	"github.com/mrsingh-rishi/transcriber/model"
	"github.com/mrsingh-rishi/transcriber/output"
	"github.com/mrsingh-rishi/transcriber/types"
	"github.com/mrsingh-rishi/transcriber/upload"
)

const (
	msgUpload        = "Error uploading file. Please try again."
	msgNoExtension   = "The file has no extension. Please select a valid file and try again."
	msgProbe         = "Error checking for audio track. Please try again."
	msgNoAudio       = "The file does not contain an audio track. Make sure to upload an appropriate file."
	msgExtract       = "Error extracting audio from the file. Please try again."
	msgTranscribe    = "Error converting audio file. Please try again."
	msgGenerate      = "Error generating article. Please try again."
	msgPublish       = "Error publishing article. Please try again."
	msgSave          = "Error saving transcription. Please try again."
	msgDeadline      = "Processing took too long. Please try again."
	msgNotConfigured = "Article generation is not available. Please try again later."

	// DownloadRoute prefixes the path of a saved transcription.
	DownloadRoute       = "/download-transcription"
	transcriptionSuffix = "_transcription.doc"
)

type StatusWriter interface {
	Update(taskID string, status model.Status)
	SetResult(taskID, url string)
}

type Notifier interface {
	Send(userID string, msg output.Message)
}

type MediaProber interface {
	HasAudioTrack(ctx context.Context, path string) (bool, error)
	ExtractAudio(ctx context.Context, path string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

type ArticleWriter interface {
	WriteArticle(ctx context.Context, transcript string) (model.ArticleData, error)
}

type Publisher interface {
	Publish(ctx context.Context, author string, article model.ArticleData) (string, error)
}

// Request is one submission.
type Request struct {
	TaskID     string
	UserID     string
	Source     upload.Source
	AuthorName string
	Flow       types.Flow
}

// Orchestrator owns the collaborators shared by every task. Writer and
// Publisher are only needed by the article flow.
type Orchestrator struct {
	Store        StatusWriter
	Notifier     Notifier
	Media        MediaProber
	Transcriber  Transcriber
	Writer       ArticleWriter
	Publisher    Publisher
	BaseDir      string
	StageTimeout time.Duration
	Now          func() time.Time
}

// Stage is one step of a pipeline. Status, when set, is entered before Run;
// When, when set, decides whether the stage runs at all.
type Stage struct {
	Name    string
	Status  model.Status
	Kind    Kind
	Message string
	When    func() bool
	Run     func(ctx context.Context) error
}

// Pipeline is run in order until the first failure.
type Pipeline []Stage

// task is the state threaded through the stages of one run.
type task struct {
	req        Request
	workDir    string
	sourcePath string
	audioPath  string
	extract    bool
	transcript string
	article    model.ArticleData
	pageURL    string
	docPath    string
	current    Stage
}

// Run executes the flow named by req and reports the terminal outcome
// through the store and the user's channel.
func (o *Orchestrator) Run(ctx context.Context, req Request) (err error) {
	t := &task{req: req}
	log.Infof("Starting %s task %s for user %s from %s", req.Flow, req.TaskID, req.UserID, req.Source.Describe())

	defer func() {
		if r := recover(); r != nil {
			st := t.current
			if st.Name == "" {
				st = Stage{Name: "start", Kind: UploadFailure, Message: msgUpload}
			}
			err = o.fail(t, o.classify(st, fmt.Errorf("panic: %v", r)))
		}
	}()

	var pipeline Pipeline
	switch req.Flow {
	case types.FlowArticle:
		if o.Writer == nil || o.Publisher == nil {
			o.enter(t, model.StatusUploading)
			return o.fail(t, &StageError{Stage: "configure", Kind: GenerationFailure, Message: msgNotConfigured, Err: errors.New("article flow is not configured")})
		}
		pipeline = o.articlePipeline(t)
	default:
		pipeline = o.transcriptionPipeline(t)
	}

	if err := o.execute(ctx, t, pipeline); err != nil {
		return err
	}
	o.complete(t)
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, t *task, pipeline Pipeline) error {
	for _, st := range pipeline {
		if st.When != nil && !st.When() {
			log.Debugf("Task %s: skipping stage %s", t.req.TaskID, st.Name)
			continue
		}
		t.current = st
		if st.Status != "" {
			o.enter(t, st.Status)
		}

		stageCtx, cancel := o.stageContext(ctx)
		start := time.Now()
		err := st.Run(stageCtx)
		cancel()
		if err != nil {
			return o.fail(t, o.classify(st, err))
		}
		log.Infof("Task %s: stage %s finished in %s", t.req.TaskID, st.Name, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.StageTimeout > 0 {
		return context.WithTimeout(ctx, o.StageTimeout)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) classify(st Stage, err error) *StageError {
	se := &StageError{Stage: st.Name, Kind: st.Kind, Message: st.Message, Err: err}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		se.Kind = DeadlineExceeded
		se.Message = msgDeadline
	case errors.Is(err, media.ErrNoExtension):
		se.Message = msgNoExtension
	case errors.Is(err, media.ErrNoAudioTrack):
		se.Message = msgNoAudio
	}
	return se
}

func (o *Orchestrator) enter(t *task, status model.Status) {
	log.Infof("Task %s: %s", t.req.TaskID, status)
	o.Store.Update(t.req.TaskID, status)
	o.Notifier.Send(t.req.UserID, output.Status(string(status)+"..."))
}

func (o *Orchestrator) fail(t *task, se *StageError) error {
	log.Errorf("Task %s failed in stage %s: %v", t.req.TaskID, se.Stage, se.Err)
	o.Store.Update(t.req.TaskID, model.StatusError)
	o.Notifier.Send(t.req.UserID, output.Error(se.Message))
	return se
}

func (o *Orchestrator) complete(t *task) {
	id := t.req.TaskID
	switch t.req.Flow {
	case types.FlowArticle:
		o.Store.SetResult(id, t.pageURL)
		o.Store.Update(id, model.StatusCompleted)
		o.Notifier.Send(t.req.UserID, output.Result(t.pageURL))
	default:
		link := DownloadPath(filepath.Base(t.workDir), id, filepath.Base(t.docPath))
		o.Store.SetResult(id, link)
		o.Store.Update(id, model.StatusCompleted)
		o.Notifier.Send(t.req.UserID, output.Download(link))
	}
	log.Infof("Task %s completed", id)
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// front is shared by both flows: store the file, check it, pull out audio.
func (o *Orchestrator) front(t *task) Pipeline {
	return Pipeline{
		{
			Name:    "upload",
			Status:  model.StatusUploading,
			Kind:    UploadFailure,
			Message: msgUpload,
			Run: func(ctx context.Context) error {
				dir, err := upload.CreateWorkDir(o.BaseDir, t.req.UserID, o.now())
				if err != nil {
					return err
				}
				t.workDir = dir
				path, err := t.req.Source.Fetch(ctx, dir)
				if err != nil {
					return err
				}
				t.sourcePath = path
				t.audioPath = path
				return nil
			},
		},
		{
			Name:    "probe",
			Kind:    ExtractionFailure,
			Message: msgProbe,
			Run: func(ctx context.Context) error {
				extract, err := media.NeedsExtraction(t.sourcePath)
				if err != nil {
					return err
				}
				ok, err := o.Media.HasAudioTrack(ctx, t.sourcePath)
				if err != nil {
					return err
				}
				if !ok {
					return media.ErrNoAudioTrack
				}
				t.extract = extract
				return nil
			},
		},
		{
			Name:    "extract",
			Status:  model.StatusExtracting,
			Kind:    ExtractionFailure,
			Message: msgExtract,
			When:    func() bool { return t.extract },
			Run: func(ctx context.Context) error {
				path, err := o.Media.ExtractAudio(ctx, t.sourcePath)
				if err != nil {
					return err
				}
				t.audioPath = path
				return nil
			},
		},
		{
			Name:    "transcribe",
			Status:  model.StatusTranscribing,
			Kind:    TranscriptionFailure,
			Message: msgTranscribe,
			Run: func(ctx context.Context) error {
				text, err := o.Transcriber.Transcribe(ctx, t.audioPath)
				if err != nil {
					return err
				}
				t.transcript = text
				return nil
			},
		},
	}
}

func (o *Orchestrator) articlePipeline(t *task) Pipeline {
	return append(o.front(t),
		Stage{
			Name:    "generate",
			Status:  model.StatusGenerating,
			Kind:    GenerationFailure,
			Message: msgGenerate,
			Run: func(ctx context.Context) error {
				article, err := o.Writer.WriteArticle(ctx, t.transcript)
				if err != nil {
					return err
				}
				t.article = article
				return nil
			},
		},
		Stage{
			Name:    "publish",
			Status:  model.StatusPublishing,
			Kind:    PublishFailure,
			Message: msgPublish,
			Run: func(ctx context.Context) error {
				url, err := o.Publisher.Publish(ctx, t.req.AuthorName, t.article)
				if err != nil {
					return err
				}
				t.pageURL = url
				return nil
			},
		},
	)
}

func (o *Orchestrator) transcriptionPipeline(t *task) Pipeline {
	return append(o.front(t),
		Stage{
			Name:    "save",
			Status:  model.StatusSaving,
			Kind:    SaveFailure,
			Message: msgSave,
			Run: func(ctx context.Context) error {
				path, err := SaveTranscription(t.sourcePath, t.transcript)
				if err != nil {
					return err
				}
				t.docPath = path
				return nil
			},
		},
	)
}

// SaveTranscription writes text next to the source file as
// <source stem>_transcription.doc.
func SaveTranscription(sourcePath, text string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	path := filepath.Join(filepath.Dir(sourcePath), stem+transcriptionSuffix)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("save transcription: %w", err)
	}
	log.Infof("Transcription saved to %s", path)
	return path, nil
}

// DownloadPath is the route that serves a saved transcription.
func DownloadPath(dir, taskID, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s", DownloadRoute, dir, taskID, filename)
}
