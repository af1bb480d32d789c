// Package server exposes the task pipeline over HTTP and websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/mrsingh-rishi/transcriber/call"
	"github.com/mrsingh-rishi/transcriber/model"
	"github.com/mrsingh-rishi/transcriber/output"
	"github.com/mrsingh-rishi/transcriber/types"
	"github.com/mrsingh-rishi/transcriber/upload"
)

const (
	msgInvalidFrame = "Invalid message format."
	msgNoURL        = "No URL provided. Please try again."
	msgTaskFailed   = "Error processing file. Please try again."
	docContentType  = "application/msword"
)

// Runner executes one task to completion.
type Runner interface {
	Run(ctx context.Context, req call.Request) error
}

// TaskReader answers status lookups.
type TaskReader interface {
	Get(taskID string) model.Task
}

type Server struct {
	app     *fiber.App
	runner  Runner
	tasks   TaskReader
	hub     *output.Hub
	baseDir string
	newID   func() string

	// background tasks started from websocket frames
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(runner Runner, tasks TaskReader, hub *output.Hub, baseDir string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		runner:  runner,
		tasks:   tasks,
		hub:     hub,
		baseDir: baseDir,
		newID:   uuid.NewString,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "transcriber",
		DisableStartupMessage: true,
		BodyLimit:             1 << 30,
	})
	s.routes()
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) routes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New())

	s.app.Get("/session", s.handleSession)
	s.app.Post("/upload-file", s.handleUpload(types.FlowTranscription))
	s.app.Post("/generate-article", s.handleUpload(types.FlowArticle))
	s.app.Get("/status/:taskId", s.handleStatus)
	s.app.Get(call.DownloadRoute+"/:dir/:taskId/:filename", s.handleDownload)

	// Middleware to require WebSocket upgrade on /ws
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleSocket))
}

func (s *Server) handleSession(c *fiber.Ctx) error {
	return c.JSON(types.SessionResponse{Username: "user_" + s.newID()})
}

func (s *Server) handleUpload(flow types.Flow) fiber.Handler {
	return func(c *fiber.Ctx) error {
		username := c.Get("username")
		if username == "" {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "username header is required"})
		}
		fh, err := c.FormFile("file")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "file is required"})
		}

		req := call.Request{
			TaskID:     s.newID(),
			UserID:     username,
			Source:     upload.MultipartSource{Header: fh},
			AuthorName: c.FormValue("authorName"),
			Flow:       flow,
		}
		log.Infof("Received %s request. Task ID: %s, File: %s", flow, req.TaskID, fh.Filename)

		if err := s.runner.Run(c.UserContext(), req); err != nil {
			msg := msgTaskFailed
			var se *call.StageError
			if errors.As(err, &se) {
				msg = se.Message
			}
			return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: msg})
		}
		return c.JSON(types.TaskAccepted{TaskID: req.TaskID, Status: string(model.StatusCompleted)})
	}
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.tasks.Get(c.Params("taskId")))
}

func (s *Server) handleDownload(c *fiber.Ctx) error {
	dir, filename := c.Params("dir"), c.Params("filename")
	log.Infof("Download request. Directory: %s, TaskID: %s, File: %s", dir, c.Params("taskId"), filename)
	if !plainName(dir) || !plainName(filename) {
		return fiber.ErrNotFound
	}
	path := filepath.Join(s.baseDir, dir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fiber.ErrNotFound
	}
	if err := c.Download(path, filename); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, docContentType)
	return nil
}

// plainName rejects anything that is not a single path element.
func plainName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}

func (s *Server) handleSocket(conn *websocket.Conn) {
	username := conn.Query("username")
	if username == "" {
		log.Warnf("WebSocket connection without username")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "username is required"))
		return
	}

	s.hub.Register(username, conn)
	defer s.hub.Unregister(username, conn)
	log.Infof("WebSocket connected for user %s", username)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Infof("WebSocket closed for user %s", username)
			} else {
				log.Warnf("WebSocket read error for user %s: %v", username, err)
			}
			return
		}
		s.handleFrame(username, msg)
	}
}

func (s *Server) handleFrame(username string, msg []byte) {
	var req types.ArticleRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		log.Warnf("Invalid frame from %s: %v", username, err)
		s.hub.Send(username, output.Error(msgInvalidFrame))
		return
	}
	if req.FileURL == "" {
		s.hub.Send(username, output.Error(msgNoURL))
		return
	}

	taskReq := call.Request{
		TaskID:     s.newID(),
		UserID:     username,
		Source:     upload.URLSource{URL: req.FileURL},
		AuthorName: req.AuthorName,
		Flow:       types.FlowArticle,
	}
	log.Infof("Received article request over WebSocket. Task ID: %s, URL: %s", taskReq.TaskID, req.FileURL)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.runner.Run(s.ctx, taskReq); err != nil {
			log.Errorf("Task %s failed: %v", taskReq.TaskID, err)
		}
	}()
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops accepting requests, cancels background tasks and waits
// for them to return.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
