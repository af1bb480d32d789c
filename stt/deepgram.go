package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	gws "github.com/gorilla/websocket"
)

const (
	DefaultDeepgramURL = "wss://api.deepgram.com/v1/listen?model=nova-2&punctuate=true&smart_format=true"
	deepgramChunkSize  = 32 * 1024
)

// DeepgramProvider streams a file to Deepgram's live endpoint and collects
// the final transcripts.
type DeepgramProvider struct {
	APIKey   string
	Endpoint string
	Dialer   *gws.Dialer
}

type deepgramMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func NewDeepgramProvider(apiKey, endpoint string) *DeepgramProvider {
	if endpoint == "" {
		endpoint = DefaultDeepgramURL
	}
	return &DeepgramProvider{APIKey: apiKey, Endpoint: endpoint, Dialer: gws.DefaultDialer}
}

func (dg *DeepgramProvider) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	header := http.Header{"Authorization": {fmt.Sprintf("Token %s", dg.APIKey)}}
	conn, _, err := dg.Dialer.DialContext(ctx, dg.Endpoint, header)
	if err != nil {
		return "", fmt.Errorf("deepgram dial: %w", err)
	}
	defer conn.Close()
	log.Debugf("Connected to Deepgram for %s", path)

	// unblock the reader when ctx ends
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sendErr := make(chan error, 1)
	go func() { sendErr <- dg.send(conn, f) }()

	var parts []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if gws.IsCloseError(err, gws.CloseNormalClosure) || errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("deepgram read: %w", err)
		}
		var m deepgramMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			log.Warnf("Error parsing Deepgram response: %v", err)
			continue
		}
		if m.Type != "" && m.Type != "Results" {
			continue
		}
		if !m.IsFinal || len(m.Channel.Alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(m.Channel.Alternatives[0].Transcript); text != "" {
			parts = append(parts, text)
		}
	}
	if err := <-sendErr; err != nil {
		return "", err
	}
	return strings.Join(parts, " "), nil
}

// send writes the audio as binary frames and then asks Deepgram to flush
// and close the stream.
func (dg *DeepgramProvider) send(conn *gws.Conn, r io.Reader) error {
	buf := make([]byte, deepgramChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := conn.WriteMessage(gws.BinaryMessage, buf[:n]); werr != nil {
				return fmt.Errorf("deepgram write: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
	}
	if err := conn.WriteMessage(gws.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram close stream: %w", err)
	}
	return nil
}
