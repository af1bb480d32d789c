package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mrsingh-rishi/transcriber/model"
)

const DefaultBaseURL = "https://api.telegra.ph"

// ErrNoPageURL is returned when telegra.ph accepts the page but reports no URL.
var ErrNoPageURL = errors.New("telegraph response has no page url")

// Telegraph publishes articles as telegra.ph pages.
type Telegraph struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

func NewTelegraph(baseURL, accessToken string) *Telegraph {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Telegraph{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AccessToken: accessToken,
		Timeout:     30 * time.Second,
	}
}

type node struct {
	Tag      string   `json:"tag"`
	Children []string `json:"children"`
}

type createPageRequest struct {
	AccessToken   string `json:"access_token"`
	Title         string `json:"title"`
	AuthorName    string `json:"author_name,omitempty"`
	Content       []node `json:"content"`
	ReturnContent bool   `json:"return_content"`
}

type createPageResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result struct {
		URL string `json:"url"`
	} `json:"result"`
}

// Paragraphs turns article text into one p node per blank-line separated block.
func Paragraphs(text string) []node {
	var nodes []node
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		nodes = append(nodes, node{Tag: "p", Children: []string{p}})
	}
	return nodes
}

// Publish creates the page and returns its public URL.
func (t *Telegraph) Publish(ctx context.Context, author string, article model.ArticleData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	timeout := t.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout || timeout == 0 {
			timeout = left
		}
	}

	req := createPageRequest{
		AccessToken:   t.AccessToken,
		Title:         article.Title,
		AuthorName:    author,
		Content:       Paragraphs(article.Content),
		ReturnContent: true,
	}
	agent := fiber.Post(t.BaseURL + "/createPage").JSON(req)
	if timeout > 0 {
		agent = agent.Timeout(timeout)
	}
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return "", fmt.Errorf("telegraph request: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return "", fmt.Errorf("telegraph returned status %d", code)
	}

	var resp createPageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode telegraph response: %w", err)
	}
	if !resp.OK && resp.Error != "" {
		return "", fmt.Errorf("telegraph error: %s", resp.Error)
	}
	if resp.Result.URL == "" {
		return "", ErrNoPageURL
	}
	log.Infof("Published article %q at %s", article.Title, resp.Result.URL)
	return resp.Result.URL, nil
}
