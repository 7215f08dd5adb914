package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/resilience"
)

// Client generates text through a local Ollama server. It is the offline
// stand-in for the managed text model.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	exec       *resilience.Executor
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithExecutor(exec *resilience.Executor) Option {
	return func(c *Client) { c.exec = exec }
}

func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return c
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Invoke sends a single non-streaming completion request.
func (c *Client) Invoke(ctx context.Context, prompt string, params domain.GenerationParams) (string, error) {
	request := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: params.Temperature,
			TopP:        params.TopP,
			NumPredict:  params.MaxTokens,
		},
	}

	text, err := resilience.Do(ctx, c.exec, "ollama.generate", func(ctx context.Context) (string, error) {
		var response generateResponse
		if err := c.postJSON(ctx, "/api/generate", request, &response, "generate"); err != nil {
			return "", err
		}
		return response.Response, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama generate", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("ollama generate: empty response")
	}
	return text, nil
}
