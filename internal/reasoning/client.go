// Package reasoning talks to an OpenAI-compatible chat completion endpoint.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mohammad-safakhou/sopguard/internal/httpjson"
	"github.com/mohammad-safakhou/sopguard/internal/telemetry"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 4000
	DefaultTimeout     = 60 * time.Second
)

// Completer turns a prompt into the model's raw text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ServiceError covers every way a completion can fail: transport, timeout, non-2xx, empty reply.
type ServiceError struct {
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("reasoning service status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("reasoning service: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Config configures Client.
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// Client makes exactly one attempt per Complete call, bounded by Timeout.
type Client struct {
	cfg     Config
	http    *httpjson.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

var _ Completer = (*Client)(nil)

func NewClient(cfg Config, logger *log.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[REASONING] ", log.LstdFlags)
	}
	return &Client{cfg: cfg, http: httpjson.New(cfg.Timeout, 0, 0), limiter: limiter, logger: logger}
}

func (c *Client) Model() string { return c.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := c.complete(ctx, prompt)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.logger.Printf("warn: completion failed after %v: %v", time.Since(start).Round(time.Millisecond), err)
	}
	telemetry.RecordReasoningCall(ctx, outcome, time.Since(start))
	return out, err
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &ServiceError{Err: errors.New("api key not configured")}
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &ServiceError{Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	req := chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", headers, req, &resp); err != nil {
		var se *httpjson.StatusError
		if errors.As(err, &se) {
			return "", &ServiceError{StatusCode: se.StatusCode, Err: err}
		}
		return "", &ServiceError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ServiceError{Err: errors.New("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}
