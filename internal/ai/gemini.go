// Package ai talks to the generative language model used to draft audience
// rules and campaign copy.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nimasrn/crm-campaigns/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	ErrNotConfigured = errors.New("ai client is not configured")
	ErrEmptyResponse = errors.New("model returned no text")
)

// Client turns a prompt into generated text.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	// Models are tried in order until one answers.
	Models  []string
	Timeout time.Duration

	Dial fasthttp.DialFunc
}

type GeminiClient struct {
	config GeminiConfig
	client *fasthttp.Client
}

func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" || cfg.BaseURL == "" || len(cfg.Models) == 0 {
		return nil, ErrNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &GeminiClient{
		config: cfg,
		client: &fasthttp.Client{
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			Dial:                cfg.Dial,
		},
	}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, model := range c.config.Models {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := c.generate(ctx, model, body)
		if err == nil {
			return text, nil
		}
		logger.Warn("ai model failed, trying next", "model", model, "error", err)
		lastErr = err
	}
	return "", fmt.Errorf("all %d models failed: %w", len(c.config.Models), lastErr)
}

func (c *GeminiClient) generate(ctx context.Context, model string, body []byte) (string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.config.BaseURL, url.PathEscape(model), url.QueryEscape(c.config.APIKey))
	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode(), err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		if out.Error != nil {
			return "", fmt.Errorf("status %d: %s", resp.StatusCode(), out.Error.Message)
		}
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	var sb strings.Builder
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
