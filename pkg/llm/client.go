// Package llm is a stateless adapter over the remote text-generation API.
// It owns transport, auth, the credential pool, per-key cooldown, and
// failure classification; prompt content and envelope validation belong to
// the caller.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Config holds the client settings.
type Config struct {
	APIKeys     []string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	KeyCooldown time.Duration
}

// Client calls the generateContent endpoint with round-robin key rotation.
// Safe for concurrent use.
type Client struct {
	http    *http.Client
	pool    *keyPool
	baseURL string
	model   string
	timeout time.Duration
}

// NewClient builds a client from cfg. At least one API key is required.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("llm: at least one API key is required")
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		pool:    newKeyPool(cfg.APIKeys, cfg.KeyCooldown),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// UsableKeys returns the number of keys not permanently disabled.
func (c *Client) UsableKeys() int { return c.pool.usableCount() }

// CoolingKeys returns the number of keys currently in cooldown.
func (c *Client) CoolingKeys() int { return c.pool.coolingCount() }

// Request/response envelope for the generateContent wire format.

type generateRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateJSON sends the system instruction and user prompt, requesting a
// JSON response, and returns the concatenated response text. Keys rotate
// within the call: rate-limit and quota responses cool the current key and
// move on, auth rejections disable it, and a 5xx is retried once on the
// same key. The call fails fast once every key is cooling or disabled.
func (c *Client) GenerateJSON(ctx context.Context, systemInstruction, userPrompt string) (string, error) {
	for {
		key, err := c.pool.acquire()
		if err != nil {
			return "", err
		}

		text, err := c.generateWithKey(ctx, key, systemInstruction, userPrompt)
		if err == nil {
			return text, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return "", err
		}
		switch apiErr.Kind {
		case KindAuth:
			c.pool.disable(key)
		case KindRateLimited, KindQuotaExceeded:
			c.pool.markCooling(key)
		default:
			// Transient, timeout, and parse failures are not the key's
			// fault; surface them for the caller's retry policy.
			return "", err
		}
	}
}

// generateWithKey performs one request with a single key, retrying once on
// a 5xx response.
func (c *Client) generateWithKey(ctx context.Context, key, systemInstruction, userPrompt string) (string, error) {
	text, err := c.doRequest(ctx, key, systemInstruction, userPrompt)
	if err == nil {
		return text, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == KindTransient && apiErr.StatusCode >= 500 {
		return c.doRequest(ctx, key, systemInstruction, userPrompt)
	}
	return "", err
}

func (c *Client) doRequest(ctx context.Context, key, systemInstruction, userPrompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: userPrompt}},
		}},
		GenerationConfig: generationConfig{ResponseMIMEType: "application/json"},
	}
	if systemInstruction != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: systemInstruction}}}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", &APIError{Kind: KindParse, Message: fmt.Sprintf("encode request: %v", err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &APIError{Kind: KindTransient, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", &APIError{Kind: KindTimeout, Message: err.Error()}
		}
		return "", &APIError{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &APIError{Kind: KindTransient, StatusCode: resp.StatusCode, Message: fmt.Sprintf("read body: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, body)
	}

	var envelope generateResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", &APIError{Kind: KindParse, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return "", &APIError{Kind: KindParse, StatusCode: resp.StatusCode, Message: "response contains no candidates"}
	}

	var sb strings.Builder
	for _, p := range envelope.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// classifyStatus maps a non-200 response to the error taxonomy.
func classifyStatus(statusCode int, body []byte) *APIError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	lower := strings.ToLower(msg)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &APIError{Kind: KindAuth, StatusCode: statusCode, Message: msg}
	case strings.Contains(lower, "quota") && strings.Contains(lower, "exceeded"):
		return &APIError{Kind: KindQuotaExceeded, StatusCode: statusCode, Message: msg}
	case statusCode == http.StatusTooManyRequests || strings.Contains(lower, "rate limit"):
		return &APIError{Kind: KindRateLimited, StatusCode: statusCode, Message: msg}
	case statusCode >= 500:
		return &APIError{Kind: KindTransient, StatusCode: statusCode, Message: msg}
	default:
		return &APIError{Kind: KindParse, StatusCode: statusCode, Message: msg}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
