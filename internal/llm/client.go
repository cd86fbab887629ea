// Package llm drives the HTTP request against the configured provider
// and hands raw response chunks to the stream demuxer.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/youruser/sled/internal/logging"
	"github.com/youruser/sled/internal/stream"
)

var (
	ErrRequestFailed = errors.New("API request failed")
	log              = logging.Get()
)

const (
	connectRetryInterval = 500 * time.Millisecond
	connectRetryLimit    = 3
)

// ChunkFunc receives each raw response body chunk as it arrives.
type ChunkFunc = func(chunk []byte)

// Client sends a streaming chat request to one provider. The response
// bytes are passed through untouched; decoding them is the demuxer's job.
type Client struct {
	provider   string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a client for "gemini" or "ollama".
func NewClient(provider, baseURL, apiKey, model string) *Client {
	return &Client{
		provider:   provider,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}
}

// Format returns the wire format the provider streams in.
func (c *Client) Format() stream.Format {
	if c.provider == "gemini" {
		return stream.FormatArray
	}
	return stream.FormatNDJSON
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Stream sends the request and feeds every received body chunk to
// onChunk until the stream ends or ctx is cancelled. Dial failures are
// retried with a constant interval before the first byte; once the body
// is open there are no retries, ordering would be lost.
func (c *Client) Stream(ctx context.Context, systemPrompt, userPrompt string, onChunk ChunkFunc) error {
	body, url, err := c.buildRequest(systemPrompt, userPrompt)
	if err != nil {
		return err
	}

	var resp *http.Response
	connect := func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		r, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			log.Error("HTTP request failed: %v", err)
			return err
		}
		if r.StatusCode != http.StatusOK {
			errBody, _ := io.ReadAll(r.Body)
			r.Body.Close()
			log.Error("API error %d: %s", r.StatusCode, string(errBody))
			return backoff.Permanent(fmt.Errorf("%w: %d - %s", ErrRequestFailed, r.StatusCode, string(errBody)))
		}
		resp = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(connectRetryInterval), connectRetryLimit),
		ctx)
	if err := backoff.Retry(connect, policy); err != nil {
		return err
	}
	defer resp.Body.Close()

	log.Debug("HTTP POST %s (provider: %s, model: %s)", url, c.provider, c.model)

	buf := make([]byte, 8*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			onChunk(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// User cancel closes the body mid-read; report the context
			// error so callers can tell a cancel from a broken stream.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("stream read failed: %v", err)
			return err
		}
	}
}

func (c *Client) buildRequest(systemPrompt, userPrompt string) ([]byte, string, error) {
	switch c.provider {
	case "gemini":
		reqBody := map[string]any{
			"system_instruction": map[string]any{
				"parts": []map[string]string{{"text": systemPrompt}},
			},
			"contents": []map[string]any{
				{
					"role":  "user",
					"parts": []map[string]string{{"text": userPrompt}},
				},
			},
		}
		body, err := json.Marshal(reqBody)
		if err != nil {
			return nil, "", err
		}
		url := fmt.Sprintf("%s/models/%s:streamGenerateContent?key=%s", c.baseURL, c.model, c.apiKey)
		return body, url, nil

	default: // ollama
		reqBody := map[string]any{
			"model": c.model,
			"messages": []map[string]string{
				{"role": "system", "content": systemPrompt},
				{"role": "user", "content": userPrompt},
			},
			"stream": true,
		}
		body, err := json.Marshal(reqBody)
		if err != nil {
			return nil, "", err
		}
		return body, c.baseURL + "/api/chat", nil
	}
}
