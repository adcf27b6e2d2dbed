package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ProviderResult is the distilled outcome of a provider call.
type ProviderResult struct {
	Text     string
	Duration float64
}

// Provider is the external speech-to-text service: audio bytes in,
// transcript text and audio duration out.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (ProviderResult, error)
}

// DeepgramConfig configures the outbound provider client.
type DeepgramConfig struct {
	URL      string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// DeepgramClient proxies audio to the Deepgram listen API. Calls run to
// completion or timeout; there is no retry.
type DeepgramClient struct {
	cfg  DeepgramConfig
	http *http.Client
}

// NewDeepgramClient builds the provider client with a bounded timeout.
func NewDeepgramClient(cfg DeepgramConfig) *DeepgramClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &DeepgramClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe forwards the raw audio payload and parses the provider
// response. Missing transcript or duration fields default to ""/0 rather
// than failing the call.
func (c *DeepgramClient) Transcribe(ctx context.Context, audio []byte, contentType string) (ProviderResult, error) {
	endpoint, err := url.Parse(c.cfg.URL)
	if err != nil {
		return ProviderResult{}, fmt.Errorf("provider: parse url: %w", err)
	}
	q := endpoint.Query()
	q.Set("model", c.cfg.Model)
	q.Set("language", c.cfg.Language)
	q.Set("smart_format", "true")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(audio))
	if err != nil {
		return ProviderResult{}, fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return ProviderResult{}, fmt.Errorf("provider: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ProviderResult{}, fmt.Errorf("provider: status %d", resp.StatusCode)
	}

	var parsed deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ProviderResult{}, fmt.Errorf("provider: decode response: %w", err)
	}

	result := ProviderResult{Duration: parsed.Metadata.Duration}
	if len(parsed.Results.Channels) > 0 && len(parsed.Results.Channels[0].Alternatives) > 0 {
		result.Text = parsed.Results.Channels[0].Alternatives[0].Transcript
	}
	return result, nil
}
