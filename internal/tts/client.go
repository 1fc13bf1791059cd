// Package tts provides the HTTP client for the speech synthesis service.
package tts

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

	"github.com/articast/articast/internal/core"
)

// API endpoints.
const (
	apiSynthesize = "/v1/synthesize"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Static errors for synthesis failures.
var (
	// ErrEmptySSML indicates a synthesis request without SSML input.
	ErrEmptySSML = errors.New("ssml cannot be empty")
	// ErrEmptyAudio indicates the service returned a response with no audio data.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrSynthesisFailed indicates the service rejected or failed a request.
	ErrSynthesisFailed = errors.New("speech synthesis failed")
)

// Client talks to the standalone speech synthesis HTTP service. It
// implements core.SpeechSynthesizer.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// synthesizeRequest is the JSON payload for a synthesis request.
type synthesizeRequest struct {
	SSML          string `json:"ssml"`
	Voice         string `json:"voice"`
	LanguageCode  string `json:"language_code"`
	AudioEncoding string `json:"audio_encoding"`
}

// errorResponse is the structured error body the service returns on
// failed requests.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewClient creates a client for the synthesis service. The baseURL
// should include protocol and port (e.g. "http://localhost:8000"). The
// timeout applies to every request, including audio download.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize sends one SSML fragment to the service and returns the raw
// audio bytes in the requested encoding.
func (c *Client) Synthesize(ctx context.Context, req core.SynthesisRequest) ([]byte, error) {
	if strings.TrimSpace(req.SSML) == "" {
		return nil, ErrEmptySSML
	}

	payload := synthesizeRequest{
		SSML:          req.SSML,
		Voice:         req.VoiceName,
		LanguageCode:  req.LanguageCode,
		AudioEncoding: req.AudioEncoding,
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	url := c.baseURL + apiSynthesize

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to reach synthesis service at %s: %w",
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// HealthCheck verifies the synthesis service is up. Callers should run
// it before fanning out a large batch of fragments to fail fast.
func (c *Client) HealthCheck(ctx context.Context) error {
	url := c.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf(
			"health check failed for synthesis service at %s: %w",
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %s", ErrSynthesisFailed, resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured error body, falling back to
// the raw body so diagnostics survive non-JSON failures.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp errorResponse

	err := json.NewDecoder(resp.Body).Decode(&errResp)
	if err == nil && errResp.Detail != "" {
		return fmt.Errorf("%w: %s: %s (code: %s)",
			ErrSynthesisFailed, resp.Status, errResp.Detail, errResp.ErrorCode)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf("%w: %s: %s", ErrSynthesisFailed, resp.Status, string(body))
}
