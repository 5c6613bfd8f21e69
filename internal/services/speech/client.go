package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"reelsmith/internal/services"
)

const (
	defaultBaseURL         = "https://api.openai.com/v1"
	defaultTranscribeModel = "whisper-1"
	defaultTTSModel        = "tts-1"
	defaultVoice           = "alloy"
	defaultTimeout         = 5 * time.Minute
	granularitySegment     = "segment"
	responseVerboseJSON    = "verbose_json"
	transcribePath         = "/audio/transcriptions"
	speechPath             = "/audio/speech"
)

// Config captures provider settings.
type Config struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	TTSModel           string
	Voice              string
	TimeoutSeconds     int
}

// Client calls the transcription and speech endpoints.
type Client struct {
	cfg   Config
	http  *http.Client
	retry services.RetryPolicy
}

// Option customizes a client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryPolicy overrides the default backoff.
func WithRetryPolicy(policy services.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// NewClient constructs a speech client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:             strings.TrimSpace(cfg.APIKey),
			BaseURL:            strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			TranscriptionModel: firstNonEmpty(cfg.TranscriptionModel, defaultTranscribeModel),
			TTSModel:           firstNonEmpty(cfg.TTSModel, defaultTTSModel),
			Voice:              firstNonEmpty(cfg.Voice, defaultVoice),
			TimeoutSeconds:     cfg.TimeoutSeconds,
		},
		http:  &http.Client{Timeout: timeout},
		retry: services.DefaultRetryPolicy(),
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// DefaultVoice returns the configured synthesis voice.
func (c *Client) DefaultVoice() string {
	return c.cfg.Voice
}

// Transcription mirrors the verbose_json response fields used downstream.
type Transcription struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Segment is one timed span of the response.
type Segment struct {
	ID           int     `json:"id"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	AvgLogprob   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// Confidence converts the average log probability into 0..1.
func (s Segment) Confidence() float64 {
	if s.AvgLogprob == 0 {
		return 1
	}
	return math.Max(0, math.Min(1, math.Exp(s.AvgLogprob)))
}

// Transcribe uploads audio and returns the segmented transcription.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (Transcription, error) {
	if !c.Configured() {
		return Transcription{}, services.Wrap(services.ErrConfiguration, "", "speech transcribe", "api key required", nil)
	}
	if len(audio) == 0 {
		return Transcription{}, services.Wrap(services.ErrValidation, "", "speech transcribe", "audio is empty", nil)
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		filename = "audio.mp3"
	}

	var parsed Transcription
	err := c.retry.Do(ctx, "speech transcribe", func(ctx context.Context) error {
		body, contentType, err := transcriptionBody(c.cfg.TranscriptionModel, audio, filename)
		if err != nil {
			return err
		}
		payload, err := c.post(ctx, transcribePath, contentType, body)
		if err != nil {
			return err
		}
		parsed = Transcription{}
		if err := json.Unmarshal(payload, &parsed); err != nil {
			return fmt.Errorf("speech transcribe: decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		return Transcription{}, services.Wrap(services.ErrGateway, "", "speech transcribe", "", err)
	}
	parsed.Text = strings.TrimSpace(parsed.Text)
	return parsed, nil
}

// Synthesize converts text into mp3 audio using voice, or the configured voice
// when voice is empty.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "", "speech synthesize", "api key required", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "", "speech synthesize", "text required", nil)
	}
	encoded, err := json.Marshal(map[string]string{
		"model":           c.cfg.TTSModel,
		"input":           text,
		"voice":           firstNonEmpty(voice, c.cfg.Voice),
		"response_format": "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesize: encode body: %w", err)
	}

	var audio []byte
	err = c.retry.Do(ctx, "speech synthesize", func(ctx context.Context) error {
		payload, err := c.post(ctx, speechPath, "application/json", bytes.NewReader(encoded))
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			return &services.RetryableError{Err: fmt.Errorf("speech synthesize: empty audio")}
		}
		audio = payload
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrGateway, "", "speech synthesize", "", err)
	}
	return audio, nil
}

func transcriptionBody(model string, audio []byte, filename string) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := [][2]string{
		{"model", model},
		{"response_format", responseVerboseJSON},
		{"timestamp_granularities[]", granularitySegment},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("speech transcribe: write %s field: %w", f[0], err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("speech transcribe: create file field: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("speech transcribe: copy audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("speech transcribe: close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("speech request: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: http request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech request: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.NewHTTPStatusError("speech", resp, payload)
	}
	return payload, nil
}

// HealthCheck lists models to confirm the key is accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, "", "speech health", "api key required", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("speech health: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("speech health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return services.NewHTTPStatusError("speech", resp, payload)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
