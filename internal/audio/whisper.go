package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"rag-media-search/internal/domain"
)

// DefaultMaxUploadBytes matches the 25 MB limit of the whisper transcription
// endpoint. Larger audio must be pre-split by the caller.
const DefaultMaxUploadBytes = 25 << 20

type WhisperConfig struct {
	BaseURL        string
	APIKeyEnv      string
	Model          string
	Timeout        time.Duration
	MaxUploadBytes int64
}

// WhisperClient implements domain.Transcriber over the OpenAI audio
// transcriptions API with verbose segment timestamps.
type WhisperClient struct {
	baseURL  string
	apiKey   string
	model    string
	maxBytes int64
	client   *http.Client
}

func NewWhisperClient(cfg WhisperConfig) (*WhisperClient, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set",
			domain.ErrConfiguration, cfg.APIKeyEnv)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &WhisperClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type whisperResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

// Transcribe uploads one audio file and returns its timestamped segments.
// size must not exceed the upload limit; oversized files are the caller's
// responsibility to split before calling.
func (c *WhisperClient) Transcribe(ctx context.Context, fileName string, audio io.Reader, size int64) ([]domain.TranscriptSegment, error) {
	if size > c.maxBytes {
		return nil, fmt.Errorf("%w: audio file %s is %d bytes, limit is %d",
			domain.ErrConfiguration, fileName, size, c.maxBytes)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	_ = form.WriteField("model", c.model)
	_ = form.WriteField("response_format", "verbose_json")
	_ = form.WriteField("timestamp_granularities[]", "segment")
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: transcription: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: transcription failed: %s", domain.ErrServiceUnavailable, resp.Status)
	}

	var out whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}
	segments := make([]domain.TranscriptSegment, 0, len(out.Segments))
	for _, seg := range out.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, domain.TranscriptSegment{
			Text:  text,
			Start: seg.Start,
			End:   seg.End,
		})
	}
	if len(segments) == 0 && strings.TrimSpace(out.Text) != "" {
		segments = append(segments, domain.TranscriptSegment{Text: strings.TrimSpace(out.Text)})
	}
	return segments, nil
}
