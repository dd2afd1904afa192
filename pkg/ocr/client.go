package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/perundhu/platform/pkg/common/logger"
)

// Language is one detected script/language with the engine's confidence in it.
type Language struct {
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
}

// Result is the normalized text bundle the rest of the pipeline consumes.
type Result struct {
	RawText           string     `json:"raw_text"`
	EnglishText       string     `json:"english_text"`
	Languages         []Language `json:"languages"`
	PrimaryLanguage   string     `json:"primary_language"`
	OverallConfidence float64    `json:"overall_confidence"`
}

// Failure is the terminal error type of the OCR boundary. Transient
// failures are retried up to the client's attempt budget before being
// surfaced; anything that escapes Extract is final.
type Failure struct {
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("ocr: %s: %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("ocr: %s", f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	backoff     time.Duration
}

func NewClient(baseURL string, timeout time.Duration, maxAttempts int, backoff time.Duration) *Client {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

type extractRequest struct {
	URL string `json:"url"`
}

type extractResponse struct {
	Success     bool       `json:"success"`
	Text        string     `json:"text"`
	TextEnglish string     `json:"text_english"`
	Confidence  float64    `json:"confidence"`
	Languages   []Language `json:"languages"`
	Error       string     `json:"error"`
}

// Extract asks the external engine to read the board image. Transport
// errors and 5xx responses are retried with backoff; a 4xx (unreadable
// image, unsupported format) is terminal on the first attempt.
func (c *Client) Extract(ctx context.Context, imageRef string) (*Result, error) {
	if imageRef == "" {
		return nil, &Failure{Reason: "empty image reference"}
	}

	body, err := json.Marshal(extractRequest{URL: imageRef})
	if err != nil {
		return nil, &Failure{Reason: "encoding request", Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, &Failure{Reason: "cancelled", Err: ctx.Err()}
			case <-time.After(c.backoff):
			}
		}

		result, retryable, err := c.doExtract(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		logger.Log.WithError(err).WithField("attempt", attempt).Warn("OCR extraction attempt failed")
	}

	return nil, &Failure{Reason: fmt.Sprintf("engine unavailable after %d attempts", c.maxAttempts), Err: lastErr}
}

func (c *Client) doExtract(ctx context.Context, body []byte) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract-from-url", bytes.NewReader(body))
	if err != nil {
		return nil, false, &Failure{Reason: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, &Failure{Reason: "engine request failed", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, true, &Failure{Reason: "reading engine response", Err: err}
	}

	if resp.StatusCode >= 500 {
		return nil, true, &Failure{Reason: fmt.Sprintf("engine returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, &Failure{Reason: fmt.Sprintf("engine rejected image with %d", resp.StatusCode)}
	}

	var decoded extractResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, false, &Failure{Reason: "decoding engine response", Err: err}
	}
	if !decoded.Success {
		reason := decoded.Error
		if reason == "" {
			reason = "engine reported failure"
		}
		return nil, false, &Failure{Reason: reason}
	}

	return normalize(decoded), false, nil
}

func normalize(resp extractResponse) *Result {
	english := resp.TextEnglish
	if english == "" {
		// Engine emits a single text field when the board is already
		// Latin-script; keep the pipeline contract uniform.
		english = resp.Text
	}

	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	primary := ""
	best := 0.0
	for _, lang := range resp.Languages {
		if lang.Confidence > best {
			best = lang.Confidence
			primary = lang.Code
		}
	}
	if primary == "" && len(resp.Languages) > 0 {
		primary = resp.Languages[0].Code
	}

	return &Result{
		RawText:           resp.Text,
		EnglishText:       english,
		Languages:         resp.Languages,
		PrimaryLanguage:   primary,
		OverallConfidence: confidence,
	}
}
