package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/flowbot/media-migrator/internal/config"
	"github.com/flowbot/media-migrator/pkg/metrics"
	"github.com/lthibault/jitterbug/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const maxErrorBody = 4 * 1024

var (
	ErrUnsupportedMediaKind = errors.New("unsupported media kind")
	ErrMalformedResponse    = errors.New("malformed registrar response")
	ErrRetriesExhausted     = errors.New("registrar retries exhausted")

	errTransient = errors.New("transient registrar failure")
)

type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

var kindsByExtension = map[string]MediaKind{
	"jpg":  KindImage,
	"jpeg": KindImage,
	"png":  KindImage,
	"gif":  KindImage,
	"mp4":  KindVideo,
}

// KindOf derives the attachment type from the file extension of assetURL.
func KindOf(assetURL string) (MediaKind, error) {
	p := assetURL
	if u, err := url.Parse(assetURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	kind, ok := kindsByExtension[ext]
	if !ok {
		return "", errors.Wrapf(ErrUnsupportedMediaKind, "extension %q", ext)
	}
	return kind, nil
}

type Option func(c *Client)

// Client registers re-hosted assets as reusable message attachments.
type Client struct {
	httpClient    *http.Client
	attachmentURL string
	accessToken   string
	retryCap      int
	backoff       time.Duration
	maxBackoff    time.Duration
	timeout       time.Duration
}

func New(cfg *config.RegistrarConfig, opts ...Option) *Client {
	c := &Client{
		httpClient:    http.DefaultClient,
		attachmentURL: cfg.AttachmentURL,
		accessToken:   cfg.AccessToken,
		retryCap:      cfg.RetryCap,
		backoff:       cfg.Backoff,
		maxBackoff:    cfg.MaxBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	if c.retryCap < 0 {
		c.retryCap = 0
	}
	return c
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRequestTimeout bounds every single submission.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

type attachmentRequest struct {
	Message message `json:"message"`
}

type message struct {
	Attachment attachment `json:"attachment"`
}

type attachment struct {
	Type    MediaKind `json:"type"`
	Payload payload   `json:"payload"`
}

type payload struct {
	IsReusable bool   `json:"is_reusable"`
	URL        string `json:"url"`
}

type attachmentResponse struct {
	AttachmentID string `json:"attachment_id"`
}

// Register submits assetURL and returns the attachment id. Non-success
// responses are retried up to the retry cap, so at most cap+1 submissions
// are made. Unsupported kinds and malformed responses fail immediately.
func (c *Client) Register(ctx context.Context, assetURL string) (string, error) {
	kind, err := KindOf(assetURL)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(attachmentRequest{
		Message: message{Attachment: attachment{Type: kind, Payload: payload{IsReusable: true, URL: assetURL}}},
	})
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCap; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return "", errors.Wrap(err, "registration interrupted")
			}
		}

		id, err := c.submit(ctx, body)
		if err == nil {
			metrics.IncreaseRegistrarAttemptsMetric("success")
			return id, nil
		}

		if !errors.Is(err, errTransient) {
			metrics.IncreaseRegistrarAttemptsMetric("rejected")
			return "", err
		}

		metrics.IncreaseRegistrarAttemptsMetric("retry")
		lastErr = err
		zap.S().Named("registrar").Warnw("registrar submission failed", "url", assetURL, "attempt", attempt+1, "retries_left", c.retryCap-attempt, "error", err)
	}

	return "", errors.Wrapf(ErrRetriesExhausted, "after %d attempts: %v", c.retryCap+1, lastErr)
}

func (c *Client) submit(parent context.Context, body []byte) (string, error) {
	ctx := parent
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint, err := url.Parse(c.attachmentURL)
	if err != nil {
		return "", errors.Wrap(err, "invalid attachment url")
	}
	q := endpoint.Query()
	q.Set("access_token", c.accessToken)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// a request timing out is retried, the caller giving up is not
		if parent.Err() != nil {
			return "", err
		}
		return "", errors.Wrapf(errTransient, "%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", errors.Wrapf(errTransient, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result attachmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Wrapf(ErrMalformedResponse, "%v", err)
	}
	if result.AttachmentID == "" {
		return "", errors.Wrap(ErrMalformedResponse, "missing attachment_id")
	}

	return result.AttachmentID, nil
}

func (c *Client) wait(ctx context.Context, attempt int) error {
	d := Backoff(c.backoff, c.maxBackoff, attempt)
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff returns the jittered delay before the given retry (1-based): base
// doubled per retry, capped at maxDelay.
func Backoff(base, maxDelay time.Duration, retry int) time.Duration {
	if base <= 0 || retry <= 0 {
		return 0
	}

	d := base
	for i := 1; i < retry && (maxDelay <= 0 || d < maxDelay); i++ {
		d *= 2
	}
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}

	jittered := (&jitterbug.Norm{Stdev: d / 4}).Jitter(d)
	if jittered < base/2 {
		jittered = base / 2
	}
	if maxDelay > 0 && jittered > maxDelay {
		jittered = maxDelay
	}
	return jittered
}
