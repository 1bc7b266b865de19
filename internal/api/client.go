package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/abhisek/rehearse/internal/media"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultBeaconTimeout = 3 * time.Second

	// maxErrorBody caps how much of a failed response is kept in StatusError.
	maxErrorBody = 2048
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the API root; session paths are appended to it.
	BaseURL string

	// TokenSource supplies bearer tokens. Nil sends unauthenticated requests.
	TokenSource oauth2.TokenSource

	// Timeout bounds each synchronous request.
	Timeout time.Duration

	// BeaconTimeout bounds each background beacon.
	BeaconTimeout time.Duration

	// Transport overrides the underlying round tripper.
	Transport http.RoundTripper
}

// Client talks to the practice backend over HTTP.
type Client struct {
	base          *url.URL
	http          *http.Client
	beaconTimeout time.Duration
	log           zerolog.Logger

	beacons sync.WaitGroup
}

// NewClient creates a Client from cfg.
func NewClient(cfg ClientConfig, log zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base URL scheme %q", base.Scheme)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BeaconTimeout <= 0 {
		cfg.BeaconTimeout = defaultBeaconTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	hc := &http.Client{Transport: transport}
	if cfg.TokenSource != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, cfg.TokenSource)
	}
	hc.Timeout = cfg.Timeout

	return &Client{
		base:          base,
		http:          hc,
		beaconTimeout: cfg.BeaconTimeout,
		log:           log.With().Str("component", "api").Logger(),
	}, nil
}

// UpdateStatus sends PATCH /sessions/{id}/status.
func (c *Client) UpdateStatus(ctx context.Context, sessionID string, u StatusUpdate) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.endpoint("sessions", sessionID, "status"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

// UploadRecording sends POST /sessions/{id}/recordings/{index} as multipart
// form data with the answer in field "file".
func (c *Client) UploadRecording(ctx context.Context, sessionID string, index int, blob media.Blob) (*Attempt, error) {
	body, contentType, err := encodeRecording(index, blob)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("sessions", sessionID, "recordings", strconv.Itoa(index)), body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return decodeAttempt(raw)
}

// Beacon sends a status change from a background goroutine. Failures are
// logged and otherwise dropped.
func (c *Client) Beacon(sessionID string, u StatusUpdate) {
	c.beacons.Add(1)
	go func() {
		defer c.beacons.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.beaconTimeout)
		defer cancel()
		if err := c.UpdateStatus(ctx, sessionID, u); err != nil {
			c.log.Warn().Err(err).Str("session_id", sessionID).Str("status", string(u.Status)).Msg("beacon failed")
		}
	}()
}

// Flush waits for outstanding beacons or until ctx is done.
func (c *Client) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.beacons.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.Join(parts, "/")
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	return u.String()
}

// do executes req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ErrUnavailable{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ErrUnavailable{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ErrUnavailable{Err: serr}
	}
	return nil, serr
}

func encodeRecording(index int, blob media.Blob) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("question_index", strconv.Itoa(index)); err != nil {
		return nil, "", fmt.Errorf("write question_index: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="answer-%d%s"`, index, blob.Extension()))
	h.Set("Content-Type", blob.MIMEType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(blob.Bytes()); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var _ Backend = (*Client)(nil)
var _ Flusher = (*Client)(nil)

// IsAuthError reports whether err means the user must sign in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
