package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tag-bridge/internal/entity"
	"tag-bridge/internal/logger"
)

const DefaultJobTimeout = 300 * time.Second

type Options struct {
	BaseURL string
	// CorrelationID identifies this bridge to the engine. Generated when empty.
	CorrelationID string

	HTTPClient *http.Client
	Dialer     Dialer
	Logger     *logger.Logger
}

// Client drives one local engine. It holds one correlation id for its lifetime.
type Client struct {
	baseURL       string
	correlationID string

	httpClient *http.Client
	dialer     Dialer
	log        *logger.Logger
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("engine baseURL required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("engine baseURL: %w", err)
	}

	cid := strings.TrimSpace(opts.CorrelationID)
	if cid == "" {
		cid = uuid.NewString()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	d := opts.Dialer
	if d == nil {
		d = WSDialer{Dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second}}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		baseURL:       baseURL,
		correlationID: cid,
		httpClient:    hc,
		dialer:        d,
		log:           log.With("component", "engine"),
	}, nil
}

func (c *Client) BaseURL() string       { return c.baseURL }
func (c *Client) CorrelationID() string { return c.correlationID }

type promptRequest struct {
	Prompt   Graph  `json:"prompt"`
	ClientID string `json:"client_id"`
}

type promptResponse struct {
	PromptID string `json:"prompt_id"`
}

// Submit queues graph on the engine and returns the engine-assigned job id.
// Every failure is a *SubmissionError.
func (c *Client) Submit(ctx context.Context, graph Graph) (string, error) {
	var resp promptResponse
	if err := c.doJSON(ctx, http.MethodPost, "/prompt", promptRequest{Prompt: graph, ClientID: c.correlationID}, &resp); err != nil {
		return "", &SubmissionError{Err: err}
	}
	if strings.TrimSpace(resp.PromptID) == "" {
		return "", &SubmissionError{Err: fmt.Errorf("%w: missing prompt_id", ErrMalformedResponse)}
	}
	c.log.Debug("prompt queued", "job_id", resp.PromptID)
	return resp.PromptID, nil
}

// AwaitCompletion waits on one event subscription for the job's terminal
// event, then returns the job's recorded outputs. The subscription is closed
// exactly once on every return path.
func (c *Client) AwaitCompletion(ctx context.Context, jobID string, timeout time.Duration) (entity.RawOutputMap, error) {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	deadline := time.Now().Add(timeout)

	stream, err := c.dialer.Dial(ctx, c.eventsURL())
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe: %v", ErrTransport, err)
	}
	defer stream.Close()

	// The job may have finished before the subscription opened.
	if out, found, err := c.lookup(ctx, jobID); err == nil && found {
		c.log.Debug("job finished before subscribe", "job_id", jobID)
		return out, nil
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	if err := stream.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %v", ErrTransport, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: job %s after %s", ErrTimeout, jobID, timeout)
		}

		msgType, data, err := stream.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if isTimeout(err) || time.Now().After(deadline) {
				return nil, fmt.Errorf("%w: job %s after %s", ErrTimeout, jobID, timeout)
			}
			return nil, fmt.Errorf("%w: read event: %v", ErrTransport, err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ev, ok := parseEvent(data)
		if !ok {
			continue
		}
		if ev.Type == eventError && ev.Data.PromptID == jobID {
			c.log.Warn("engine reported execution error", "job_id", jobID)
			continue
		}
		if !ev.finishes(jobID) {
			continue
		}

		return c.History(ctx, jobID)
	}
}

// History returns the recorded outputs of a finished job.
func (c *Client) History(ctx context.Context, jobID string) (entity.RawOutputMap, error) {
	out, found, err := c.lookup(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: no history for job %s", ErrMalformedResponse, jobID)
	}
	return out, nil
}

type historyEntry struct {
	Outputs entity.RawOutputMap `json:"outputs"`
}

func (c *Client) lookup(ctx context.Context, jobID string) (entity.RawOutputMap, bool, error) {
	var hist map[string]historyEntry
	if err := c.doJSON(ctx, http.MethodGet, "/history/"+url.PathEscape(jobID), nil, &hist); err != nil {
		return nil, false, err
	}
	entry, ok := hist[jobID]
	if !ok {
		return nil, false, nil
	}
	if entry.Outputs == nil {
		entry.Outputs = entity.RawOutputMap{}
	}
	return entry.Outputs, true, nil
}

// Ping checks that the engine answers HTTP at its base URL.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &HTTPError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) eventsURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws?clientId=" + url.QueryEscape(c.correlationID)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	_ = resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
