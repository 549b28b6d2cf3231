package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"tag-bridge/internal/entity"
	"tag-bridge/internal/logger"
)

var ErrTransport = errors.New("remote transport failure")

// StatusError is a non-2xx response from the review service.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s %s: status=%d body=%s", e.Method, e.Path, e.StatusCode, body)
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Client talks to the remote review service. Calls pass through a circuit
// breaker so a dead server is not hammered once per item.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	log        *logger.Logger
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("remote baseURL required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "remote")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})

	return &Client{baseURL: baseURL, httpClient: hc, cb: cb, log: log}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

type pendingResponse struct {
	Images []entity.WorkItem `json:"images"`
	Total  int               `json:"total"`
}

// PendingItems lists up to limit unprocessed items.
func (c *Client) PendingItems(ctx context.Context, limit int) ([]entity.WorkItem, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp pendingResponse
	if err := c.do(ctx, http.MethodGet, "/api/images/pending", q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Images == nil {
		resp.Images = []entity.WorkItem{}
	}
	return resp.Images, nil
}

// TagUpdate is the only shape ever sent back for a processed item.
type TagUpdate struct {
	PinID          string              `json:"pin_id"`
	AestheticScore float64             `json:"aesthetic_score"`
	FashionTags    map[string][]string `json:"fashion_tags"`
	Description    string              `json:"description"`
	TagsList       []string            `json:"tags_list"`
	IsNSFW         bool                `json:"is_nsfw"`
}

func NewTagUpdate(itemID string, rec entity.ResultRecord) TagUpdate {
	rec = rec.Clamped()
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	cats := rec.CategorizedTags
	if cats == nil {
		cats = map[string][]string{}
	}
	return TagUpdate{
		PinID:          itemID,
		AestheticScore: rec.AestheticScore,
		FashionTags:    cats,
		Description:    rec.Description,
		TagsList:       tags,
		IsNSFW:         rec.IsFlagged,
	}
}

// ReportResult posts the tagging result for one item.
func (c *Client) ReportResult(ctx context.Context, itemID string, rec entity.ResultRecord) error {
	payload := NewTagUpdate(itemID, rec)
	c.log.Info("sending payload", "item_id", itemID, "aesthetic_score", payload.AestheticScore, "tags", len(payload.TagsList))
	return c.do(ctx, http.MethodPost, "/api/tags/update", nil, payload, nil)
}

// ProcessedItems lists items carrying the given designer rating (1 or -1).
// The service answers with either a bare array or {"images": [...]}.
func (c *Client) ProcessedItems(ctx context.Context, rating int) ([]entity.FeedbackItem, error) {
	q := url.Values{}
	q.Set("designer_rating", strconv.Itoa(rating))

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/images/processed", q, nil, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	var items []entity.FeedbackItem
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode processed items: %w", err)
		}
	default:
		var wrapped struct {
			Images []entity.FeedbackItem `json:"images"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode processed items: %w", err)
		}
		items = wrapped.Images
	}
	if items == nil {
		items = []entity.FeedbackItem{}
	}
	return items, nil
}

// Stats returns the service's statistics document.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Download streams the resource at rawURL into dst. Image hosts are not
// the review service, so this bypasses the breaker.
func (c *Client) Download(ctx context.Context, rawURL string, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: GET image: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return 0, &StatusError{Method: http.MethodGet, Path: req.URL.Path, StatusCode: resp.StatusCode, Body: string(b)}
	}
	return io.Copy(dst, resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, query, body, out)
	})
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	_ = resp.Body.Close()
	c.log.Debug("remote call", "method", method, "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	if readErr != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
