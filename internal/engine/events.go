package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// EventStream is a subscribed engine event channel.
type EventStream interface {
	ReadMessage() (messageType int, data []byte, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (EventStream, error)
}

// WSDialer opens event subscriptions over websocket.
type WSDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d WSDialer) Dial(ctx context.Context, url string) (EventStream, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type event struct {
	Type string `json:"type"`
	Data struct {
		Node     *string `json:"node"`
		PromptID string  `json:"prompt_id"`
	} `json:"data"`
}

const (
	eventExecuting = "executing"
	eventError     = "execution_error"
)

// parseEvent decodes a text frame. ok is false for frames that are not JSON events.
func parseEvent(data []byte) (event, bool) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
		return event{}, false
	}
	return ev, true
}

// finishes reports whether ev marks the end of the given job.
func (ev event) finishes(jobID string) bool {
	return ev.Type == eventExecuting && ev.Data.Node == nil && ev.Data.PromptID == jobID
}
