package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tag-bridge/internal/entity"
)

// Notification announces a scored item on the lane named after its disposition.
type Notification struct {
	ItemID      string             `json:"item_id"`
	Score       float64            `json:"score"`
	Disposition entity.Disposition `json:"disposition"`
	At          time.Time          `json:"at"`
}

// LaneQueue is the enqueue half of Queue.
type LaneQueue interface {
	Enqueue(ctx context.Context, lane string, payload string) error
}

// TriageService publishes scored items for out-of-process consumers.
type TriageService struct {
	queue LaneQueue
	now   func() time.Time
}

func NewTriageService(queue LaneQueue) *TriageService {
	return &TriageService{queue: queue, now: time.Now}
}

func LaneFor(d entity.Disposition) string {
	switch d {
	case entity.DispositionArchive, entity.DispositionReview, entity.DispositionReject:
		return string(d)
	default:
		return string(entity.DispositionReview)
	}
}

// Notify enqueues a notification for itemID. Unknown dispositions go to the review lane.
func (s *TriageService) Notify(ctx context.Context, itemID string, decision entity.PriorityDecision) error {
	if itemID == "" {
		return errors.New("item id is required")
	}
	lane := LaneFor(decision.Disposition)

	n := Notification{
		ItemID:      itemID,
		Score:       decision.Score,
		Disposition: entity.Disposition(lane),
		At:          s.now().UTC(),
	}
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, lane, string(b))
}

func DecodeNotification(payload string) (Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Notification{}, err
	}
	if n.ItemID == "" {
		return Notification{}, errors.New("notification without item id")
	}
	return n, nil
}
