package entity

import (
	"encoding/json"
	"strings"
	"time"
)

// WorkItem identifies one pending image on the remote service.
type WorkItem struct {
	ID        string `json:"pin_id"`
	SourceURL string `json:"image_url"`
}

func (w WorkItem) Valid() bool {
	return strings.TrimSpace(w.ID) != "" && strings.TrimSpace(w.SourceURL) != ""
}

// ResultRecord is the canonical tagging result for one image.
type ResultRecord struct {
	Tags            []string            `json:"tags_list"`
	CategorizedTags map[string][]string `json:"fashion_tags"`
	Description     string              `json:"description"`
	AestheticScore  float64             `json:"aesthetic_score"`
	IsFlagged       bool                `json:"is_nsfw"`
}

const (
	NeutralAestheticScore = 5.0
	MaxAestheticScore     = 10.0
)

// ClampScore bounds an aesthetic score to [0, 10].
func ClampScore(s float64) float64 {
	if s != s || s < 0 {
		return 0
	}
	if s > MaxAestheticScore {
		return MaxAestheticScore
	}
	return s
}

// Clamped returns a copy whose aesthetic score is within [0, 10].
func (r ResultRecord) Clamped() ResultRecord {
	r.AestheticScore = ClampScore(r.AestheticScore)
	return r
}

type Disposition string

const (
	DispositionReject  Disposition = "reject"
	DispositionReview  Disposition = "review"
	DispositionArchive Disposition = "archive"
)

// StatusCode maps a disposition to the remote service's process_status values.
func (d Disposition) StatusCode() int {
	switch d {
	case DispositionArchive:
		return 2
	case DispositionReview:
		return 1
	default:
		return -1
	}
}

type PriorityDecision struct {
	Score       float64     `json:"score"`
	Disposition Disposition `json:"disposition"`
}

// Outcome is a processed item as recorded in the local ledger.
type Outcome struct {
	ItemID      string           `json:"item_id"`
	JobID       string           `json:"job_id"`
	Record      ResultRecord     `json:"record"`
	Decision    PriorityDecision `json:"decision"`
	Reported    bool             `json:"reported"`
	ProcessedAt time.Time        `json:"processed_at"`
}

// FeedbackItem is a processed image carrying a designer rating.
// tags_list, fashion_tags and clip_vector may arrive JSON-encoded as strings.
type FeedbackItem struct {
	ID          string
	Tags        []string
	FashionTags map[string][]string
	ClipVector  []float64
}

func (f *FeedbackItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		PinID       string          `json:"pin_id"`
		TagsList    json.RawMessage `json:"tags_list"`
		FashionTags json.RawMessage `json:"fashion_tags"`
		ClipVector  json.RawMessage `json:"clip_vector"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*f = FeedbackItem{ID: raw.PinID}
	decodeLenient(raw.TagsList, &f.Tags)
	decodeLenient(raw.FashionTags, &f.FashionTags)
	decodeLenient(raw.ClipVector, &f.ClipVector)
	return nil
}

// decodeLenient decodes v directly or from a JSON string holding JSON.
// Anything undecodable leaves out at its zero value.
func decodeLenient(data json.RawMessage, out any) {
	if len(data) == 0 || string(data) == "null" {
		return
	}
	if err := json.Unmarshal(data, out); err == nil {
		return
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil || strings.TrimSpace(s) == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), out)
}
