package profile

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tag-bridge/internal/entity"
	"tag-bridge/internal/logger"
)

const (
	RatingLiked    = 1
	RatingDisliked = -1

	topTags = 50
)

// FeedbackSource lists processed items carrying a given designer rating.
type FeedbackSource interface {
	ProcessedItems(ctx context.Context, rating int) ([]entity.FeedbackItem, error)
}

type Builder struct {
	source FeedbackSource
	log    *logger.Logger
	now    func() time.Time
}

func NewBuilder(source FeedbackSource, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{source: source, log: log.With("component", "profile_builder"), now: time.Now}
}

// Build fetches liked and disliked feedback and aggregates it into a profile.
// If either query fails the result is an empty profile, never an error.
func (b *Builder) Build(ctx context.Context) entity.PreferenceProfile {
	var liked, disliked []entity.FeedbackItem

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := b.source.ProcessedItems(gctx, RatingLiked)
		liked = items
		return err
	})
	g.Go(func() error {
		items, err := b.source.ProcessedItems(gctx, RatingDisliked)
		disliked = items
		return err
	})
	if err := g.Wait(); err != nil {
		b.log.Error("fetch feedback failed, using empty profile", "error", err)
		return b.stamp(entity.EmptyProfile())
	}

	b.log.Info("fetched feedback", "liked", len(liked), "disliked", len(disliked))
	if len(liked) == 0 && len(disliked) == 0 {
		b.log.Warn("no feedback data available, creating empty profile")
		return b.stamp(entity.EmptyProfile())
	}

	likedCounts := countTags(liked)
	dislikedCounts := countTags(disliked)
	vectors := collectVectors(liked)
	b.log.Info("extracted vectors", "count", len(vectors))

	p := entity.PreferenceProfile{
		LikedTags:           likedCounts.top(topTags),
		DislikedTags:        dislikedCounts.top(topTags),
		LikedFrequencies:    likedCounts.counts,
		DislikedFrequencies: dislikedCounts.counts,
		LikedVectors:        vectors,
		TotalLiked:          len(liked),
		TotalDisliked:       len(disliked),
	}
	return b.stamp(p)
}

func (b *Builder) stamp(p entity.PreferenceProfile) entity.PreferenceProfile {
	t := b.now().UTC()
	p.BuiltAt = &t
	return p
}

// tagCounter counts lower-cased tags and remembers first-seen order for ties.
type tagCounter struct {
	counts map[string]int
	order  []string
}

// countTags counts every tag in tags_list and again in each fashion_tags
// bucket, so a tag present in both is counted twice per item.
func countTags(items []entity.FeedbackItem) tagCounter {
	c := tagCounter{counts: map[string]int{}}
	for _, it := range items {
		for _, t := range it.Tags {
			c.add(t)
		}
		for _, cat := range sortedKeys(it.FashionTags) {
			for _, t := range it.FashionTags[cat] {
				c.add(t)
			}
		}
	}
	return c
}

func (c *tagCounter) add(tag string) {
	t := strings.ToLower(strings.TrimSpace(tag))
	if t == "" {
		return
	}
	if _, ok := c.counts[t]; !ok {
		c.order = append(c.order, t)
	}
	c.counts[t]++
}

func (c tagCounter) top(n int) []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	sort.SliceStable(out, func(i, j int) bool {
		return c.counts[out[i]] > c.counts[out[j]]
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func collectVectors(items []entity.FeedbackItem) [][]float64 {
	out := [][]float64{}
	for _, it := range items {
		if len(it.ClipVector) == 0 {
			continue
		}
		out = append(out, it.ClipVector)
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
