package scoring

import (
	"math"
	"strings"

	"tag-bridge/internal/entity"
	"tag-bridge/internal/logger"
)

const NeutralScore = 0.5

type Config struct {
	AestheticWeight  float64
	SimilarityWeight float64
	TagMatchWeight   float64

	ArchiveThreshold float64
	ReviewThreshold  float64

	// Blacklist holds lower-cased tags that reject an item outright.
	Blacklist []string
}

func DefaultConfig() Config {
	return Config{
		AestheticWeight:  0.4,
		SimilarityWeight: 0.4,
		TagMatchWeight:   0.2,
		ArchiveThreshold: 0.8,
		ReviewThreshold:  0.5,
		Blacklist:        []string{"text", "watermark", "meme", "blurry", "low_quality", "screenshot"},
	}
}

// Breakdown carries the intermediate values behind a decision, for logging.
type Breakdown struct {
	Blacklisted []string
	Aesthetic   float64
	TagMatch    float64
	Similarity  float64
	Decision    entity.PriorityDecision
}

type Scorer struct {
	cfg       Config
	blacklist map[string]struct{}
	log       *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Scorer {
	if log == nil {
		log = logger.Nop()
	}
	bl := make(map[string]struct{}, len(cfg.Blacklist))
	for _, t := range cfg.Blacklist {
		bl[strings.ToLower(t)] = struct{}{}
	}
	return &Scorer{cfg: cfg, blacklist: bl, log: log.With("component", "scorer")}
}

// Score never fails. A nil profile is treated as empty; a nil embedding
// leaves similarity neutral.
func (s *Scorer) Score(rec entity.ResultRecord, profile *entity.PreferenceProfile, embedding []float64) entity.PriorityDecision {
	b := s.Evaluate(rec, profile, embedding)
	if len(b.Blacklisted) > 0 {
		s.log.Info("rejected by blacklist", "tags", b.Blacklisted)
	} else {
		s.log.Info("priority calculated",
			"aesthetic", b.Aesthetic,
			"tag_match", b.TagMatch,
			"similarity", b.Similarity,
			"score", b.Decision.Score,
			"disposition", string(b.Decision.Disposition),
		)
	}
	return b.Decision
}

func (s *Scorer) Evaluate(rec entity.ResultRecord, profile *entity.PreferenceProfile, embedding []float64) Breakdown {
	tags := lowerSet(rec.Tags)

	var hits []string
	for _, t := range rec.Tags {
		lt := strings.ToLower(t)
		if _, ok := s.blacklist[lt]; ok {
			hits = append(hits, lt)
		}
	}
	if len(hits) > 0 {
		return Breakdown{
			Blacklisted: hits,
			Decision:    entity.PriorityDecision{Score: 0, Disposition: entity.DispositionReject},
		}
	}

	aesthetic := entity.ClampScore(rec.AestheticScore)
	tagMatch := TagMatch(tags, profile)
	similarity := NeutralScore
	if embedding != nil && profile.HasLikedVectors() {
		similarity = Similarity(embedding, profile.LikedVectors)
	}

	score := s.Composite(aesthetic, similarity, tagMatch)
	return Breakdown{
		Aesthetic:  aesthetic,
		TagMatch:   tagMatch,
		Similarity: similarity,
		Decision:   entity.PriorityDecision{Score: score, Disposition: s.Disposition(score)},
	}
}

// Composite is the weighted sum of the normalized aesthetic score,
// similarity, and tag match. It is monotone in each input.
func (s *Scorer) Composite(aesthetic, similarity, tagMatch float64) float64 {
	return s.cfg.AestheticWeight*(entity.ClampScore(aesthetic)/entity.MaxAestheticScore) +
		s.cfg.SimilarityWeight*similarity +
		s.cfg.TagMatchWeight*tagMatch
}

func (s *Scorer) Disposition(score float64) entity.Disposition {
	switch {
	case score >= s.cfg.ArchiveThreshold:
		return entity.DispositionArchive
	case score >= s.cfg.ReviewThreshold:
		return entity.DispositionReview
	default:
		return entity.DispositionReject
	}
}

// TagMatch scores lower-cased item tags against the profile's liked and
// disliked tags. Any disliked overlap zeroes the score.
func TagMatch(tags map[string]struct{}, profile *entity.PreferenceProfile) float64 {
	if !profile.HasLikedTags() {
		return NeutralScore
	}
	for _, d := range profile.DislikedTags {
		if _, ok := tags[strings.ToLower(d)]; ok {
			return 0
		}
	}

	liked := lowerSet(profile.LikedTags)
	overlap := 0
	for t := range liked {
		if _, ok := tags[t]; ok {
			overlap++
		}
	}
	return math.Min(float64(overlap)/float64(len(liked)), 1)
}

// Similarity is the best cosine similarity between embedding and any liked
// vector, floored at 0.
func Similarity(embedding []float64, liked [][]float64) float64 {
	best := math.Inf(-1)
	for _, v := range liked {
		if c, ok := CosineSimilarity(embedding, v); ok && c > best {
			best = c
		}
	}
	if math.IsInf(best, -1) {
		return NeutralScore
	}
	return math.Max(0, math.Min(best, 1))
}

// CosineSimilarity is undefined (ok=false) for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func lowerSet(tags []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		out[strings.ToLower(t)] = struct{}{}
	}
	return out
}
