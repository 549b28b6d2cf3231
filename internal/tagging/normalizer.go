package tagging

import (
	"sort"
	"strings"

	"tag-bridge/internal/entity"
	"tag-bridge/internal/logger"
)

const captionFallbackTags = 20

// Normalizer maps raw engine outputs onto a ResultRecord using a rule table.
type Normalizer struct {
	rules []Rule
	log   *logger.Logger
}

func NewNormalizer(rules []Rule, log *logger.Logger) *Normalizer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Normalizer{rules: rules, log: log.With("component", "normalizer")}
}

// Normalize never fails. Undecodable fields are logged and skipped, and
// missing roles fall back to neutral defaults. For each role the first
// decodable match in ascending node id order wins.
func (n *Normalizer) Normalize(raw entity.RawOutputMap) entity.ResultRecord {
	rec := entity.ResultRecord{
		Tags:           []string{},
		AestheticScore: entity.NeutralAestheticScore,
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	seen := map[Role]bool{}
	for _, id := range ids {
		fields := raw[id]
		for _, rule := range n.rules {
			if seen[rule.Role] || !rule.matches(id) {
				continue
			}
			v, ok := fields[rule.Field]
			if !ok {
				continue
			}
			decoded, err := rule.Decode(v)
			if err != nil {
				n.log.Warn("skip undecodable output", "node", id, "field", rule.Field, "role", string(rule.Role), "error", err)
				continue
			}
			if n.apply(&rec, rule.Role, decoded) {
				seen[rule.Role] = true
			}
		}
	}

	if rec.Description == "" && len(rec.Tags) > 0 {
		head := rec.Tags
		if len(head) > captionFallbackTags {
			head = head[:captionFallbackTags]
		}
		rec.Description = strings.Join(head, ", ")
	}
	rec.AestheticScore = entity.ClampScore(rec.AestheticScore)
	rec.CategorizedTags = Categorize(rec.Tags)

	n.log.Debug("normalized outputs", "nodes", len(ids), "tags", len(rec.Tags), "aesthetic_score", rec.AestheticScore)
	return rec
}

func (n *Normalizer) apply(rec *entity.ResultRecord, role Role, v any) bool {
	switch role {
	case RoleTags:
		tags, ok := v.([]string)
		if !ok {
			return false
		}
		rec.Tags = tags
	case RoleScore:
		f, ok := v.(float64)
		if !ok {
			return false
		}
		rec.AestheticScore = f
	case RoleCaption:
		s, ok := v.(string)
		if !ok {
			return false
		}
		rec.Description = s
	default:
		return false
	}
	return true
}
