package tagging

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"tag-bridge/internal/config"
)

// Role is the semantic meaning of an engine output field.
type Role string

const (
	RoleTags    Role = "tags"
	RoleScore   Role = "score"
	RoleCaption Role = "caption"
)

// AnyNode makes a rule match the field on every node.
const AnyNode = ""

// Decoder converts a raw output field value into the role's Go type:
// []string for tags, float64 for score, string for caption.
type Decoder func(v any) (any, error)

// Rule binds a (node, field) location in the engine output to a role.
type Rule struct {
	Role   Role
	Node   string
	Field  string
	Decode Decoder
}

func (r Rule) matches(nodeID string) bool {
	return r.Node == AnyNode || r.Node == nodeID
}

var errEmptyValue = errors.New("empty value")

// DefaultRules is the layout of the stock tagging workflow.
func DefaultRules() []Rule {
	return RulesFromConfig(config.NormalizerConfig{
		TagsField:   "tags",
		ScoreNode:   "7",
		CaptionNode: "6",
	})
}

func RulesFromConfig(cfg config.NormalizerConfig) []Rule {
	return []Rule{
		{Role: RoleTags, Node: AnyNode, Field: orDefault(cfg.TagsField, "tags"), Decode: DecodeTagList},
		{Role: RoleScore, Node: orDefault(cfg.ScoreNode, "7"), Field: "text", Decode: DecodeScore},
		{Role: RoleCaption, Node: orDefault(cfg.CaptionNode, "6"), Field: "text", Decode: DecodeText},
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// firstString unwraps the engine's list-of-one convention.
func firstString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		if len(x) == 0 {
			return "", errEmptyValue
		}
		s, ok := x[0].(string)
		if !ok {
			return "", fmt.Errorf("unexpected element type %T", x[0])
		}
		return s, nil
	case []string:
		if len(x) == 0 {
			return "", errEmptyValue
		}
		return x[0], nil
	default:
		return "", fmt.Errorf("unexpected value type %T", v)
	}
}

// DecodeTagList splits a comma-separated tag string into trimmed tags. A
// string holding no tags does not decode.
func DecodeTagList(v any) (any, error) {
	s, err := firstString(v)
	if err != nil {
		return nil, err
	}
	tags := SplitTags(s)
	if len(tags) == 0 {
		return nil, errEmptyValue
	}
	return tags, nil
}

func SplitTags(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func DecodeScore(v any) (any, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case []any:
		if len(x) == 0 {
			return nil, errEmptyValue
		}
		if n, ok := x[0].(float64); ok {
			f = n
			break
		}
		return DecodeScore(x[0])
	default:
		s, err := firstString(v)
		if err != nil {
			return nil, err
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, err
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite score %v", f)
	}
	return f, nil
}

func DecodeText(v any) (any, error) {
	s, err := firstString(v)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(s) == "" {
		return nil, errEmptyValue
	}
	return s, nil
}
