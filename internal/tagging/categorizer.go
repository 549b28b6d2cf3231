package tagging

import "strings"

const (
	CategoryMaterial = "material"
	CategoryStyle    = "style"
	CategoryCut      = "cut"
	CategoryDetails  = "details"
	// CategoryColor is always present in the output but nothing fills it yet.
	CategoryColor = "color"
)

type category struct {
	name     string
	keywords []string
}

// Checked in order; a tag lands in the first category with a matching keyword.
var categories = []category{
	{CategoryMaterial, []string{"silk", "cotton", "linen", "wool", "leather", "denim", "velvet", "satin", "chiffon"}},
	{CategoryStyle, []string{"minimalist", "modern", "vintage", "bohemian", "classic", "casual", "formal", "streetwear"}},
	{CategoryCut, []string{"a-line", "fitted", "loose", "oversized", "slim", "straight", "flared"}},
	{CategoryDetails, []string{"pleated", "asymmetric", "ruffled", "embroidered", "printed", "striped", "floral"}},
}

// Categorize buckets tags by substring keyword match on the lower-cased tag.
// Tags keep their original casing. Unmatched tags are left out.
func Categorize(tags []string) map[string][]string {
	out := map[string][]string{
		CategoryMaterial: {},
		CategoryStyle:    {},
		CategoryCut:      {},
		CategoryDetails:  {},
		CategoryColor:    {},
	}
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		for _, c := range categories {
			if containsAny(lower, c.keywords) {
				out[c.name] = append(out[c.name], tag)
				break
			}
		}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
