package profile

import (
	"fmt"
	"io"
	"strings"

	"tag-bridge/internal/entity"
)

const summaryTop = 10

// WriteSummary prints totals and the top liked and disliked tags.
func WriteSummary(w io.Writer, p entity.PreferenceProfile) error {
	rule := strings.Repeat("=", 60)

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s\nPREFERENCE PROFILE SUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(&sb, "Total Liked Images: %d\n", p.TotalLiked)
	fmt.Fprintf(&sb, "Total Disliked Images: %d\n", p.TotalDisliked)

	writeTop(&sb, "Liked", p.LikedTags, p.LikedFrequencies)
	writeTop(&sb, "Disliked", p.DislikedTags, p.DislikedFrequencies)

	fmt.Fprintf(&sb, "\nCLIP Vectors: %d available\n%s\n", len(p.LikedVectors), rule)

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeTop(sb *strings.Builder, label string, tags []string, freq map[string]int) {
	fmt.Fprintf(sb, "\nTop %d %s Tags:\n", summaryTop, label)
	for i, tag := range tags {
		if i == summaryTop {
			break
		}
		fmt.Fprintf(sb, "  %d. %s (%d occurrences)\n", i+1, tag, freq[tag])
	}
}
