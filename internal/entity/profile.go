package entity

import "time"

// PreferenceProfile is the designer-preference snapshot built from feedback.
// It is replaced wholesale on rebuild and read-only once loaded.
type PreferenceProfile struct {
	LikedTags           []string       `json:"liked_tags"`
	DislikedTags        []string       `json:"disliked_tags"`
	LikedFrequencies    map[string]int `json:"liked_tag_frequencies"`
	DislikedFrequencies map[string]int `json:"disliked_tag_frequencies"`
	LikedVectors        [][]float64    `json:"liked_vectors"`
	TotalLiked          int            `json:"total_liked"`
	TotalDisliked       int            `json:"total_disliked"`
	BuiltAt             *time.Time     `json:"updated_at"`
}

func EmptyProfile() PreferenceProfile {
	return PreferenceProfile{
		LikedTags:           []string{},
		DislikedTags:        []string{},
		LikedFrequencies:    map[string]int{},
		DislikedFrequencies: map[string]int{},
		LikedVectors:        [][]float64{},
	}
}

func (p *PreferenceProfile) HasLikedTags() bool {
	return p != nil && len(p.LikedTags) > 0
}

func (p *PreferenceProfile) HasLikedVectors() bool {
	return p != nil && len(p.LikedVectors) > 0
}
