package anilist

import "testing"

func TestSearchTerm(t *testing.T) {
	tests := []struct {
		title   string
		attempt int
		want    string
	}{
		{"  Solo Leveling ", 0, "Solo Leveling"},
		{"Solo Leveling (Official) - Season 2", 1, "Solo Leveling Season 2"},
		{"Re:Zero [Digital]", 1, "Re Zero"},
		{"The Beginning After the End: Colored Ch. 175", 2, "The Beginning After the End"},
		{"Omniscient Reader [Colored] - Remake", 2, "Omniscient Reader"},
		{"Kaguya-sama: Love is War!", 5, "Kaguya sama Love is War"},
	}
	for _, tt := range tests {
		if got := searchTerm(tt.title, tt.attempt); got != tt.want {
			t.Errorf("searchTerm(%q, %d) = %q, want %q", tt.title, tt.attempt, got, tt.want)
		}
	}
}

func TestFormatScore(t *testing.T) {
	order := []string{"MANGA", "MANHWA_LIKE", "ONE_SHOT", "NOVEL", ""}
	for i := 0; i+1 < len(order); i++ {
		if formatScore(order[i]) <= formatScore(order[i+1]) {
			t.Errorf("Expected %q to outrank %q", order[i], order[i+1])
		}
	}
}
