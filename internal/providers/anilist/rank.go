package anilist

// formatScore ranks AniList formats. Unknown formats score zero.
func formatScore(format string) int {
	switch format {
	case "MANGA":
		return 4
	case "ONE_SHOT":
		return 2
	case "NOVEL":
		return 1
	case "":
		return 0
	}
	return 3
}

// pickBest returns the highest ranked candidate. Ties keep the provider's
// relevance order.
func pickBest(candidates []media) *media {
	var best *media
	bestScore := -1
	for i := range candidates {
		if s := formatScore(candidates[i].Format); s > bestScore {
			best, bestScore = &candidates[i], s
		}
	}
	return best
}
