package anilist

import (
	"regexp"
	"strings"
)

// Cleaning strategies, indexed by attempt.
const (
	strategyVerbatim = iota
	strategyLight
	strategyAggressive
)

var (
	bracketed     = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)
	dashColonRun  = regexp.MustCompile(`\s*[-–—:]+\s*`)
	spaceRun      = regexp.MustCompile(`\s+`)
	nonAlnumSpace = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	noiseWords    = regexp.MustCompile(`(?i)\b(?:colou?red|remake|digital|raw|official|uncensored|full\s+color|(?:chapter|ch|vol|volume|ep|episode)\.?\s*\d+(?:\.\d+)?)\b`)
)

func searchTerm(title string, attempt int) string {
	switch {
	case attempt <= strategyVerbatim:
		return strings.TrimSpace(title)
	case attempt == strategyLight:
		return lightClean(title)
	}
	return aggressiveClean(title)
}

// lightClean drops bracketed asides and collapses dash and colon runs.
// "Solo Leveling (Official) - Season 2" becomes "Solo Leveling Season 2".
func lightClean(title string) string {
	s := bracketed.ReplaceAllString(title, " ")
	s = dashColonRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// aggressiveClean also removes noise words and every remaining character
// that is neither a letter, a digit nor a space.
func aggressiveClean(title string) string {
	s := noiseWords.ReplaceAllString(lightClean(title), " ")
	s = nonAlnumSpace.ReplaceAllString(s, "")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
