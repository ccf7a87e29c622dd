package mangadex

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vrsandeep/mango-tracker/internal/models"
)

// SourceTag marks metadata that came from this provider.
const SourceTag = "mangadex"

// PlaceholderCover is used when a record has no cover_art relationship.
const PlaceholderCover = "https://mangadex.org/img/cover-placeholder.jpg"

var statusMap = map[string]string{
	"ongoing":   models.SeriesReleasing,
	"completed": models.SeriesFinished,
	"hiatus":    models.SeriesHiatus,
	"cancelled": models.SeriesCancelled,
}

var countryMap = map[string]string{
	"ja":    "JP",
	"ko":    "KR",
	"zh":    "CN",
	"zh-hk": "HK",
	"zh-tw": "TW",
	"en":    "US",
}

// transform maps a raw MangaDex record into the shared metadata shape.
func (p *Client) transform(m MangaData) *models.CatalogMetadata {
	attrs := m.Attributes
	out := &models.CatalogMetadata{
		ID:              models.ProviderID(m.ID),
		Title:           titles(attrs),
		Format:          deriveFormat(attrs),
		CountryOfOrigin: country(attrs.OriginalLanguage),
		Status:          statusMap[attrs.Status],
		Chapters:        parseCount(attrs.LastChapter),
		Volumes:         parseCount(attrs.LastVolume),
		Description:     attrs.Description.First(),
		StartDate:       models.FuzzyDate{Year: attrs.Year},
		ExternalLinks:   links(attrs.Links),
		Source:          SourceTag,
	}

	for _, tag := range attrs.Tags {
		name := tag.Attributes.Name.First()
		if name == "" {
			continue
		}
		if tag.Attributes.Group == "genre" {
			out.Genres = append(out.Genres, name)
		} else {
			out.Tags = append(out.Tags, name)
		}
	}

	out.CoverImage = models.CoverImage{
		ExtraLarge: PlaceholderCover,
		Large:      PlaceholderCover,
		Medium:     PlaceholderCover,
	}
	for _, rel := range m.Relationships {
		if rel.Type == "cover_art" && rel.Attributes.FileName != "" {
			base := fmt.Sprintf("%s/covers/%s/%s", p.coverArtBaseURL, m.ID, rel.Attributes.FileName)
			out.CoverImage = models.CoverImage{
				ExtraLarge: base,
				Large:      base + ".512.jpg",
				Medium:     base + ".256.jpg",
			}
			break
		}
	}
	return out
}

func titles(attrs MangaAttributes) models.CatalogTitle {
	t := models.CatalogTitle{English: attrs.Title.First()}
	lang := attrs.OriginalLanguage
	for _, alt := range attrs.AltTitles {
		if t.English == "" {
			t.English = alt.Get("en")
		}
		if t.Romaji == "" {
			t.Romaji = alt.Get(lang + "-ro")
		}
		if t.Native == "" {
			t.Native = alt.Get(lang)
		}
	}
	return t
}

// deriveFormat maps tags and the original language onto a format. Long-strip
// and regional records become Manhwa or Manhua.
func deriveFormat(attrs MangaAttributes) string {
	longStrip, oneshot := false, false
	for _, tag := range attrs.Tags {
		switch strings.ToLower(tag.Attributes.Name.Get("en")) {
		case "long strip", "web comic":
			longStrip = true
		case "oneshot":
			oneshot = true
		}
	}

	lang := strings.ToLower(attrs.OriginalLanguage)
	switch {
	case oneshot:
		return "ONE_SHOT"
	case lang == "ko":
		return "Manhwa"
	case strings.HasPrefix(lang, "zh"):
		return "Manhua"
	case longStrip && lang != "ja":
		return "Manhwa"
	}
	return "MANGA"
}

func country(lang string) string {
	lang = strings.ToLower(lang)
	if c, ok := countryMap[lang]; ok {
		return c
	}
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}
	return strings.ToUpper(lang)
}

func parseCount(s string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(math.Floor(f))
}

func links(raw map[string]string) []models.ExternalLink {
	var out []models.ExternalLink
	for _, site := range []string{"al", "mal", "mu", "raw", "engtl"} {
		v := raw[site]
		if v == "" {
			continue
		}
		switch site {
		case "al":
			out = append(out, models.ExternalLink{Site: "AniList", URL: "https://anilist.co/manga/" + v})
		case "mal":
			out = append(out, models.ExternalLink{Site: "MyAnimeList", URL: "https://myanimelist.net/manga/" + v})
		case "mu":
			out = append(out, models.ExternalLink{Site: "MangaUpdates", URL: "https://www.mangaupdates.com/series.html?id=" + v})
		case "raw":
			out = append(out, models.ExternalLink{Site: "Raw", URL: v})
		case "engtl":
			out = append(out, models.ExternalLink{Site: "Official English", URL: v})
		}
	}
	return out
}

// Backfill merges the enrichment results of both providers. The primary
// record is the base; every backfillable field it lacks is taken from the
// secondary record. Neither argument is modified.
func Backfill(primary, secondary *models.CatalogMetadata) *models.CatalogMetadata {
	if secondary.IsNotFound() {
		secondary = nil
	}
	if primary == nil || primary.IsNotFound() {
		return secondary.Clone()
	}
	out := primary.Clone()
	if secondary == nil {
		return out
	}
	if out.BannerImage == "" {
		out.BannerImage = secondary.BannerImage
	}
	if out.Description == "" {
		out.Description = secondary.Description
	}
	if out.CoverImage.Large == "" {
		out.CoverImage.Large = secondary.CoverImage.Large
	}
	if len(out.Genres) == 0 && len(secondary.Genres) > 0 {
		out.Genres = append([]string(nil), secondary.Genres...)
	}
	if out.Chapters == 0 {
		out.Chapters = secondary.Chapters
	}
	return out
}
