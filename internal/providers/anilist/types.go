package anilist

import "github.com/vrsandeep/mango-tracker/internal/models"

const mediaFields = `
	id
	title { english romaji native }
	coverImage { extraLarge large medium }
	bannerImage
	format
	countryOfOrigin
	genres
	tags { name }
	status
	chapters
	volumes
	averageScore
	popularity
	description(asHtml: false)
	startDate { year month day }
	externalLinks { url site }
`

const searchQuery = `query ($search: String) {
  Page(perPage: 10) {
    media(search: $search, type: MANGA) {` + mediaFields + `}
  }
}`

const byIDQuery = `query ($id: Int) {
  Media(id: $id, type: MANGA) {` + mediaFields + `}
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// --- Response Types ---
type searchResponse struct {
	Data struct {
		Page struct {
			Media []media `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type mediaResponse struct {
	Data struct {
		Media *media `json:"Media"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type media struct {
	ID              models.ProviderID       `json:"id"`
	Title           models.CatalogTitle     `json:"title"`
	CoverImage      models.CoverImage       `json:"coverImage"`
	BannerImage     string                  `json:"bannerImage"`
	Format          string                  `json:"format"`
	CountryOfOrigin string                  `json:"countryOfOrigin"`
	Genres          []string                `json:"genres"`
	Tags            []struct{ Name string } `json:"tags"`
	Status          string                  `json:"status"`
	Chapters        int                     `json:"chapters"`
	Volumes         int                     `json:"volumes"`
	AverageScore    int                     `json:"averageScore"`
	Popularity      int                     `json:"popularity"`
	Description     string                  `json:"description"`
	StartDate       models.FuzzyDate        `json:"startDate"`
	ExternalLinks   []models.ExternalLink   `json:"externalLinks"`
}

// toMetadata maps a raw media record into the shared metadata shape.
func (m media) toMetadata() *models.CatalogMetadata {
	out := &models.CatalogMetadata{
		ID:              m.ID,
		Title:           m.Title,
		CoverImage:      m.CoverImage,
		BannerImage:     m.BannerImage,
		Format:          m.Format,
		CountryOfOrigin: m.CountryOfOrigin,
		Genres:          m.Genres,
		Status:          m.Status,
		Chapters:        m.Chapters,
		Volumes:         m.Volumes,
		AverageScore:    m.AverageScore,
		Popularity:      m.Popularity,
		Description:     m.Description,
		StartDate:       m.StartDate,
		ExternalLinks:   m.ExternalLinks,
	}
	for _, tag := range m.Tags {
		if tag.Name != "" {
			out.Tags = append(out.Tags, tag.Name)
		}
	}
	return out
}
