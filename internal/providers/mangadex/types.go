package mangadex

// --- Common Types ---
type Relationship struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		FileName string `json:"fileName"`
	} `json:"attributes"`
}

type MultiLingualString map[string]string

func (mls MultiLingualString) Get(lang string) string {
	if val, ok := mls[lang]; ok {
		return val
	}
	return ""
}

// First returns the English value, or any value if there is no English one.
func (mls MultiLingualString) First() string {
	if v := mls.Get("en"); v != "" {
		return v
	}
	for _, v := range mls {
		if v != "" {
			return v
		}
	}
	return ""
}

// --- Manga Search Types ---
type MangaListResponse struct {
	Result string      `json:"result"`
	Data   []MangaData `json:"data"`
}

type MangaData struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Attributes    MangaAttributes `json:"attributes"`
	Relationships []Relationship  `json:"relationships"`
}

type MangaAttributes struct {
	Title                  MultiLingualString   `json:"title"`
	AltTitles              []MultiLingualString `json:"altTitles"`
	Description            MultiLingualString   `json:"description"`
	Links                  map[string]string    `json:"links"`
	OriginalLanguage       string               `json:"originalLanguage"`
	LastVolume             string               `json:"lastVolume"`
	LastChapter            string               `json:"lastChapter"`
	PublicationDemographic string               `json:"publicationDemographic"`
	Status                 string               `json:"status"`
	Year                   int                  `json:"year"`
	Tags                   []Tag                `json:"tags"`
}

type Tag struct {
	ID         string `json:"id"`
	Attributes struct {
		Name  MultiLingualString `json:"name"`
		Group string             `json:"group"` // genre, theme, format, content
	} `json:"attributes"`
}
