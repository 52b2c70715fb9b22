package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MangaDex queries the MangaDex REST API.
type MangaDex struct {
	baseURL    string
	httpClient *http.Client
}

// NewMangaDex creates a MangaDex provider. An empty baseURL uses the
// public API.
func NewMangaDex(baseURL string, httpClient *http.Client) *MangaDex {
	if baseURL == "" {
		baseURL = "https://api.mangadex.org"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &MangaDex{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (m *MangaDex) Name() string { return "mangadex" }

type mangadexResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Title       map[string]string `json:"title"`
			Description map[string]string `json:"description"`
		} `json:"attributes"`
		Relationships []struct {
			Type       string `json:"type"`
			Attributes struct {
				Name     string `json:"name"`
				FileName string `json:"fileName"`
			} `json:"attributes"`
		} `json:"relationships"`
	} `json:"data"`
}

func (m *MangaDex) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("title", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Add("includes[]", "cover_art")
	params.Add("includes[]", "author")
	params.Set("order[relevance]", "desc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/manga?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mangadex search returned %s", resp.Status)
	}

	var payload mangadexResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode mangadex response: %w", err)
	}

	results := make([]Result, 0, len(payload.Data))
	for _, manga := range payload.Data {
		result := Result{
			ID:          manga.ID,
			Title:       pickLocalized(manga.Attributes.Title, "en", "ja-ro"),
			Description: clampDescription(pickLocalized(manga.Attributes.Description, "en")),
			Source:      "mangadex",
		}
		for _, rel := range manga.Relationships {
			switch rel.Type {
			case "author":
				if result.Author == "" {
					result.Author = rel.Attributes.Name
				}
			case "cover_art":
				if rel.Attributes.FileName != "" && result.CoverURL == "" {
					result.CoverURL = fmt.Sprintf("https://uploads.mangadex.org/covers/%s/%s.256.jpg",
						manga.ID, rel.Attributes.FileName)
				}
			}
		}
		if result.Title == "" {
			result.Title = "Unknown"
		}
		results = append(results, result)
	}
	return results, nil
}

// pickLocalized prefers the given language keys, then any value.
func pickLocalized(values map[string]string, preferred ...string) string {
	for _, key := range preferred {
		if v := values[key]; v != "" {
			return v
		}
	}
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

const maxDescriptionLen = 500

// clampDescription truncates long descriptions on a rune boundary so API
// responses stay valid UTF-8.
func clampDescription(description string) string {
	if len(description) <= maxDescriptionLen {
		return description
	}
	cut := maxDescriptionLen
	for cut > 0 && !utf8.RuneStart(description[cut]) {
		cut--
	}
	return description[:cut]
}
