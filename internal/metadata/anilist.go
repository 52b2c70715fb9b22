package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// AniList queries the AniList GraphQL API.
type AniList struct {
	baseURL    string
	httpClient *http.Client
}

// NewAniList creates an AniList provider. An empty baseURL uses the
// public endpoint.
func NewAniList(baseURL string, httpClient *http.Client) *AniList {
	if baseURL == "" {
		baseURL = "https://graphql.anilist.co"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AniList{baseURL: baseURL, httpClient: httpClient}
}

func (a *AniList) Name() string { return "anilist" }

const anilistQuery = `query ($search: String, $perPage: Int) {
  Page(perPage: $perPage) {
    media(search: $search, type: MANGA) {
      id
      title { english romaji native }
      description(asHtml: false)
      coverImage { large }
      staff(perPage: 1, sort: RELEVANCE) { nodes { name { full } } }
    }
  }
}`

type anilistResponse struct {
	Data struct {
		Page struct {
			Media []struct {
				ID    int64 `json:"id"`
				Title struct {
					English string `json:"english"`
					Romaji  string `json:"romaji"`
					Native  string `json:"native"`
				} `json:"title"`
				Description string `json:"description"`
				CoverImage  struct {
					Large string `json:"large"`
				} `json:"coverImage"`
				Staff struct {
					Nodes []struct {
						Name struct {
							Full string `json:"full"`
						} `json:"name"`
					} `json:"nodes"`
				} `json:"staff"`
			} `json:"media"`
		} `json:"Page"`
	} `json:"data"`
}

var anilistMarkup = strings.NewReplacer(
	"<br>", "\n",
	"<br/>", "\n",
	"<br />", "\n",
	"<i>", "",
	"</i>", "",
)

func (a *AniList) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	body, err := json.Marshal(map[string]any{
		"query": anilistQuery,
		"variables": map[string]any{
			"search":  query,
			"perPage": limit,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anilist search returned %s", resp.Status)
	}

	var payload anilistResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode anilist response: %w", err)
	}

	media := payload.Data.Page.Media
	results := make([]Result, 0, len(media))
	for _, entry := range media {
		title := entry.Title.English
		if title == "" {
			title = entry.Title.Romaji
		}
		if title == "" {
			title = entry.Title.Native
		}
		if title == "" {
			title = "Unknown"
		}
		author := ""
		if len(entry.Staff.Nodes) > 0 {
			author = entry.Staff.Nodes[0].Name.Full
		}
		results = append(results, Result{
			ID:          fmt.Sprintf("anilist_%d", entry.ID),
			Title:       title,
			Author:      author,
			Description: clampDescription(anilistMarkup.Replace(entry.Description)),
			CoverURL:    entry.CoverImage.Large,
			Source:      "anilist",
		})
	}
	return results, nil
}
