// Package metadata searches public manga catalogs for book metadata.
// Providers are queried best-effort: a provider failure drops its results
// but never fails the search.
package metadata

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"comic2kindle/internal/config"
	"comic2kindle/internal/logging"
	"comic2kindle/internal/textutil"
)

// Result is one catalog match.
type Result struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	CoverURL    string `json:"cover_url,omitempty"`
	Source      string `json:"source"`
}

// Provider is one catalog backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Service fans a search out to all configured providers.
type Service struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
}

// NewService wires the default provider set from configuration.
func NewService(cfg *config.Config, logger *slog.Logger) *Service {
	timeout := time.Duration(cfg.Metadata.RequestTimeout) * time.Second
	httpClient := &http.Client{Timeout: timeout}
	return &Service{
		providers: []Provider{
			NewMangaDex(cfg.Metadata.MangaDexBaseURL, httpClient),
			NewAniList(cfg.Metadata.AniListBaseURL, httpClient),
		},
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "metadata"),
	}
}

// NewServiceWithProviders builds a service over an explicit provider set.
func NewServiceWithProviders(timeout time.Duration, logger *slog.Logger, providers ...Provider) *Service {
	return &Service{
		providers: providers,
		timeout:   timeout,
		logger:    logging.NewComponentLogger(logger, "metadata"),
	}
}

// Search queries every provider and merges the results ranked by title
// similarity to the query. Provider errors are logged and skipped.
func (s *Service) Search(ctx context.Context, query string, limit int) []Result {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil
	}

	var merged []Result
	for _, provider := range s.providers {
		providerCtx := ctx
		var cancel context.CancelFunc
		if s.timeout > 0 {
			providerCtx, cancel = context.WithTimeout(ctx, s.timeout)
		}
		results, err := provider.Search(providerCtx, query, limit)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			s.logger.Warn("catalog search failed",
				logging.String("provider", provider.Name()),
				logging.Error(err))
			continue
		}
		merged = append(merged, results...)
	}

	rankResults(query, merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// rankResults orders results by cosine similarity between query and title,
// keeping provider order for ties.
func rankResults(query string, results []Result) {
	queryFP := textutil.NewFingerprint(query)
	if queryFP == nil {
		return
	}
	type scored struct {
		result Result
		score  float64
	}
	ranked := make([]scored, len(results))
	for i, result := range results {
		ranked[i] = scored{
			result: result,
			score:  textutil.CosineSimilarity(queryFP, textutil.NewFingerprint(result.Title)),
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	for i, entry := range ranked {
		results[i] = entry.result
	}
}
