package discovery

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"estuary/internal/feederr"
	"estuary/internal/logger"
	"estuary/internal/model"
	"estuary/internal/suggest"
)

const maxSuggestions = 5

// DiscoverByKeyword fans out over the directory, podcast, YouTube and
// Reddit searches plus the AI suggestion oracle, merges the branches and
// returns at most limit candidates sorted by confidence. typeFilter
// restricts both the branches launched and the merged results; empty
// means all types.
func (e *Engine) DiscoverByKeyword(ctx context.Context, term string, limit int, typeFilter model.FeedType) ([]model.DiscoveredCandidate, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, feederr.New(feederr.KindValidation, "search term is required")
	}
	if typeFilter != "" && !model.ValidFeedType(typeFilter) {
		return nil, feederr.New(feederr.KindValidation, "invalid feed type: "+string(typeFilter))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	wants := func(t model.FeedType) bool {
		return typeFilter == "" || typeFilter == t
	}

	var directory, podcasts, channels, subreddits, suggested []model.DiscoveredCandidate
	g, gctx := errgroup.WithContext(ctx)
	if wants(model.TypeRSS) {
		g.Go(func() error {
			directory = e.searchFeedDirectory(gctx, term, limit)
			return nil
		})
	}
	if wants(model.TypePodcast) {
		g.Go(func() error {
			podcasts = e.searchPodcastDirectory(gctx, term, limit)
			return nil
		})
	}
	if wants(model.TypeYouTube) {
		g.Go(func() error {
			channels = e.searchYouTubeChannels(gctx, term, limit)
			return nil
		})
	}
	if wants(model.TypeReddit) {
		g.Go(func() error {
			subreddits = e.searchSubreddits(gctx, term, limit)
			return nil
		})
	}
	g.Go(func() error {
		suggested = e.resolveSuggestions(gctx, term)
		return nil
	})
	_ = g.Wait()

	merged := make([]model.DiscoveredCandidate, 0, len(directory)+len(podcasts)+len(channels)+len(subreddits)+len(suggested))
	merged = append(merged, directory...)
	merged = append(merged, podcasts...)
	merged = append(merged, channels...)
	merged = append(merged, subreddits...)
	merged = append(merged, suggested...)

	merged = filterByType(merged, typeFilter)
	e.annotate(ctx, merged)
	merged = dropInactive(merged)
	merged = dedupeByFeedURL(merged)
	sortByConfidence(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// resolveSuggestions asks the oracle for candidate URLs and re-resolves
// each through DiscoverFromURL. The oracle's URLs are hints, never
// results: only what discovery itself confirms is returned.
func (e *Engine) resolveSuggestions(ctx context.Context, term string) []model.DiscoveredCandidate {
	if e.provider == nil {
		return nil
	}
	suggestions, err := e.provider.Suggest(ctx, term, maxSuggestions)
	if err != nil {
		logger.Debug("suggestion oracle failed",
			"module", "discovery", "action", "suggest", "resource", "oracle", "result", "failed",
			"term", term, "error", err)
		return nil
	}

	var candidates []model.DiscoveredCandidate
	for _, s := range suggestions {
		resolved, err := e.DiscoverFromURL(ctx, s.URL)
		if err != nil || len(resolved) == 0 {
			continue
		}
		best := resolved[0]
		best.Method = model.MethodSuggestion
		if titleIsGeneric(best, s) {
			best.Title = s.Title
		}
		candidates = append(candidates, best)
	}
	return candidates
}

func titleIsGeneric(cand model.DiscoveredCandidate, s suggest.Suggestion) bool {
	if s.Title == "" {
		return false
	}
	title := strings.TrimSpace(cand.Title)
	return title == "" || title == cand.FeedURL || title == cand.SiteURL
}

func filterByType(candidates []model.DiscoveredCandidate, typeFilter model.FeedType) []model.DiscoveredCandidate {
	if typeFilter == "" {
		return candidates
	}
	filtered := candidates[:0]
	for _, c := range candidates {
		if c.Type == typeFilter {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func dropInactive(candidates []model.DiscoveredCandidate) []model.DiscoveredCandidate {
	filtered := candidates[:0]
	for _, c := range candidates {
		if c.IsActive != nil && !*c.IsActive {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}

// dedupeByFeedURL keeps the first occurrence of each feed URL.
func dedupeByFeedURL(candidates []model.DiscoveredCandidate) []model.DiscoveredCandidate {
	seen := make(map[string]bool, len(candidates))
	deduped := candidates[:0]
	for _, c := range candidates {
		if seen[c.FeedURL] {
			continue
		}
		seen[c.FeedURL] = true
		deduped = append(deduped, c)
	}
	return deduped
}
