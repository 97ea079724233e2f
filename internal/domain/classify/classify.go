// Package classify ranks scored records and flags those at or above a
// threshold as trending. It never recomputes scores.
package classify

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/trendradar/internal/domain/model"
)

// Classify returns a ranked copy of results. Scored results come first,
// ordered by descending score with ties broken by ascending ID, ranked from
// 1 and flagged trending when score >= threshold. Excluded results follow,
// ordered by ID, never trending and unranked.
func Classify(results []model.ScoreResult, threshold float64) ([]model.ScoreResult, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	out := make([]model.ScoreResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Excluded != b.Excluded {
			return !a.Excluded
		}
		if !a.Excluded && a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ID < b.ID
	})
	rank := 0
	for i := range out {
		if out[i].Excluded {
			out[i].Rank = 0
			out[i].Trending = false
			continue
		}
		rank++
		out[i].Rank = rank
		out[i].Trending = out[i].Score >= threshold
	}
	return out, nil
}

// ClassifyCategory classifies only the results of one category.
func ClassifyCategory(results []model.ScoreResult, category string, threshold float64) ([]model.ScoreResult, error) {
	return Classify(Filter(results, category), threshold)
}

// Filter keeps results of category; an empty category keeps everything.
func Filter(results []model.ScoreResult, category string) []model.ScoreResult {
	if category == "" {
		return results
	}
	var out []model.ScoreResult
	for _, r := range results {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// Trending keeps the results flagged trending, preserving order.
func Trending(results []model.ScoreResult) []model.ScoreResult {
	var out []model.ScoreResult
	for _, r := range results {
		if r.Trending {
			out = append(out, r)
		}
	}
	return out
}

// Top returns at most n leading results; n <= 0 returns all.
func Top(results []model.ScoreResult, n int) []model.ScoreResult {
	if n <= 0 || n >= len(results) {
		return results
	}
	return results[:n]
}

// Categories lists the distinct categories present, sorted.
func Categories(results []model.ScoreResult) []string {
	set := make(map[string]struct{})
	for _, r := range results {
		set[r.Category] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
