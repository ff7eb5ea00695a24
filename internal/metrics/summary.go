package metrics

import (
	"math"
	"sort"

	"activator/internal/models"
)

// StatusSummary counts targets per status.
type StatusSummary struct {
	Total       int      `json:"total"`
	Up          int      `json:"up"`
	Down        int      `json:"down"`
	Unknown     int      `json:"unknown"`
	UpPercent   float64  `json:"up_percent"`
	DownTargets []string `json:"down_targets"`
}

// Summarize aggregates a status snapshot. The up percentage only considers
// targets with a known status.
func Summarize(statuses map[models.TargetKey]models.Status) StatusSummary {
	summary := StatusSummary{DownTargets: []string{}}
	for key, status := range statuses {
		summary.Total++
		switch status {
		case models.StatusUp:
			summary.Up++
		case models.StatusDown:
			summary.Down++
			summary.DownTargets = append(summary.DownTargets, string(key))
		default:
			summary.Unknown++
		}
	}
	sort.Strings(summary.DownTargets)

	if known := summary.Up + summary.Down; known > 0 {
		summary.UpPercent = round2(float64(summary.Up) / float64(known) * 100)
	}
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
