// Package snapshots persists the daily compliance summary so the dashboard
// can chart the compliance rate over time.
package snapshots

import (
	"errors"
	"time"

	"github.com/habilita/habilita/internal/indicators"
)

// ErrNoData is returned when the results load failed and there is nothing
// trustworthy to persist.
var ErrNoData = errors.New("snapshots: no results to capture")

// Snapshot is one captured summary. Year 0 covers every year.
type Snapshot struct {
	ID           int64
	TakenOn      time.Time
	Year         int
	Total        int
	Compliant    int
	NonCompliant int
	Undetermined int
	Rate         float64
	Summary      indicators.Summary
	CreatedAt    time.Time
}

// Point is one entry of the rate history chart.
type Point struct {
	Label string
	Rate  float64
}

// Points converts snapshots, oldest first, into chart points.
func Points(history []Snapshot) []Point {
	out := make([]Point, 0, len(history))
	for _, s := range history {
		out = append(out, Point{Label: s.TakenOn.Format("2006-01-02"), Rate: s.Rate})
	}
	return out
}
