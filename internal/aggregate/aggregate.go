// Package aggregate rolls classified service requests up into per-neighborhood statistics.
package aggregate

import (
	"net/url"
	"strings"
	"time"

	"github.com/pscheid92/moodmap/internal/domain"
	"github.com/pscheid92/moodmap/internal/mood"
)

// MaxExamples caps the sample records kept per neighborhood.
const MaxExamples = 5

const (
	DefaultRecordBaseURL = "https://data.sfgov.org/resource/vw6y-z8j6"
	exampleTimeLayout    = "15:04"
)

// Options controls presentation details of the rollup.
type Options struct {
	// Location formats example times. Nil means UTC.
	Location *time.Location
	// RecordBaseURL prefixes example links. Empty disables links.
	RecordBaseURL string
}

// DefaultOptions returns options for the San Francisco dataset in loc.
func DefaultOptions(loc *time.Location) Options {
	return Options{Location: loc, RecordBaseURL: DefaultRecordBaseURL}
}

// Aggregate groups records by resolved neighborhood name and tallies moods.
// Neighborhoods appear in first-seen order; examples follow input order.
// Records without a neighborhood are skipped. Empty input yields an empty slice.
func Aggregate(records []domain.Record, opts Options) []domain.NeighborhoodStats {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	index := make(map[string]int)
	out := make([]domain.NeighborhoodStats, 0)

	for _, r := range records {
		name := r.NeighborhoodName()
		if name == "" {
			continue
		}

		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, domain.NeighborhoodStats{Name: name, Examples: []domain.Example{}})
		}

		s := &out[i]
		s.Counts.Inc(mood.ClassifyRecord(r))
		if len(s.Examples) < MaxExamples {
			s.Examples = append(s.Examples, example(r, loc, opts.RecordBaseURL))
		}
	}

	for i := range out {
		s := &out[i]
		s.Total = max(s.Counts.Sum(), 1)
		s.Dominant = s.Counts.Dominant()
		s.Emoji = mood.Emoji(s.Dominant)
	}
	return out
}

func example(r domain.Record, loc *time.Location, baseURL string) domain.Example {
	ex := domain.Example{Title: r.Title()}
	if ts, err := r.UpdatedAt(loc); err == nil {
		ex.Time = ts.In(loc).Format(exampleTimeLayout)
	}
	if id := r.RequestID(); id != "" && baseURL != "" {
		ex.URL = strings.TrimSuffix(baseURL, "/") + "/" + url.PathEscape(id)
	}
	return ex
}
