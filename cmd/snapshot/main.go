// Command snapshot runs one refresh cycle against the dataset and prints the
// result, without starting the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/moodmap/internal/adapter/redis"
	"github.com/pscheid92/moodmap/internal/adapter/socrata"
	"github.com/pscheid92/moodmap/internal/aggregate"
	"github.com/pscheid92/moodmap/internal/app"
	"github.com/pscheid92/moodmap/internal/domain"
	"github.com/pscheid92/moodmap/internal/feed"
	"github.com/pscheid92/moodmap/internal/platform/logging"
)

type options struct {
	window   int
	format   string
	redisURL string
	baseURL  string
	dataset  string
	catalog  string
	token    string
	timezone string
	timeout  time.Duration
	verbose  bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&o.window, "window", app.DefaultWindowHours, "Trailing window in hours")
	fs.StringVar(&o.format, "format", "json", "Output format: json or summary")
	fs.StringVar(&o.redisURL, "redis", os.Getenv("REDIS_URL"), "Redis URL for the record cache (or set REDIS_URL env)")
	fs.StringVar(&o.baseURL, "base-url", socrata.DefaultBaseURL, "Dataset resource base URL")
	fs.StringVar(&o.dataset, "dataset", socrata.DefaultDatasetID, "Dataset id")
	fs.StringVar(&o.catalog, "catalog-url", socrata.DefaultCatalogURL, "Catalog search URL")
	fs.StringVar(&o.token, "app-token", os.Getenv("SOCRATA_APP_TOKEN"), "Socrata app token")
	fs.StringVar(&o.timezone, "tz", "America/Los_Angeles", "City time zone")
	fs.DurationVar(&o.timeout, "timeout", time.Minute, "Overall deadline")
	fs.BoolVar(&o.verbose, "verbose", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if o.window <= 0 {
		return options{}, fmt.Errorf("window must be positive, got %d", o.window)
	}
	if o.format != "json" && o.format != "summary" {
		return options{}, fmt.Errorf("unknown format %q", o.format)
	}
	return o, nil
}

func run(ctx context.Context, o options, clock clockwork.Clock, stdout io.Writer) error {
	loc, err := time.LoadLocation(o.timezone)
	if err != nil {
		return fmt.Errorf("load time zone: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var cache domain.SnapshotCache = feed.NewMemoryCache(clock)
	if o.redisURL != "" {
		client, err := redis.NewClient(ctx, o.redisURL, nil)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		cache = redis.NewSnapshotCache(client)
	}

	source := socrata.NewClient(socrata.Config{
		BaseURL:           o.baseURL,
		DatasetID:         o.dataset,
		FallbackDatasetID: o.dataset,
		CatalogURL:        o.catalog,
		AppToken:          o.token,
		Location:          loc,
	}, nil)
	fetcher := feed.NewFetcher(source, cache, clock, feed.Config{Location: loc}, nil)

	controller := app.NewController(fetcher, nil, clock, app.Config{
		DefaultWindowHours: o.window,
		MaxWindowHours:     max(o.window, app.DefaultMaxWindow),
		Aggregate:          aggregate.DefaultOptions(loc),
	}, nil)

	snap, err := controller.Refresh(ctx, o.window)
	if err != nil {
		return err
	}

	if o.format == "summary" {
		return writeSummary(stdout, snap)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func writeSummary(w io.Writer, snap *domain.MapSnapshot) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d records, %d neighborhoods, last %dh\n", snap.RecordCount, len(snap.Neighborhoods), snap.WindowHours)

	scores := func(title string, entries []domain.ScoreEntry) {
		fmt.Fprintf(&b, "\n%s\n", title)
		for i, e := range entries {
			fmt.Fprintf(&b, "%d. %s %d%%\n", i+1, e.Name, e.Percent())
		}
	}
	scores("Happiest", snap.Leaderboard.Happiest)
	scores("Most stressed", snap.Leaderboard.Stressed)

	fmt.Fprintf(&b, "\nMost improved\n")
	for i, e := range snap.Leaderboard.Improved {
		fmt.Fprintf(&b, "%d. %s %+d%%\n", i+1, e.Name, e.Percent())
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := "warn"
	if o.verbose {
		level = "debug"
	}
	slog.SetDefault(logging.New(os.Stderr, level, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o, clockwork.NewRealClock(), os.Stdout); err != nil {
		slog.Error("Snapshot failed", "error", err)
		os.Exit(1)
	}
}
