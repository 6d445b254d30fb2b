package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"evcal/internal/config"
	appLog "evcal/internal/log"
	"evcal/internal/model"
)

// Source is a single configured feed.
type Source struct {
	ID   string
	Name string
	// Kind is config.FeedKindYAML or config.FeedKindICS.
	Kind string
	URL  string
}

// SourcesFromConfig maps configured feeds to sources.
func SourcesFromConfig(feeds []config.FeedConfig) []Source {
	out := make([]Source, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, Source{ID: f.ID, Name: f.Name, Kind: f.Kind, URL: f.URL})
	}
	return out
}

// Loader gathers event records from every configured source.
type Loader struct {
	Fetcher  *Fetcher
	Sources  []Source
	Location *time.Location
}

// NewLoader builds a Loader for cfg's feeds, caching under cfg.CacheDir.
func NewLoader(cfg *config.Config, loc *time.Location) *Loader {
	return &Loader{
		Fetcher:  NewFetcher(cfg.CacheDir),
		Sources:  SourcesFromConfig(cfg.Feeds),
		Location: loc,
	}
}

// Load fetches and parses every source in order. A failing source is
// logged and skipped; its error is joined into the returned error while
// records from the other sources are still returned.
func (l *Loader) Load(ctx context.Context) ([]model.EventRecord, error) {
	var (
		records []model.EventRecord
		errs    []error
	)
	for _, src := range l.Sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		recs, err := l.loadOne(ctx, src)
		if err != nil {
			appLog.Error("feed load failed", err, "feed", src.ID)
			errs = append(errs, fmt.Errorf("feed %s: %w", src.ID, err))
			continue
		}
		appLog.Info("feed loaded", "feed", src.ID, "events", len(recs))
		records = append(records, recs...)
	}
	return records, errors.Join(errs...)
}

func (l *Loader) loadOne(ctx context.Context, src Source) ([]model.EventRecord, error) {
	res, err := l.Fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	switch src.Kind {
	case config.FeedKindICS:
		return ParseICS(src, res.Body, l.Location)
	case config.FeedKindYAML, "":
		return ParseYAML(src, res.Body)
	default:
		return nil, fmt.Errorf("unknown feed kind %q", src.Kind)
	}
}
