package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/graph-harvester/pkg/client"
	"github.com/Sternrassler/graph-harvester/pkg/record"
)

var graphPagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "graph_pages_fetched_total",
	Help: "Total number of collection pages fetched",
})

// ErrTooManyPages is returned when a collection has more pages than
// Config.MaxPages allows.
var ErrTooManyPages = errors.New("too many pages")

// Config holds walker configuration.
type Config struct {
	// Chase follows @odata.nextLink continuations. When false only the
	// first page is fetched.
	Chase bool

	// MaxPages caps the number of pages per walk. 0 means unlimited.
	MaxPages int
}

// DefaultConfig returns a configuration that chases every continuation.
func DefaultConfig() Config {
	return Config{Chase: true}
}

// Requester executes a single logical request, retries included.
type Requester interface {
	Do(ctx context.Context, req client.Request) (*client.Response, error)
}

// Page is one page of a Graph collection.
type Page struct {
	Value    []record.Item `json:"value"`
	NextLink string        `json:"@odata.nextLink,omitempty"`
}

// Result is the outcome of a walk.
type Result struct {
	Items []record.Item
	Pages int

	// Raw is the first page's response.
	Raw *client.Response
}

// Walker follows continuation cursors over a collection.
type Walker struct {
	requester Requester
	config    Config
	logger    zerolog.Logger
}

// NewWalker creates a new walker.
func NewWalker(requester Requester, config Config, logger zerolog.Logger) *Walker {
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}
	return &Walker{
		requester: requester,
		config:    config,
		logger:    logger.With().Str("component", "pagination").Logger(),
	}
}

// FetchAll returns every item of the collection at path, in page order.
func (w *Walker) FetchAll(ctx context.Context, path string, query url.Values) ([]record.Item, error) {
	result, err := w.Fetch(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// Fetch walks the collection at path and reports pages and the raw first
// response alongside the items.
func (w *Walker) Fetch(ctx context.Context, path string, query url.Values) (*Result, error) {
	start := time.Now()
	result := &Result{Items: []record.Item{}}

	req := client.Request{Method: http.MethodGet, Path: path, Query: query}
	for {
		if w.config.MaxPages > 0 && result.Pages >= w.config.MaxPages {
			return nil, fmt.Errorf("%w: %s exceeded %d pages", ErrTooManyPages, path, w.config.MaxPages)
		}

		resp, err := w.requester.Do(ctx, req)
		if err != nil {
			return nil, err
		}

		var page Page
		if err := resp.Decode(&page); err != nil {
			return nil, fmt.Errorf("page %d of %s: %w", result.Pages+1, resp.URL, err)
		}

		if result.Raw == nil {
			result.Raw = resp
		}
		result.Pages++
		result.Items = append(result.Items, page.Value...)
		graphPagesFetchedTotal.Inc()

		w.logger.Debug().
			Str("path", path).
			Int("page", result.Pages).
			Int("items", len(page.Value)).
			Bool("has_next", page.NextLink != "").
			Msg("Page fetched")

		if !w.config.Chase || page.NextLink == "" {
			break
		}

		// The continuation already encodes the original query.
		req = client.Request{Method: http.MethodGet, Path: page.NextLink}
	}

	w.logger.Info().
		Str("path", path).
		Int("pages", result.Pages).
		Int("items", len(result.Items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return result, nil
}
