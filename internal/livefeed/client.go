// Package livefeed polls per-station live arrival predictions.
package livefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"train-positions/internal/logging"
)

// Entry is one predicted arrival on a station platform.
type Entry struct {
	Destination string `json:"destination"`
	Minutes     int    `json:"minutes"`
	Length      *int   `json:"length,omitempty"` // vehicle length (cars), when reported
}

// Config holds configuration for the live-feed client.
type Config struct {
	// URLTemplate is the per-station endpoint, with {code} replaced by the station code.
	URLTemplate string
	BatchSize   int
	BatchPause  time.Duration
	Timeout     time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{BatchSize: 5, BatchPause: 250 * time.Millisecond, Timeout: 5 * time.Second}
}

type Metrics interface {
	StationFetchInc(ok bool)
}

type Client struct {
	cfg     Config
	http    *http.Client
	logger  *slog.Logger
	metrics Metrics
}

func NewClient(cfg Config, logger *slog.Logger, m Metrics) *Client {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger, metrics: m}
}

// upstream payload: one list of predictions per platform
type stationResponse struct {
	Platforms [][]struct {
		Direction string `json:"Direction"`
		Wagons    *int   `json:"Wagons"`
		Estimated *int   `json:"Estimated"`
	} `json:"platforms"`
}

// FetchStation returns the predictions of every platform of one station.
func (c *Client) FetchStation(ctx context.Context, code string) ([]Entry, error) {
	url := strings.ReplaceAll(c.cfg.URLTemplate, "{code}", code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch station %s: %w", code, err)
	}
	defer resp.Body.Close() // nolint
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch station %s: status %d", code, resp.StatusCode)
	}
	var body stationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode station %s: %w", code, err)
	}
	var out []Entry
	for _, platform := range body.Platforms {
		for _, p := range platform {
			if p.Estimated == nil || strings.TrimSpace(p.Direction) == "" {
				continue
			}
			out = append(out, Entry{Destination: p.Direction, Minutes: *p.Estimated, Length: p.Wagons})
		}
	}
	return out, nil
}

// FetchAll polls every distinct code in batches of BatchSize, pausing
// BatchPause between batches. Stations whose fetch fails are logged and left
// out of the result.
func (c *Client) FetchAll(ctx context.Context, codes []string) map[string][]Entry {
	codes = distinct(codes)
	out := make(map[string][]Entry, len(codes))
	var mu sync.Mutex
	for start := 0; start < len(codes); start += c.cfg.BatchSize {
		if start > 0 && c.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(c.cfg.BatchPause):
			}
		}
		end := min(start+c.cfg.BatchSize, len(codes))
		var g errgroup.Group
		for _, code := range codes[start:end] {
			g.Go(func() error {
				entries, err := c.FetchStation(ctx, code)
				if c.metrics != nil {
					c.metrics.StationFetchInc(err == nil)
				}
				if err != nil {
					c.logger.Warn("live feed fetch failed", slog.String("station", code), slog.String("error", err.Error()))
					return nil
				}
				mu.Lock()
				out[code] = entries
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

func distinct(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	var out []string
	for _, c := range codes {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
