// Package gamma reads market quotes from the Polymarket Gamma API.
package gamma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"structfarm/internal/market"
)

// DefaultBaseURL is the production Gamma API endpoint.
const DefaultBaseURL = "https://gamma-api.polymarket.com"

// ErrNotFound reports a market or event that no longer exists upstream,
// typically because it was voided or archived.
var ErrNotFound = errors.New("not found upstream")

// Client is a read-only Gamma API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	now        func() time.Time
}

// NewClient creates a Gamma client. Pass an empty baseURL for production.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
		now:        time.Now,
	}
}

// flexFloat tolerates Gamma's habit of serializing numbers as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing numeric field %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

type apiEvent struct {
	ID      string      `json:"id"`
	Slug    string      `json:"slug"`
	Title   string      `json:"title"`
	Markets []apiMarket `json:"markets"`
}

type apiMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Slug          string    `json:"slug"`
	OutcomePrices string    `json:"outcomePrices"` // JSON string: "[\"0.52\", \"0.51\"]"
	Liquidity     flexFloat `json:"liquidity"`
	EndDate       string    `json:"endDate"`
	Active        bool      `json:"active"`
	Closed        bool      `json:"closed"`
	Resolved      bool      `json:"resolved"`
}

// FetchCategory returns snapshots for every tradeable market under one
// event slug. Markets already closed or resolved upstream are skipped
// here; a single malformed market is logged and skipped rather than
// failing the whole fetch.
func (c *Client) FetchCategory(ctx context.Context, cat market.Category) ([]market.Snapshot, error) {
	var ev apiEvent
	if err := c.getJSON(ctx, c.baseURL+"/events/"+string(cat), &ev); err != nil {
		return nil, fmt.Errorf("fetching event %s: %w", cat, err)
	}

	fetchedAt := c.now()
	snapshots := make([]market.Snapshot, 0, len(ev.Markets))
	for _, m := range ev.Markets {
		if m.Closed || m.Resolved || !m.Active {
			continue
		}
		snap, err := c.parseMarket(m, cat, fetchedAt)
		if err != nil {
			slog.Warn("skipping unparseable market", "market", m.ID, "category", cat, "error", err)
			continue
		}
		snap.URL = "https://polymarket.com/event/" + ev.Slug + "/" + m.Slug
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// GetMarket fetches a single market by id. Unlike FetchCategory it does
// not filter by lifecycle state, so callers can observe resolution.
func (c *Client) GetMarket(ctx context.Context, marketID string) (market.Snapshot, error) {
	var m apiMarket
	if err := c.getJSON(ctx, c.baseURL+"/markets/"+marketID, &m); err != nil {
		return market.Snapshot{}, fmt.Errorf("fetching market %s: %w", marketID, err)
	}
	snap, err := c.parseMarket(m, "", c.now())
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("parsing market %s: %w", marketID, err)
	}
	return snap, nil
}

func (c *Client) parseMarket(m apiMarket, cat market.Category, fetchedAt time.Time) (market.Snapshot, error) {
	var priceStrs []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &priceStrs); err != nil {
		return market.Snapshot{}, fmt.Errorf("parsing outcomePrices %q: %w", m.OutcomePrices, err)
	}
	if len(priceStrs) < 2 {
		return market.Snapshot{}, fmt.Errorf("expected 2 outcome prices, got %d", len(priceStrs))
	}
	yes, err := strconv.ParseFloat(priceStrs[0], 64)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("parsing yes price %q: %w", priceStrs[0], err)
	}
	no, err := strconv.ParseFloat(priceStrs[1], 64)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("parsing no price %q: %w", priceStrs[1], err)
	}

	// A missing or malformed end date is tolerable; a zero CloseTime
	// just ranks the market last on the tie-break.
	closeTime, _ := time.Parse(time.RFC3339, m.EndDate)

	return market.Snapshot{
		MarketID:  m.ID,
		Question:  m.Question,
		Category:  cat,
		YesPrice:  yes,
		NoPrice:   no,
		Liquidity: float64(m.Liquidity),
		CloseTime: closeTime,
		Status:    marketStatus(m),
		FetchedAt: fetchedAt,
	}, nil
}

func marketStatus(m apiMarket) market.Status {
	switch {
	case m.Resolved:
		return market.StatusResolved
	case m.Closed:
		return market.StatusClosed
	default:
		return market.StatusActive
	}
}

// getJSON performs a GET with retry on transient failures. Retries
// back off linearly and respect context cancellation.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return fmt.Errorf("%s: %w", url, ErrNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
