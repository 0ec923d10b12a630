package market

import "time"

// Category identifies one of the ultra-short crypto market series on
// Polymarket, keyed by its Gamma event slug.
type Category string

const (
	Category5Min   Category = "crypto-5m"
	Category15Min  Category = "crypto-15m"
	CategoryHourly Category = "crypto-hourly"
)

// Status is the lifecycle state of a market as reported upstream.
type Status string

const (
	StatusActive   Status = "active"
	StatusClosed   Status = "closed"
	StatusResolved Status = "resolved"
)

// Snapshot is a point-in-time read of one binary market. A snapshot is
// immutable once fetched and is superseded by the next poll.
type Snapshot struct {
	MarketID  string
	Question  string
	Category  Category
	YesPrice  float64
	NoPrice   float64
	Liquidity float64
	CloseTime time.Time
	Status    Status
	FetchedAt time.Time
	URL       string
}
