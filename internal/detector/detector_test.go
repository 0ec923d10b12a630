package detector

import (
	"errors"
	"math"
	"testing"
	"time"

	"structfarm/internal/market"
)

func defaultConfig() Config {
	return Config{
		MinEdge:      0.02,
		MinLiquidity: 5000,
		LotSize:      10,
	}
}

func activeSnapshot(yes, no, liquidity float64) market.Snapshot {
	return market.Snapshot{
		MarketID:  "btc-updown-15m-1771086600",
		Question:  "BTC up or down?",
		Category:  market.Category15Min,
		YesPrice:  yes,
		NoPrice:   no,
		Liquidity: liquidity,
		CloseTime: time.Now().Add(15 * time.Minute),
		Status:    market.StatusActive,
		FetchedAt: time.Now(),
	}
}

func TestDetect_AcceptsMispricedMarket(t *testing.T) {
	snap := activeSnapshot(0.52, 0.51, 12450)

	opp, err := Detect(snap, defaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if opp == nil {
		t.Fatal("expected an opportunity")
	}
	if math.Abs(opp.Edge-0.03) > 1e-9 {
		t.Errorf("expected edge 0.03, got %g", opp.Edge)
	}
	if math.Abs(opp.ProfitPerLot-0.30) > 1e-9 {
		t.Errorf("expected profit per lot 0.30, got %g", opp.ProfitPerLot)
	}
	if opp.MarketID != snap.MarketID {
		t.Errorf("expected market id %s, got %s", snap.MarketID, opp.MarketID)
	}
	if !opp.DetectedAt.Equal(snap.FetchedAt) {
		t.Error("detected_at should carry the snapshot fetch time")
	}
}

func TestDetect_ProfitIsExactlyEdgeTimesLot(t *testing.T) {
	cfg := defaultConfig()
	for _, lot := range []float64{1, 10, 25, 100} {
		cfg.LotSize = lot
		opp, err := Detect(activeSnapshot(0.55, 0.50, 9000), cfg)
		if err != nil {
			t.Fatal(err)
		}
		if opp == nil {
			t.Fatal("expected an opportunity")
		}
		if opp.ProfitPerLot != opp.Edge*lot {
			t.Errorf("lot %g: profit %g != edge %g * lot", lot, opp.ProfitPerLot, opp.Edge)
		}
	}
}

func TestDetect_RejectsEdgeAtOrBelowThreshold(t *testing.T) {
	cases := []struct {
		name     string
		yes, no  float64
	}{
		{"sums to one", 0.50, 0.50},
		{"below one", 0.48, 0.50},
		{"edge exactly at threshold", 0.51, 0.51}, // edge == 0.02, strict bound
		{"edge just under threshold", 0.52, 0.4999},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opp, err := Detect(activeSnapshot(tc.yes, tc.no, 10000), defaultConfig())
			if err != nil {
				t.Fatal(err)
			}
			if opp != nil {
				t.Errorf("expected no opportunity for yes=%g no=%g, got edge %g", tc.yes, tc.no, opp.Edge)
			}
		})
	}
}

func TestDetect_RejectsLowLiquidity(t *testing.T) {
	opp, err := Detect(activeSnapshot(0.52, 0.51, 3000), defaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if opp != nil {
		t.Error("expected no opportunity below the liquidity floor")
	}
}

func TestDetect_RejectsInactiveMarkets(t *testing.T) {
	for _, status := range []market.Status{market.StatusClosed, market.StatusResolved} {
		snap := activeSnapshot(0.52, 0.51, 12450)
		snap.Status = status
		opp, err := Detect(snap, defaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		if opp != nil {
			t.Errorf("expected no opportunity for %s market", status)
		}
	}
}

func TestDetect_MalformedQuoteFails(t *testing.T) {
	cases := []struct {
		name    string
		yes, no float64
	}{
		{"yes above one", 1.2, 0.5},
		{"no above one", 0.5, 1.01},
		{"yes negative", -0.1, 0.5},
		{"no negative", 0.5, -0.01},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opp, err := Detect(activeSnapshot(tc.yes, tc.no, 10000), defaultConfig())
			if !errors.Is(err, ErrMalformedQuote) {
				t.Fatalf("expected ErrMalformedQuote, got %v", err)
			}
			if opp != nil {
				t.Error("malformed quote must not produce an opportunity")
			}
		})
	}
}

func TestDetect_IsDeterministic(t *testing.T) {
	snap := activeSnapshot(0.53, 0.52, 8000)
	cfg := defaultConfig()

	first, err := Detect(snap, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Detect(snap, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if *again != *first {
			t.Fatal("repeated detection on the same snapshot diverged")
		}
	}
}
