package detector

import (
	"math/rand"
	"testing"
	"time"
)

func TestRank_ProfitDescending(t *testing.T) {
	now := time.Now()
	opps := []Opportunity{
		{MarketID: "small", ProfitPerLot: 0.10, CloseTime: now},
		{MarketID: "big", ProfitPerLot: 0.50, CloseTime: now},
		{MarketID: "mid", ProfitPerLot: 0.30, CloseTime: now},
	}

	ranked := Rank(opps)

	want := []string{"big", "mid", "small"}
	for i, id := range want {
		if ranked[i].MarketID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, ranked[i].MarketID)
		}
	}
}

func TestRank_TieBreaksOnEarlierClose(t *testing.T) {
	now := time.Now()
	opps := []Opportunity{
		{MarketID: "later", ProfitPerLot: 0.30, CloseTime: now.Add(time.Hour)},
		{MarketID: "sooner", ProfitPerLot: 0.30, CloseTime: now.Add(5 * time.Minute)},
	}

	ranked := Rank(opps)

	if ranked[0].MarketID != "sooner" {
		t.Errorf("expected near-expiry market first, got %s", ranked[0].MarketID)
	}
}

func TestRank_DeterministicForAnyPermutation(t *testing.T) {
	now := time.Now()
	base := []Opportunity{
		{MarketID: "a", ProfitPerLot: 0.40, CloseTime: now.Add(10 * time.Minute)},
		{MarketID: "b", ProfitPerLot: 0.40, CloseTime: now.Add(5 * time.Minute)},
		{MarketID: "c", ProfitPerLot: 0.25, CloseTime: now.Add(1 * time.Minute)},
		{MarketID: "d", ProfitPerLot: 0.60, CloseTime: now.Add(30 * time.Minute)},
	}

	reference := Rank(base)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		shuffled := make([]Opportunity, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		ranked := Rank(shuffled)
		for i := range reference {
			if ranked[i].MarketID != reference[i].MarketID {
				t.Fatalf("trial %d: position %d differs (%s vs %s)",
					trial, i, ranked[i].MarketID, reference[i].MarketID)
			}
		}
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	now := time.Now()
	opps := []Opportunity{
		{MarketID: "x", ProfitPerLot: 0.10, CloseTime: now},
		{MarketID: "y", ProfitPerLot: 0.90, CloseTime: now},
	}

	Rank(opps)

	if opps[0].MarketID != "x" || opps[1].MarketID != "y" {
		t.Error("Rank must not reorder its input slice")
	}
}
