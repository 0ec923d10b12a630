package detector

import (
	"cmp"
	"slices"
)

// Rank orders one cycle's opportunities highest value first:
// profit per lot descending, then earlier close time, since a
// near-expiry market has a narrower execution window. The sort is
// stable, so equal keys keep their input order and re-ranking the
// same set is idempotent.
func Rank(opps []Opportunity) []Opportunity {
	ranked := slices.Clone(opps)
	slices.SortStableFunc(ranked, func(a, b Opportunity) int {
		if c := cmp.Compare(b.ProfitPerLot, a.ProfitPerLot); c != 0 {
			return c
		}
		return a.CloseTime.Compare(b.CloseTime)
	})
	return ranked
}
