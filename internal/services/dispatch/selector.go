package dispatch

import (
	"math/rand"
	"time"

	"shipdispatch/internal/models"
)

type Rand interface {
	Intn(n int) int
}

func defaultRand() Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// pickCandidate: every courier within maxDiff of the minimum load is
// eligible, and one of them is taken uniformly at random. Randomness
// stops the least-loaded courier soaking up every order in a quiet
// office while the tolerance still bounds load skew.
func pickCandidate(cands []*models.Courier, load func(*models.Courier) int32, maxDiff int32, r Rand) *models.Courier {
	if len(cands) == 0 {
		return nil
	}
	min := load(cands[0])
	for _, c := range cands[1:] {
		if load(c) < min {
			min = load(c)
		}
	}
	eligible := cands[:0:0]
	for _, c := range cands {
		if load(c)-min <= maxDiff {
			eligible = append(eligible, c)
		}
	}
	return eligible[r.Intn(len(eligible))]
}

func pickupLoad(c *models.Courier) int32   { return c.PickupLoad }
func deliveryLoad(c *models.Courier) int32 { return c.DeliveryLoad }
