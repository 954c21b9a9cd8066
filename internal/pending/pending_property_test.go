package pending

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"cryptotrader/internal/models"
)

// Property: for any sequence of Create calls on the same (model, coin),
// at most one row is ever in PendingStatusPending at a time — the
// uniqueness invariant behind ErrDuplicatePending (§4.5/§8).
func TestProperty_AtMostOnePendingPerModelCoin(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	attemptsGen := gen.IntRange(1, 8)
	coinGen := gen.OneConstOf("BTC", "ETH")

	properties.Property("at most one pending row per (model, coin) after any number of Create attempts", prop.ForAll(
		func(attempts int, coin string) bool {
			st := newMemStore()
			st.settings = looseSettings()
			st.portfolio = models.Portfolio{ModelID: 1, Cash: decimal.NewFromInt(10000), TotalValue: decimal.NewFromInt(10000)}
			q := testQueue(st)

			decision := models.Decision{Coin: coin, Signal: models.SignalBuyToEnter, Quantity: decimal.NewFromFloat(0.01), EntryPrice: decimal.NewFromInt(100)}

			for i := 0; i < attempts; i++ {
				_, _ = q.Create(context.Background(), 1, decision)
			}

			pendingCount := 0
			for _, p := range st.pending {
				if p.ModelID == 1 && p.Coin == coin && p.Status == models.PendingStatusPending {
					pendingCount++
				}
			}
			return pendingCount <= 1
		},
		attemptsGen, coinGen,
	))

	properties.TestingRun(t)
}

// Property: resolving a row (approve or reject) always leaves it out of
// the pending set, regardless of how many prior duplicate attempts were
// made against the same (model, coin) — resolution frees the slot for a
// fresh Create.
func TestProperty_ResolvingFreesModelCoinSlotForNewCreate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	coinGen := gen.OneConstOf("BTC", "ETH", "SOL")

	properties.Property("reject then create succeeds without ErrDuplicatePending", prop.ForAll(
		func(coin string) bool {
			st := newMemStore()
			st.settings = looseSettings()
			st.portfolio = models.Portfolio{ModelID: 1, Cash: decimal.NewFromInt(10000), TotalValue: decimal.NewFromInt(10000)}
			q := testQueue(st)

			decision := models.Decision{Coin: coin, Signal: models.SignalBuyToEnter, Quantity: decimal.NewFromFloat(0.01), EntryPrice: decimal.NewFromInt(100)}

			p, err := q.Create(context.Background(), 1, decision)
			if err != nil {
				return false
			}
			if err := q.Reject(context.Background(), p.ID, "test"); err != nil {
				return false
			}
			_, err = q.Create(context.Background(), 1, decision)
			return err == nil
		},
		coinGen,
	))

	properties.TestingRun(t)
}
