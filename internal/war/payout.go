package war

import (
	"math/big"

	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

// Payout is what each side gets back from the pot at settlement.
type Payout struct {
	Winner     string `json:"winner"`
	Challenger int64  `json:"challengerPayout"`
	Defender   int64  `json:"defenderPayout"`
}

// ComputePayout decides the winner of w from its running score and splits
// the pot of twice the stake. The two payouts always sum to the pot.
func ComputePayout(w *store.War) Payout {
	stake := w.Terms.PrizePool
	pot := 2 * stake
	c, d := w.Progress.ChallengerScore, w.Progress.DefenderScore

	p := Payout{Winner: store.Draw, Challenger: stake, Defender: stake}
	switch {
	case c > d:
		p.Winner = w.ChallengerTag
	case d > c:
		p.Winner = w.DefenderTag
	default:
		return p
	}

	switch w.Terms.WinCondition {
	case store.WinPercentage:
		total := c + d
		if total <= 0 {
			return p
		}
		p.Challenger = proportion(pot, max(c, 0), total)
		p.Defender = pot - p.Challenger
	default:
		if p.Winner == w.ChallengerTag {
			p.Challenger, p.Defender = pot, 0
		} else {
			p.Challenger, p.Defender = 0, pot
		}
	}
	return p
}

// proportion is floor(pot * part / total) without int64 overflow.
func proportion(pot, part, total int64) int64 {
	n := new(big.Int).Mul(big.NewInt(pot), big.NewInt(part))
	return n.Quo(n, big.NewInt(total)).Int64()
}
