package engine

import (
	"dn-arb-bot/internal/exchange"
)

type Phase string

const (
	PhaseOpen  Phase = "open"
	PhaseClose Phase = "close"
)

type Role string

const (
	RoleSpot Role = "spot"
	RolePerp Role = "perp"
)

// EffectiveFill is the reduction of one leg's raw executions in one phase:
// size-weighted price, summed size, summed signed fee.
type EffectiveFill struct {
	OrderID int64
	Price   float64
	Size    float64
	Fee     float64
}

// Trade aggregates one full round trip on one underlier. LongSpot is decided
// once at trade start; all later long/short market assignment derives from it
// combined with the phase.
type Trade struct {
	Underlier string
	Size      float64
	LongSpot  bool

	LongOpen   EffectiveFill
	ShortOpen  EffectiveFill
	LongClose  EffectiveFill
	ShortClose EffectiveFill

	PnL float64
}

// Leg is one side of the paired trade during one phase. OrderIDs accumulates
// every order that worked this leg (the resting maker order plus any
// escalation replacements) so fills can be merged across identifiers.
type Leg struct {
	Market        string
	Role          Role
	Side          exchange.Side
	RequestedSize float64

	OrderID   int64
	OrderIDs  []int64
	Remaining float64
	Resolved  bool
}

type legPair struct {
	Long  *Leg
	Short *Leg
}

func (p *legPair) both() []*Leg {
	return []*Leg{p.Long, p.Short}
}

// legsForPhase assigns markets and sizes for one phase. The long market is
// spot exactly when longSpot matches the opening phase; closing inverts the
// mapping because closing the short market means buying it back. Closing legs
// are sized from the opening effective fill of the same market.
func legsForPhase(trade *Trade, phase Phase) *legPair {
	longIsSpot := trade.LongSpot == (phase == PhaseOpen)

	longLeg := &Leg{Side: exchange.SideBuy, RequestedSize: trade.Size}
	shortLeg := &Leg{Side: exchange.SideSell, RequestedSize: trade.Size}
	if longIsSpot {
		longLeg.Market, longLeg.Role = exchange.SpotMarket(trade.Underlier), RoleSpot
		shortLeg.Market, shortLeg.Role = exchange.PerpMarket(trade.Underlier), RolePerp
	} else {
		longLeg.Market, longLeg.Role = exchange.PerpMarket(trade.Underlier), RolePerp
		shortLeg.Market, shortLeg.Role = exchange.SpotMarket(trade.Underlier), RoleSpot
	}
	if phase == PhaseClose {
		// The close-phase long leg buys back what the opening short leg
		// sold, and vice versa.
		longLeg.RequestedSize = trade.ShortOpen.Size
		shortLeg.RequestedSize = trade.LongOpen.Size
	}
	return &legPair{Long: longLeg, Short: shortLeg}
}
