package exchange

import (
	"context"
	"time"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Kind string

const (
	KindLimit  Kind = "limit"
	KindMarket Kind = "market"
)

type Quote struct {
	Bid float64
	Ask float64
}

// Order is the venue's view of one order. RemainingSize is non-negative and
// only shrinks while the order rests on the book.
type Order struct {
	ID            int64
	Market        string
	Side          Side
	Kind          Kind
	Price         float64
	Size          float64
	RemainingSize float64
	AvgFillPrice  float64
	Status        string
	PostOnly      bool
}

type OrderRequest struct {
	Market   string
	Side     Side
	Kind     Kind
	Price    float64 // ignored for market orders
	Size     float64
	PostOnly bool
	ClientID string
}

// RawFill is a single venue execution record. Fee is signed: maker rebates
// come back negative on the venues modeled here.
type RawFill struct {
	OrderID int64
	Market  string
	Side    Side
	Price   float64
	Size    float64
	Fee     float64
	Time    time.Time
}

// Client is the venue capability set the engine runs against. Implementations
// are stateless facades over one exchange session; every call is a network
// round trip and may fail with a transport error or a venue rejection.
type Client interface {
	SpotQuote(ctx context.Context, market string) (Quote, error)
	PerpQuote(ctx context.Context, market string) (Quote, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	// OrderStatus reports the live order, or found=false once the venue no
	// longer returns it (fully executed or cancelled).
	OrderStatus(ctx context.Context, orderID int64, market string) (Order, bool, error)
	ModifyOrder(ctx context.Context, orderID int64, newPrice, newSize *float64) (Order, error)
	CancelOrder(ctx context.Context, orderID int64) error

	// Fills returns execution records for a market, most recent first.
	Fills(ctx context.Context, market string) ([]RawFill, error)

	FundingRate(ctx context.Context, underlier string) (float64, error)
	BorrowRate(ctx context.Context, underlier string) (float64, error)
	LendRate(ctx context.Context, underlier string) (float64, error)
}
