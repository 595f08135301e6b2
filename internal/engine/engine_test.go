package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"dn-arb-bot/internal/config"
	"dn-arb-bot/internal/exchange"

	"go.uber.org/zap"
)

type mockClient struct {
	spotQuote   func(market string) (exchange.Quote, error)
	perpQuote   func(market string) (exchange.Quote, error)
	placeOrder  func(req exchange.OrderRequest) (exchange.Order, error)
	orderStatus func(orderID int64, market string) (exchange.Order, bool, error)
	modifyOrder func(orderID int64, newPrice, newSize *float64) (exchange.Order, error)
	cancelOrder func(orderID int64) error
	fills       func(market string) ([]exchange.RawFill, error)

	funding float64
	borrow  float64
	lend    float64
}

func (m *mockClient) SpotQuote(_ context.Context, market string) (exchange.Quote, error) {
	if m.spotQuote != nil {
		return m.spotQuote(market)
	}
	return exchange.Quote{Bid: 100, Ask: 101}, nil
}

func (m *mockClient) PerpQuote(_ context.Context, market string) (exchange.Quote, error) {
	if m.perpQuote != nil {
		return m.perpQuote(market)
	}
	return exchange.Quote{Bid: 100, Ask: 101}, nil
}

func (m *mockClient) PlaceOrder(_ context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	if m.placeOrder != nil {
		return m.placeOrder(req)
	}
	return exchange.Order{ID: 1}, nil
}

func (m *mockClient) OrderStatus(_ context.Context, orderID int64, market string) (exchange.Order, bool, error) {
	if m.orderStatus != nil {
		return m.orderStatus(orderID, market)
	}
	return exchange.Order{}, false, nil
}

func (m *mockClient) ModifyOrder(_ context.Context, orderID int64, newPrice, newSize *float64) (exchange.Order, error) {
	if m.modifyOrder != nil {
		return m.modifyOrder(orderID, newPrice, newSize)
	}
	return exchange.Order{ID: orderID}, nil
}

func (m *mockClient) CancelOrder(_ context.Context, orderID int64) error {
	if m.cancelOrder != nil {
		return m.cancelOrder(orderID)
	}
	return nil
}

func (m *mockClient) Fills(_ context.Context, market string) ([]exchange.RawFill, error) {
	if m.fills != nil {
		return m.fills(market)
	}
	return nil, nil
}

func (m *mockClient) FundingRate(_ context.Context, _ string) (float64, error) { return m.funding, nil }
func (m *mockClient) BorrowRate(_ context.Context, _ string) (float64, error)  { return m.borrow, nil }
func (m *mockClient) LendRate(_ context.Context, _ string) (float64, error)    { return m.lend, nil }

func testTradeConfig() config.TradeConfig {
	return config.TradeConfig{
		Underlier:       "UND",
		Size:            10,
		Mode:            config.ModeMaker,
		Escalation:      config.EscalationMarket,
		PriceOffsetBps:  5,
		PriceBump:       0.05,
		MonitorTimeout:  time.Second,
		PollInterval:    time.Millisecond,
		RepriceInterval: time.Millisecond,
	}
}

// fakeVenue fills every placed order completely at a fixed price per
// market+side, and immediately drops it from the open-order list.
type fakeVenue struct {
	mockClient

	mu       sync.Mutex
	nextID   int64
	prices   map[string]float64 // "market|side" -> price
	fees     map[string]float64
	byMarket map[string][]exchange.RawFill
	placed   []exchange.OrderRequest
}

func newFakeVenue() *fakeVenue {
	v := &fakeVenue{
		prices: map[string]float64{
			"UND/USD|buy":   1078.4,
			"UND-PERP|sell": 1079.0,
			"UND-PERP|buy":  1075.8,
			"UND/USD|sell":  1074.9,
		},
		fees: map[string]float64{
			"UND/USD|buy":   -0.5,
			"UND-PERP|sell": 0.3,
			"UND-PERP|buy":  0.3,
			"UND/USD|sell":  -0.5,
		},
		byMarket: map[string][]exchange.RawFill{},
	}
	v.placeOrder = func(req exchange.OrderRequest) (exchange.Order, error) {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.nextID++
		v.placed = append(v.placed, req)
		key := req.Market + "|" + string(req.Side)
		fill := exchange.RawFill{
			OrderID: v.nextID,
			Market:  req.Market,
			Side:    req.Side,
			Price:   v.prices[key],
			Size:    req.Size,
			Fee:     v.fees[key],
		}
		// Newest first.
		v.byMarket[req.Market] = append([]exchange.RawFill{fill}, v.byMarket[req.Market]...)
		return exchange.Order{ID: v.nextID}, nil
	}
	v.fills = func(market string) ([]exchange.RawFill, error) {
		v.mu.Lock()
		defer v.mu.Unlock()
		out := make([]exchange.RawFill, len(v.byMarket[market]))
		copy(out, v.byMarket[market])
		return out, nil
	}
	return v
}

func TestRunFullTrade(t *testing.T) {
	venue := newFakeVenue()
	venue.lend = 0.01
	venue.funding = 0.001
	venue.borrow = 0.02

	eng := New(venue, testTradeConfig(), zap.NewNop(), nil, nil)
	trade, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !trade.LongSpot {
		t.Fatalf("expected long-spot direction")
	}

	if got := trade.LongOpen.Price; got != 1078.4 {
		t.Fatalf("long open price: got %v", got)
	}
	if got := trade.ShortOpen.Price; got != 1079.0 {
		t.Fatalf("short open price: got %v", got)
	}
	if got := trade.LongClose.Price; got != 1074.9 {
		t.Fatalf("long close price: got %v", got)
	}
	if got := trade.ShortClose.Price; got != 1075.8 {
		t.Fatalf("short close price: got %v", got)
	}
	if math.Abs(trade.PnL-(-2.6)) > 1e-6 {
		t.Fatalf("pnl: got %v, want -2.6", trade.PnL)
	}

	// Opening buys spot and sells perp; closing mirrors.
	want := []struct {
		market string
		side   exchange.Side
	}{
		{"UND/USD", exchange.SideBuy},
		{"UND-PERP", exchange.SideSell},
		{"UND-PERP", exchange.SideBuy},
		{"UND/USD", exchange.SideSell},
	}
	if len(venue.placed) != len(want) {
		t.Fatalf("orders placed: got %d, want %d", len(venue.placed), len(want))
	}
	for i, w := range want {
		if venue.placed[i].Market != w.market || venue.placed[i].Side != w.side {
			t.Fatalf("order %d: got %s %s, want %s %s",
				i, venue.placed[i].Side, venue.placed[i].Market, w.side, w.market)
		}
	}
}

func TestRunMakerOrdersArePostOnly(t *testing.T) {
	venue := newFakeVenue()
	venue.lend = 0.01

	eng := New(venue, testTradeConfig(), zap.NewNop(), nil, nil)
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, req := range venue.placed {
		if req.Kind != exchange.KindLimit || !req.PostOnly {
			t.Fatalf("order %d: expected post-only limit, got kind=%s postOnly=%v", i, req.Kind, req.PostOnly)
		}
	}
}

func TestRunMarketMode(t *testing.T) {
	venue := newFakeVenue()
	venue.lend = 0.01

	cfg := testTradeConfig()
	cfg.Mode = config.ModeMarket
	eng := New(venue, cfg, zap.NewNop(), nil, nil)
	trade, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, req := range venue.placed {
		if req.Kind != exchange.KindMarket {
			t.Fatalf("order %d: expected market order, got %s", i, req.Kind)
		}
	}
	if math.Abs(trade.PnL-(-2.6)) > 1e-6 {
		t.Fatalf("pnl: got %v, want -2.6", trade.PnL)
	}
}

func TestRunCloseSizesFollowOpeningFills(t *testing.T) {
	venue := newFakeVenue()
	venue.lend = 0.01

	eng := New(venue, testTradeConfig(), zap.NewNop(), nil, nil)
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	// Close orders 2 and 3 buy back the perp short and sell out the spot
	// long, each sized from the opening fill of that market.
	if venue.placed[2].Size != 10 || venue.placed[3].Size != 10 {
		t.Fatalf("close sizes: got %v and %v", venue.placed[2].Size, venue.placed[3].Size)
	}
}
