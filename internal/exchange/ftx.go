package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"dn-arb-bot/internal/ftx/rest"
)

// ErrNoRate reports that the venue's rates table has no entry for the coin.
// The trade must abort before placing orders when direction inputs are
// missing.
var ErrNoRate = errors.New("no rate listed")

// SpotMarket and PerpMarket map an underlier to FTX market names.
func SpotMarket(underlier string) string { return underlier + "/USD" }
func PerpMarket(underlier string) string { return underlier + "-PERP" }

// FTX adapts the signed REST client to the venue-agnostic Client interface.
type FTX struct {
	rest *rest.Client
}

func NewFTX(restClient *rest.Client) *FTX {
	return &FTX{rest: restClient}
}

type ftxMarket struct {
	Name string  `json:"name"`
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
}

type ftxOrder struct {
	ID            int64   `json:"id"`
	Market        string  `json:"market"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Price         float64 `json:"price"`
	Size          float64 `json:"size"`
	RemainingSize float64 `json:"remainingSize"`
	AvgFillPrice  float64 `json:"avgFillPrice"`
	Status        string  `json:"status"`
	PostOnly      bool    `json:"postOnly"`
}

type ftxFill struct {
	OrderID int64     `json:"orderId"`
	Market  string    `json:"market"`
	Side    string    `json:"side"`
	Price   float64   `json:"price"`
	Size    float64   `json:"size"`
	Fee     float64   `json:"fee"`
	Time    time.Time `json:"time"`
}

type ftxRate struct {
	Coin     string  `json:"coin"`
	Previous float64 `json:"previous"`
	Estimate float64 `json:"estimate"`
}

func (f *FTX) SpotQuote(ctx context.Context, market string) (Quote, error) {
	var m ftxMarket
	if err := f.rest.Get(ctx, "/markets/"+market, nil, &m); err != nil {
		return Quote{}, err
	}
	return Quote{Bid: m.Bid, Ask: m.Ask}, nil
}

func (f *FTX) PerpQuote(ctx context.Context, market string) (Quote, error) {
	var m ftxMarket
	if err := f.rest.Get(ctx, "/futures/"+market, nil, &m); err != nil {
		return Quote{}, err
	}
	return Quote{Bid: m.Bid, Ask: m.Ask}, nil
}

func (f *FTX) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	body := map[string]any{
		"market":     req.Market,
		"side":       string(req.Side),
		"size":       req.Size,
		"type":       string(req.Kind),
		"reduceOnly": false,
		"ioc":        false,
		"postOnly":   req.PostOnly,
	}
	if req.Kind == KindMarket {
		body["price"] = nil
	} else {
		body["price"] = req.Price
	}
	if req.ClientID != "" {
		body["clientId"] = req.ClientID
	}
	var placed ftxOrder
	if err := f.rest.Post(ctx, "/orders", body, &placed); err != nil {
		return Order{}, err
	}
	return toOrder(placed), nil
}

// OrderStatus scans the open-order list; FTX drops fully executed orders
// from it, which the engine treats as resolved.
func (f *FTX) OrderStatus(ctx context.Context, orderID int64, market string) (Order, bool, error) {
	params := url.Values{}
	if market != "" {
		params.Set("market", market)
	}
	var open []ftxOrder
	if err := f.rest.Get(ctx, "/orders", params, &open); err != nil {
		return Order{}, false, err
	}
	for _, o := range open {
		if o.ID == orderID {
			return toOrder(o), true, nil
		}
	}
	return Order{}, false, nil
}

func (f *FTX) ModifyOrder(ctx context.Context, orderID int64, newPrice, newSize *float64) (Order, error) {
	if (newPrice == nil) == (newSize == nil) {
		return Order{}, fmt.Errorf("modify order %d: exactly one of price or size must be set", orderID)
	}
	body := map[string]any{}
	if newPrice != nil {
		body["price"] = *newPrice
	}
	if newSize != nil {
		body["size"] = *newSize
	}
	var modified ftxOrder
	path := fmt.Sprintf("/orders/%d/modify", orderID)
	if err := f.rest.Post(ctx, path, body, &modified); err != nil {
		return Order{}, err
	}
	return toOrder(modified), nil
}

func (f *FTX) CancelOrder(ctx context.Context, orderID int64) error {
	return f.rest.Delete(ctx, fmt.Sprintf("/orders/%d", orderID), nil)
}

func (f *FTX) Fills(ctx context.Context, market string) ([]RawFill, error) {
	params := url.Values{}
	params.Set("market", market)
	params.Set("order", "desc")
	var raw []ftxFill
	if err := f.rest.Get(ctx, "/fills", params, &raw); err != nil {
		return nil, err
	}
	fills := make([]RawFill, 0, len(raw))
	for _, fill := range raw {
		fills = append(fills, RawFill{
			OrderID: fill.OrderID,
			Market:  fill.Market,
			Side:    Side(fill.Side),
			Price:   fill.Price,
			Size:    fill.Size,
			Fee:     fill.Fee,
			Time:    fill.Time,
		})
	}
	return fills, nil
}

func (f *FTX) FundingRate(ctx context.Context, underlier string) (float64, error) {
	var stats struct {
		NextFundingRate float64 `json:"nextFundingRate"`
	}
	if err := f.rest.Get(ctx, "/futures/"+PerpMarket(underlier)+"/stats", nil, &stats); err != nil {
		return 0, err
	}
	return stats.NextFundingRate, nil
}

func (f *FTX) BorrowRate(ctx context.Context, underlier string) (float64, error) {
	return f.rateFor(ctx, "/spot_margin/borrow_rates", underlier)
}

func (f *FTX) LendRate(ctx context.Context, underlier string) (float64, error) {
	return f.rateFor(ctx, "/spot_margin/lending_rates", underlier)
}

// rateFor picks the upcoming (estimate) rate for one coin out of the venue's
// full rates table.
func (f *FTX) rateFor(ctx context.Context, path, coin string) (float64, error) {
	var rates []ftxRate
	if err := f.rest.Get(ctx, path, nil, &rates); err != nil {
		return 0, err
	}
	for _, rate := range rates {
		if rate.Coin == coin {
			return rate.Estimate, nil
		}
	}
	return 0, fmt.Errorf("%w for %s in %s", ErrNoRate, coin, path)
}

func toOrder(o ftxOrder) Order {
	return Order{
		ID:            o.ID,
		Market:        o.Market,
		Side:          Side(o.Side),
		Kind:          Kind(o.Type),
		Price:         o.Price,
		Size:          o.Size,
		RemainingSize: o.RemainingSize,
		AvgFillPrice:  o.AvgFillPrice,
		Status:        o.Status,
		PostOnly:      o.PostOnly,
	}
}
