package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dn-arb-bot/internal/ftx/rest"

	"go.uber.org/zap"
)

func newTestFTX(t *testing.T, handler http.HandlerFunc) (*FTX, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := rest.New(server.URL, 5*time.Second, rest.Credentials{}, zap.NewNop())
	return NewFTX(client), server
}

func envelope(result any) []byte {
	data, _ := json.Marshal(map[string]any{"success": true, "result": result})
	return data
}

func TestMarketNames(t *testing.T) {
	if got := SpotMarket("SOL"); got != "SOL/USD" {
		t.Fatalf("spot market: got %s", got)
	}
	if got := PerpMarket("SOL"); got != "SOL-PERP" {
		t.Fatalf("perp market: got %s", got)
	}
}

func TestOrderStatusAbsentMeansResolved(t *testing.T) {
	ftx, _ := newTestFTX(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("market") != "SOL/USD" {
			t.Errorf("expected market filter, got %q", r.URL.Query().Get("market"))
		}
		_, _ = w.Write(envelope([]map[string]any{
			{"id": 7, "market": "SOL/USD", "remainingSize": 3.0, "status": "open"},
		}))
	})

	order, found, err := ftx.OrderStatus(context.Background(), 7, "SOL/USD")
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if !found || order.RemainingSize != 3.0 {
		t.Fatalf("expected open order with remaining 3, got found=%v %+v", found, order)
	}

	_, found, err = ftx.OrderStatus(context.Background(), 8, "SOL/USD")
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if found {
		t.Fatal("order 8 is not on the book and must report found=false")
	}
}

func TestPlaceOrderMarketSendsNullPrice(t *testing.T) {
	var body map[string]any
	ftx, _ := newTestFTX(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write(envelope(map[string]any{"id": 11}))
	})

	order, err := ftx.PlaceOrder(context.Background(), OrderRequest{
		Market: "SOL-PERP", Side: SideSell, Kind: KindMarket, Size: 2,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.ID != 11 {
		t.Fatalf("order id: got %d", order.ID)
	}
	if price, present := body["price"]; !present || price != nil {
		t.Fatalf("market order must carry a null price, got %v (present=%v)", price, present)
	}
	if body["type"] != "market" || body["side"] != "sell" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestModifyOrderRequiresExactlyOneField(t *testing.T) {
	ftx, _ := newTestFTX(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(envelope(map[string]any{"id": 12}))
	})

	if _, err := ftx.ModifyOrder(context.Background(), 5, nil, nil); err == nil {
		t.Fatal("expected error when neither price nor size is set")
	}
	price, size := 10.0, 1.0
	if _, err := ftx.ModifyOrder(context.Background(), 5, &price, &size); err == nil {
		t.Fatal("expected error when both price and size are set")
	}
	modified, err := ftx.ModifyOrder(context.Background(), 5, &price, nil)
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if modified.ID != 12 {
		t.Fatalf("expected replacement id 12, got %d", modified.ID)
	}
}

func TestFillsRequestsNewestFirst(t *testing.T) {
	ftx, _ := newTestFTX(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("order") != "desc" {
			t.Errorf("expected order=desc, got %q", r.URL.Query().Get("order"))
		}
		if r.URL.Query().Get("market") != "SOL/USD" {
			t.Errorf("expected market=SOL/USD, got %q", r.URL.Query().Get("market"))
		}
		_, _ = w.Write(envelope([]map[string]any{
			{"orderId": 7, "market": "SOL/USD", "side": "buy", "price": 100.0, "size": 1.5, "fee": -0.01},
		}))
	})

	fills, err := ftx.Fills(context.Background(), "SOL/USD")
	if err != nil {
		t.Fatalf("fills: %v", err)
	}
	if len(fills) != 1 || fills[0].OrderID != 7 || fills[0].Fee != -0.01 {
		t.Fatalf("unexpected fills: %+v", fills)
	}
}

func TestRateForMissingCoin(t *testing.T) {
	ftx, _ := newTestFTX(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(envelope([]map[string]any{
			{"coin": "BTC", "previous": 1e-6, "estimate": 2e-6},
		}))
	})

	rate, err := ftx.BorrowRate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("borrow rate: %v", err)
	}
	if rate != 2e-6 {
		t.Fatalf("expected estimate rate, got %v", rate)
	}
	if _, err := ftx.BorrowRate(context.Background(), "SOL"); !errors.Is(err, ErrNoRate) {
		t.Fatalf("expected ErrNoRate for coin absent from rates table, got %v", err)
	}
}
