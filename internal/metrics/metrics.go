package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersPlaced    Counter
	OrdersFailed    Counter
	Escalations     Counter
	TradesCompleted Counter
	TradesFailed    Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:    n,
		OrdersFailed:    n,
		Escalations:     n,
		TradesCompleted: n,
		TradesFailed:    n,
	}
}
