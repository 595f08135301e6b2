package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "dn_arb_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry        *prometheus.Registry
	ordersPlaced    prometheus.Counter
	ordersFailed    prometheus.Counter
	escalations     prometheus.Counter
	tradesCompleted prometheus.Counter
	tradesFailed    prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of orders placed.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of order placement failures.",
	})
	escalations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "escalations_total",
		Help:      "Total number of leftover-leg escalations.",
	})
	tradesCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "trades_completed_total",
		Help:      "Total number of trades completed end to end.",
	})
	tradesFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "trades_failed_total",
		Help:      "Total number of trades aborted mid-flight.",
	})

	registry.MustRegister(ordersPlaced, ordersFailed, escalations, tradesCompleted, tradesFailed)

	m := &Metrics{
		OrdersPlaced:    promCounter{ordersPlaced},
		OrdersFailed:    promCounter{ordersFailed},
		Escalations:     promCounter{escalations},
		TradesCompleted: promCounter{tradesCompleted},
		TradesFailed:    promCounter{tradesFailed},
	}

	return &Prometheus{
		Metrics:         m,
		registry:        registry,
		ordersPlaced:    ordersPlaced,
		ordersFailed:    ordersFailed,
		escalations:     escalations,
		tradesCompleted: tradesCompleted,
		tradesFailed:    tradesFailed,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
