package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "sol_bundler_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	tradesExecuted   prometheus.Counter
	tradesFailed     prometheus.Counter
	buysExecuted     prometheus.Counter
	sellsExecuted    prometheus.Counter
	bundlesSubmitted prometheus.Counter
	bundlesRejected  prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	tradesExecuted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "trades_executed_total",
		Help:      "Total number of scheduler trades dispatched.",
	})
	tradesFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "trades_failed_total",
		Help:      "Total number of scheduler trades with no successful unit.",
	})
	buysExecuted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "buys_executed_total",
		Help:      "Total number of buy trades dispatched.",
	})
	sellsExecuted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "sells_executed_total",
		Help:      "Total number of sell trades dispatched.",
	})
	bundlesSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "bundles_submitted_total",
		Help:      "Total number of bundles accepted by the relay.",
	})
	bundlesRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "bundles_rejected_total",
		Help:      "Total number of bundles the relay refused.",
	})

	registry.MustRegister(tradesExecuted, tradesFailed, buysExecuted, sellsExecuted, bundlesSubmitted, bundlesRejected)

	m := &Metrics{
		TradesExecuted:   promCounter{tradesExecuted},
		TradesFailed:     promCounter{tradesFailed},
		BuysExecuted:     promCounter{buysExecuted},
		SellsExecuted:    promCounter{sellsExecuted},
		BundlesSubmitted: promCounter{bundlesSubmitted},
		BundlesRejected:  promCounter{bundlesRejected},
	}

	return &Prometheus{
		Metrics:          m,
		registry:         registry,
		tradesExecuted:   tradesExecuted,
		tradesFailed:     tradesFailed,
		buysExecuted:     buysExecuted,
		sellsExecuted:    sellsExecuted,
		bundlesSubmitted: bundlesSubmitted,
		bundlesRejected:  bundlesRejected,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
