package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	TradesExecuted   Counter
	TradesFailed     Counter
	BuysExecuted     Counter
	SellsExecuted    Counter
	BundlesSubmitted Counter
	BundlesRejected  Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		TradesExecuted:   n,
		TradesFailed:     n,
		BuysExecuted:     n,
		SellsExecuted:    n,
		BundlesSubmitted: n,
		BundlesRejected:  n,
	}
}
