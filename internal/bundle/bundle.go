package bundle

// MaxTxPerBundle is the relay-imposed cap on transactions per bundle.
const MaxTxPerBundle = 5

// Bundle is an ordered set of transaction blobs submitted together to the
// relay. Order is significant: a prepended side-payment must stay first.
type Bundle struct {
	Transactions []string `json:"transactions"`
}

// TxCount sums the transactions across bundles.
func TxCount(bundles []Bundle) int {
	total := 0
	for _, b := range bundles {
		total += len(b.Transactions)
	}
	return total
}

// Split re-partitions bundles so that every output bundle carries at most
// MaxTxPerBundle transactions. The concatenation of output transactions
// equals the concatenation of input transactions; bundles already within the
// limit pass through unchanged.
func Split(bundles []Bundle) []Bundle {
	out := make([]Bundle, 0, len(bundles))
	for _, b := range bundles {
		if len(b.Transactions) == 0 {
			continue
		}
		if len(b.Transactions) <= MaxTxPerBundle {
			out = append(out, b)
			continue
		}
		txs := b.Transactions
		for start := 0; start < len(txs); start += MaxTxPerBundle {
			end := start + MaxTxPerBundle
			if end > len(txs) {
				end = len(txs)
			}
			out = append(out, Bundle{Transactions: txs[start:end]})
		}
	}
	return out
}
