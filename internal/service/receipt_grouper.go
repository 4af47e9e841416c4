package service

import (
	"github.com/near-pulse/internal/types"
)

// GroupReceipts partitions receipts by transaction hash. Receipts touching the
// system account and receipts without a hash are dropped; groups left empty are
// not emitted. Groups appear in first-seen order and keep input order inside.
func GroupReceipts(receipts []types.RawReceipt) []types.ReceiptGroup {
	index := make(map[string]int)
	groups := make([]types.ReceiptGroup, 0)

	for _, r := range receipts {
		if r.TransactionHash == "" || r.TouchesSystem() {
			continue
		}
		i, ok := index[r.TransactionHash]
		if !ok {
			i = len(groups)
			index[r.TransactionHash] = i
			groups = append(groups, types.ReceiptGroup{Hash: r.TransactionHash})
		}
		groups[i].Receipts = append(groups[i].Receipts, r)
	}

	return groups
}
