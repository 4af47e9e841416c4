package service

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/near-pulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupReceipts(t *testing.T) {
	receipts := []types.RawReceipt{
		{TransactionHash: "H1", Sender: "alice.near", Receiver: "v2.ref-finance.near"},
		{TransactionHash: "H2", Sender: "alice.near", Receiver: "bob.near"},
		{TransactionHash: "H1", Sender: "v2.ref-finance.near", Receiver: "wrap.near"},
		{TransactionHash: "H3", Sender: "system", Receiver: "alice.near"},
		{TransactionHash: "", Sender: "alice.near", Receiver: "x.near"},
		{TransactionHash: "H1", Sender: "wrap.near", Receiver: "system"},
	}

	groups := GroupReceipts(receipts)

	require.Len(t, groups, 2)
	assert.Equal(t, "H1", groups[0].Hash)
	require.Len(t, groups[0].Receipts, 2)
	assert.Equal(t, "v2.ref-finance.near", groups[0].Receipts[0].Receiver)
	assert.Equal(t, "wrap.near", groups[0].Receipts[1].Receiver)
	assert.Equal(t, "H2", groups[1].Hash)
}

func TestGroupReceipts_Empty(t *testing.T) {
	assert.Empty(t, GroupReceipts(nil))
	assert.Empty(t, GroupReceipts([]types.RawReceipt{{TransactionHash: "H", Sender: "system"}}))
}

func TestGroupReceipts_Partition(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("groups partition the filtered receipts by hash", prop.ForAll(
		func(hashes []int, senders []bool) bool {
			receipts := make([]types.RawReceipt, len(hashes))
			for i, h := range hashes {
				sender := "alice.near"
				if i < len(senders) && senders[i] {
					sender = types.SystemAccount
				}
				receipts[i] = types.RawReceipt{
					TransactionHash: fmt.Sprintf("H%d", h),
					Sender:          sender,
					Receiver:        fmt.Sprintf("r%d.near", i),
				}
			}

			kept := 0
			for _, r := range receipts {
				if !r.TouchesSystem() {
					kept++
				}
			}

			seen := map[string]bool{}
			total := 0
			for _, g := range GroupReceipts(receipts) {
				if len(g.Receipts) == 0 || seen[g.Hash] {
					return false
				}
				seen[g.Hash] = true
				for _, r := range g.Receipts {
					if r.TransactionHash != g.Hash || r.TouchesSystem() {
						return false
					}
				}
				total += len(g.Receipts)
			}
			return total == kept
		},
		gen.SliceOf(gen.IntRange(0, 8)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
