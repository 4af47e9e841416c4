package service

import (
	stdjson "encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/near-pulse/internal/metrics"
	"github.com/near-pulse/internal/types"
	"github.com/shopspring/decimal"
)

var (
	transferThreshold = decimal.RequireFromString("0.01")
	dustThreshold     = decimal.RequireFromString("0.001")
)

const (
	dustMaxReceipts    = 2
	defaultDetailLabel = "Transfer"
	truncateAbove      = 20
)

// dexMarkers are checked in order; the first matching marker names the exchange
var dexMarkers = []struct{ marker, name string }{
	{"ref-finance", "Ref Finance"},
	{"rhea", "RHEA"},
}

// claimMarkers are checked in priority order
var claimMarkers = []struct{ marker, description string }{
	{"hot.tg", "Claim HOT"},
	{"harvest-moon", "Claim MOON"},
	{"meteor", "Claim Meteor"},
}

var (
	bridgeMarkers = []string{"bridge.near", "rainbow", "omni", "aurora"}
	nftMarkers    = []string{"paras", "mintbase", "tradeport", "nft"}
	tokenMarkers  = []string{".tkn.", "token.", "meme-cooking"}
)

const nftMethodMarker = "nft_transfer"

var ftTransferMethods = map[string]bool{
	"ft_transfer":      true,
	"ft_transfer_call": true,
}

// groupFacts are the values every rule reads, computed once per group
type groupFacts struct {
	account string
	first   types.RawReceipt
	count   int
	// every other party in first-seen order, receivers before senders
	counterparties []string
	methods        []string
	netDeposited   decimal.Decimal
	netReceived    decimal.Decimal
}

func (f *groupFacts) outgoing() bool {
	return f.first.Sender == f.account
}

// party is the other side of the representative receipt
func (f *groupFacts) party() string {
	if f.outgoing() {
		return f.first.Receiver
	}
	return f.first.Sender
}

// protocol is the first other party, or the first receiver when the account only talks to itself
func (f *groupFacts) protocol() string {
	if len(f.counterparties) > 0 {
		return f.counterparties[0]
	}
	return f.first.Receiver
}

// movedAmount is the native amount moved in the representative direction
func (f *groupFacts) movedAmount() decimal.Decimal {
	if f.outgoing() {
		return f.netDeposited
	}
	return f.netReceived
}

func (f *groupFacts) counterpartyWith(markers ...string) (string, bool) {
	for _, c := range f.counterparties {
		for _, m := range markers {
			if strings.Contains(c, m) {
				return c, true
			}
		}
	}
	return "", false
}

func (f *groupFacts) hasCounterparty(markers ...string) bool {
	_, ok := f.counterpartyWith(markers...)
	return ok
}

// classification is what a rule decides; derived fields are filled in by the classifier
type classification struct {
	kind        types.ActivityKind
	category    types.Category
	description string
	amount      decimal.Decimal
	drop        bool
}

type classificationRule struct {
	name  string
	match func(f *groupFacts) bool
	build func(f *groupFacts) classification
}

// rules are evaluated in order; the first match wins
var rules = []classificationRule{
	{
		name: "swap",
		match: func(f *groupFacts) bool {
			for _, d := range dexMarkers {
				if f.hasCounterparty(d.marker) {
					return f.count > 1
				}
			}
			return false
		},
		build: func(f *groupFacts) classification {
			name := ""
			for _, d := range dexMarkers {
				if f.hasCounterparty(d.marker) {
					name = d.name
					break
				}
			}
			return classification{
				kind:        types.KindSwap,
				category:    types.CategoryDeFi,
				description: "Swap на " + name,
				amount:      f.netDeposited,
			}
		},
	},
	{
		name: "claim",
		match: func(f *groupFacts) bool {
			for _, c := range claimMarkers {
				if f.hasCounterparty(c.marker) {
					return true
				}
			}
			return false
		},
		build: func(f *groupFacts) classification {
			out := classification{kind: types.KindClaim, category: types.CategoryGaming}
			for _, c := range claimMarkers {
				if f.hasCounterparty(c.marker) {
					out.description = c.description
					break
				}
			}
			return out
		},
	},
	{
		name:  "bridge",
		match: func(f *groupFacts) bool { return f.hasCounterparty(bridgeMarkers...) },
		build: func(f *groupFacts) classification {
			c, _ := f.counterpartyWith(bridgeMarkers...)
			return classification{
				kind:        types.KindBridge,
				category:    types.CategoryDeFi,
				description: "Bridge → " + truncateID(c),
			}
		},
	},
	{
		name: "nft",
		match: func(f *groupFacts) bool {
			if f.hasCounterparty(nftMarkers...) {
				return true
			}
			for _, m := range f.methods {
				if strings.Contains(m, nftMethodMarker) {
					return true
				}
			}
			return false
		},
		build: func(f *groupFacts) classification {
			if f.outgoing() {
				return classification{
					kind:        types.KindNFTOut,
					category:    types.CategoryNFT,
					description: "Отправлен NFT → " + truncateID(f.party()),
				}
			}
			return classification{
				kind:        types.KindNFTIn,
				category:    types.CategoryNFT,
				description: "Получен NFT ← " + truncateID(f.party()),
			}
		},
	},
	{
		name: "transfer",
		match: func(f *groupFacts) bool {
			return f.count == 1 && f.movedAmount().GreaterThan(transferThreshold)
		},
		build: func(f *groupFacts) classification {
			if f.outgoing() {
				return classification{
					kind:        types.KindTransferOut,
					category:    types.CategoryTransfers,
					description: "Перевод → " + truncateID(f.party()),
					amount:      f.movedAmount(),
				}
			}
			return classification{
				kind:        types.KindTransferIn,
				category:    types.CategoryTransfers,
				description: "Получено ← " + truncateID(f.party()),
				amount:      f.movedAmount(),
			}
		},
	},
	{
		name:  "token",
		match: func(f *groupFacts) bool { return f.hasCounterparty(tokenMarkers...) },
		build: func(f *groupFacts) classification {
			c, _ := f.counterpartyWith(tokenMarkers...)
			verb := "Получено "
			if f.outgoing() {
				verb = "Отправлено "
			}
			return classification{
				kind:        types.KindToken,
				category:    types.CategoryDeFi,
				description: verb + tokenDisplayName(c),
			}
		},
	},
	{
		name: "dust",
		match: func(f *groupFacts) bool {
			return f.count <= dustMaxReceipts && f.netDeposited.Add(f.netReceived).LessThan(dustThreshold)
		},
		build: func(f *groupFacts) classification { return classification{drop: true} },
	},
	{
		name:  "contract",
		match: func(f *groupFacts) bool { return true },
		build: func(f *groupFacts) classification {
			description := "Вызов контракта → " + truncateID(f.first.Receiver)
			if m := firstMethod(f.first); m != "" {
				description = "Вызов контракта: " + m
			}
			if f.count > 1 {
				description += fmt.Sprintf(" (%d транзакций)", f.count)
			}
			return classification{
				kind:        types.KindContract,
				category:    types.CategoryOther,
				description: description,
			}
		},
	},
}

// ActivityClassifier turns receipt groups into activity records
type ActivityClassifier struct {
	now func() time.Time
}

// NewActivityClassifier creates a classifier. now defaults to time.Now and is only
// used for relative time labels.
func NewActivityClassifier(now func() time.Time) *ActivityClassifier {
	if now == nil {
		now = time.Now
	}
	return &ActivityClassifier{now: now}
}

// ClassifyActivities groups receipts by hash and classifies every group, skipping
// groups that carry no user-visible meaning. Output follows group order.
func (c *ActivityClassifier) ClassifyActivities(receipts []types.RawReceipt, account string) []types.ActivityRecord {
	groups := GroupReceipts(receipts)
	activities := make([]types.ActivityRecord, 0, len(groups))
	for _, g := range groups {
		if rec, ok := c.Classify(g, account); ok {
			activities = append(activities, rec)
		}
	}
	return activities
}

// Classify converts one group into at most one activity. The bool is false when the
// group is empty or judged to be dust.
func (c *ActivityClassifier) Classify(group types.ReceiptGroup, account string) (types.ActivityRecord, bool) {
	if len(group.Receipts) == 0 {
		return types.ActivityRecord{}, false
	}

	facts := collectFacts(group, account)

	var decided classification
	for _, rule := range rules {
		if rule.match(facts) {
			decided = rule.build(facts)
			break
		}
	}
	if decided.drop {
		return types.ActivityRecord{}, false
	}

	rec := types.ActivityRecord{
		ID:                     facts.first.TransactionHash,
		Kind:                   decided.kind,
		Icon:                   decided.kind.Icon(),
		CounterpartyOrProtocol: facts.protocol(),
		Description:            decided.description,
		RelativeTime:           RelativeTime(earliestTimestamp(group), c.now()),
		TimestampNs:            facts.first.BlockTimestamp,
		ResultText:             resultText(decided),
		Category:               decided.category,
		ReceiptCount:           facts.count,
		AllHashes:              uniqueHashes(group),
		NetDeposited:           facts.netDeposited,
		NetReceived:            facts.netReceived,
		TokenTransfers:         tokenTransfers(group),
		PerReceiptDetail:       make([]types.ReceiptDetail, 0, facts.count),
	}

	for _, r := range group.Receipts {
		fee := types.ToNative(r.Fee)
		rec.TotalFee = rec.TotalFee.Add(fee)

		method := firstMethod(r)
		if method == "" {
			method = defaultDetailLabel
		}
		rec.PerReceiptDetail = append(rec.PerReceiptDetail, types.ReceiptDetail{
			Method:   method,
			Contract: r.Receiver,
			Fee:      fee,
		})
	}

	metrics.ActivitiesClassified.WithLabelValues(string(rec.Kind)).Inc()
	return rec, true
}

func collectFacts(group types.ReceiptGroup, account string) *groupFacts {
	f := &groupFacts{
		account: account,
		first:   group.Receipts[0],
		count:   len(group.Receipts),
	}

	seen := make(map[string]bool)
	for _, r := range group.Receipts {
		for _, id := range []string{r.Receiver, r.Sender} {
			if id != "" && id != account && !seen[id] {
				seen[id] = true
				f.counterparties = append(f.counterparties, id)
			}
		}

		deposit := types.ToNative(r.Deposit)
		switch {
		case r.Sender == account:
			f.netDeposited = f.netDeposited.Add(deposit)
		case r.Receiver == account:
			f.netReceived = f.netReceived.Add(deposit)
		}

		for _, a := range r.Actions {
			if a.Method != "" {
				f.methods = append(f.methods, a.Method)
			}
		}
	}
	return f
}

func resultText(c classification) string {
	if !c.amount.IsPositive() {
		return ""
	}
	sign := "+"
	if c.kind == types.KindTransferOut {
		sign = "-"
	}
	return sign + c.amount.StringFixed(2) + " NEAR"
}

func firstMethod(r types.RawReceipt) string {
	for _, a := range r.Actions {
		if a.Method != "" {
			return a.Method
		}
	}
	return ""
}

func tokenTransfers(group types.ReceiptGroup) []types.TokenTransfer {
	transfers := make([]types.TokenTransfer, 0)
	for _, r := range group.Receipts {
		for _, a := range r.Actions {
			if !ftTransferMethods[a.Method] {
				continue
			}
			amount := argString(a.Args, "amount")
			if amount == "" {
				continue
			}
			transfers = append(transfers, types.TokenTransfer{
				TokenSymbol: strings.ToUpper(strings.Split(r.Receiver, ".")[0]),
				Contract:    r.Receiver,
				RawAmount:   amount,
			})
		}
	}
	return transfers
}

// argString reads a string or numeric argument
func argString(args map[string]interface{}, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case stdjson.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d.String()
		}
		return v.String()
	case float64:
		return decimal.NewFromFloat(v).String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func earliestTimestamp(group types.ReceiptGroup) int64 {
	var earliest int64
	for _, r := range group.Receipts {
		if r.BlockTimestamp == 0 {
			continue
		}
		if earliest == 0 || r.BlockTimestamp < earliest {
			earliest = r.BlockTimestamp
		}
	}
	return earliest
}

func uniqueHashes(group types.ReceiptGroup) []string {
	seen := make(map[string]bool)
	hashes := make([]string, 0, 1)
	for _, r := range group.Receipts {
		if !seen[r.TransactionHash] {
			seen[r.TransactionHash] = true
			hashes = append(hashes, r.TransactionHash)
		}
	}
	return hashes
}

// truncateID shortens long identifiers to their first 8 and last 6 characters
func truncateID(id string) string {
	if len(id) <= truncateAbove {
		return id
	}
	return id[:8] + "..." + id[len(id)-6:]
}

// tokenDisplayName derives a ticker from a token contract identifier
func tokenDisplayName(contract string) string {
	parts := strings.Split(contract, ".")
	switch {
	case parts[0] == "token" && len(parts) >= 3:
		return strings.ToUpper(parts[1])
	case strings.Contains(contract, "meme-cooking"):
		return strings.ToUpper(strings.Split(parts[0], "-")[0])
	default:
		return strings.ToUpper(parts[0])
	}
}
