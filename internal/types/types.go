// Package types provides common type definitions for the near-pulse system.
package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the number of decimals of the native unit (1 NEAR = 10^24 yocto)
const NativeDecimals = 24

// SystemAccount is the protocol's reserved account used for internal housekeeping receipts
const SystemAccount = "system"

// ToNative converts an amount in smallest units (yocto) to the native unit
func ToNative(raw decimal.Decimal) decimal.Decimal {
	return raw.Shift(-NativeDecimals)
}

// Category represents the display category of an activity
type Category string

const (
	// CategoryGaming represents game and claim protocols
	CategoryGaming Category = "gaming"
	// CategoryDeFi represents swaps, bridges and fungible token movements
	CategoryDeFi Category = "defi"
	// CategoryTransfers represents plain native transfers
	CategoryTransfers Category = "transfers"
	// CategoryNFT represents NFT marketplace activity and NFT transfers
	CategoryNFT Category = "nft"
	// CategoryOther represents generic contract calls
	CategoryOther Category = "other"
)

// Categories lists every category in display order
var Categories = []Category{CategoryGaming, CategoryDeFi, CategoryTransfers, CategoryNFT, CategoryOther}

// ActivityKind identifies which classification rule produced an activity
type ActivityKind string

const (
	// KindSwap is a multi-receipt group touching a known DEX contract
	KindSwap ActivityKind = "swap"
	// KindClaim is a call to a game or claim protocol
	KindClaim ActivityKind = "claim"
	// KindBridge is a group touching a bridge contract
	KindBridge ActivityKind = "bridge"
	// KindNFTOut is NFT activity initiated by the account
	KindNFTOut ActivityKind = "nft_out"
	// KindNFTIn is NFT activity initiated by another account
	KindNFTIn ActivityKind = "nft_in"
	// KindTransferOut is a native transfer sent by the account
	KindTransferOut ActivityKind = "transfer_out"
	// KindTransferIn is a native transfer received by the account
	KindTransferIn ActivityKind = "transfer_in"
	// KindToken is a call to a known fungible token contract
	KindToken ActivityKind = "token"
	// KindContract is the fallback for any other contract call
	KindContract ActivityKind = "contract"
)

var kindIcons = map[ActivityKind]string{
	KindSwap:        "🔄",
	KindClaim:       "🎁",
	KindBridge:      "🌉",
	KindNFTOut:      "🖼️",
	KindNFTIn:       "🖼️",
	KindTransferOut: "📤",
	KindTransferIn:  "📥",
	KindToken:       "🪙",
	KindContract:    "📝",
}

// Icon returns the display icon for the kind
func (k ActivityKind) Icon() string {
	if icon, ok := kindIcons[k]; ok {
		return icon
	}
	return kindIcons[KindContract]
}

// Action is a single method call carried by a receipt
type Action struct {
	Method string                 `json:"method"`
	Args   map[string]interface{} `json:"args,omitempty"`
}

// RawReceipt is one ledger action as returned by the receipt source.
// Amounts are integers in smallest units.
type RawReceipt struct {
	TransactionHash string          `json:"transactionHash"`
	Sender          string          `json:"sender"`
	Receiver        string          `json:"receiver"`
	BlockTimestamp  int64           `json:"blockTimestamp"` // nanoseconds since epoch
	Deposit         decimal.Decimal `json:"deposit"`
	Fee             decimal.Decimal `json:"fee"`
	Actions         []Action        `json:"actions,omitempty"`
}

// TouchesSystem reports whether the receipt is internal housekeeping
func (r RawReceipt) TouchesSystem() bool {
	return r.Sender == SystemAccount || r.Receiver == SystemAccount
}

// ReceiptGroup holds all user-visible receipts sharing one transaction hash, in input order
type ReceiptGroup struct {
	Hash     string       `json:"hash"`
	Receipts []RawReceipt `json:"receipts"`
}

// TokenTransfer is a fungible token transfer declared by an action argument
type TokenTransfer struct {
	TokenSymbol string `json:"token"`
	Contract    string `json:"contract"`
	RawAmount   string `json:"amount"`
}

// ReceiptDetail describes one receipt inside an activity
type ReceiptDetail struct {
	Method   string          `json:"action"`
	Contract string          `json:"contract"`
	Fee      decimal.Decimal `json:"gasFee"`
}

// ActivityRecord is the classified, displayable unit built from one receipt group
type ActivityRecord struct {
	ID                     string          `json:"id"`
	Kind                   ActivityKind    `json:"type"`
	Icon                   string          `json:"icon"`
	CounterpartyOrProtocol string          `json:"protocol"`
	Description            string          `json:"action"`
	RelativeTime           string          `json:"time"`
	TimestampNs            int64           `json:"timestamp"`
	TotalFee               decimal.Decimal `json:"gas"`
	ResultText             string          `json:"result"`
	Category               Category        `json:"category"`
	ReceiptCount           int             `json:"txCount"`
	AllHashes              []string        `json:"txHashes"`
	NetDeposited           decimal.Decimal `json:"allNearSpent"`
	NetReceived            decimal.Decimal `json:"allNearReceived"`
	TokenTransfers         []TokenTransfer `json:"tokenTransfers"`
	PerReceiptDetail       []ReceiptDetail `json:"details"`
}

// TokenMeta is token metadata embedded in an inventory record
type TokenMeta struct {
	Decimals *int            `json:"decimals,omitempty"`
	Symbol   string          `json:"symbol,omitempty"`
	Name     string          `json:"name,omitempty"`
	Icon     string          `json:"icon,omitempty"`
	Price    decimal.Decimal `json:"price"`
}

// RawTokenRecord is one fungible token balance as reported by the inventory source
type RawTokenRecord struct {
	Contract string          `json:"contract"`
	Amount   string          `json:"amount"`
	Decimals *int            `json:"decimals,omitempty"`
	Symbol   string          `json:"symbol,omitempty"`
	Name     string          `json:"name,omitempty"`
	Icon     string          `json:"icon,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Meta     *TokenMeta      `json:"ft_meta,omitempty"`
}

// TokenHolding is a normalized token balance
type TokenHolding struct {
	ContractID       string          `json:"contract"`
	RawAmount        string          `json:"rawAmount"`
	Decimals         int             `json:"decimals"`
	NormalizedAmount decimal.Decimal `json:"amount"`
	Symbol           string          `json:"symbol"`
	Name             string          `json:"name"`
	Icon             string          `json:"icon,omitempty"`
	SourcePrice      decimal.Decimal `json:"nearblocksPrice"`
}

// ValuedHolding is a holding with its resolved price and reference value
type ValuedHolding struct {
	TokenHolding
	ResolvedPrice decimal.Decimal `json:"price"`
	USDValue      decimal.Decimal `json:"usdValue"`
	IsMajor       bool            `json:"isMajor"`
}

// PortfolioTiers partitions valued holdings by confidence
type PortfolioTiers struct {
	Major    []ValuedHolding `json:"major"`
	Filtered []ValuedHolding `json:"filtered"`
	Hidden   []ValuedHolding `json:"hidden"`
}

// PriceQuote is one source's price snapshot
type PriceQuote struct {
	Source    string                     `json:"source"`
	Prices    map[string]decimal.Decimal `json:"prices"`
	FetchedAt time.Time                  `json:"fetchedAt"`
}

// Lookup returns a strictly positive price for id, trying the identifier then its lower-cased form
func (q PriceQuote) Lookup(id string) (decimal.Decimal, bool) {
	for _, variant := range []string{id, strings.ToLower(id)} {
		if p, ok := q.Prices[variant]; ok && p.IsPositive() {
			return p, true
		}
	}
	return decimal.Zero, false
}

// CategoryStat is one entry of the category breakdown
type CategoryStat struct {
	Count          int             `json:"count"`
	PercentOfTotal int             `json:"percent"`
	ReferenceValue decimal.Decimal `json:"usd"`
}

// TopCounterparty is a ranked counterparty in the analytics summary
type TopCounterparty struct {
	ID       string          `json:"contract"`
	Name     string          `json:"name"`
	Icon     string          `json:"icon"`
	Category string          `json:"category"`
	Txs      int             `json:"txs"`
	Fee      decimal.Decimal `json:"gas"`
	FeeShare int             `json:"percent"`
}

// WeekdayBucket counts activities for one weekday
type WeekdayBucket struct {
	Day   string `json:"day"`
	Count int    `json:"txs"`
}

// InsightType is the severity of a narrative insight
type InsightType string

const (
	InsightInfo    InsightType = "info"
	InsightWarning InsightType = "warning"
	InsightSuccess InsightType = "success"
)

// Insight is a narrative finding derived from the summary
type Insight struct {
	Type InsightType `json:"type"`
	Text string      `json:"text"`
	Icon string      `json:"icon"`
}

// AnalyticsSummary aggregates activity over a lookback window
type AnalyticsSummary struct {
	TotalCount           int                       `json:"totalTxs"`
	TotalFeeNative       decimal.Decimal           `json:"gasSpent"`
	TotalFeeReference    decimal.Decimal           `json:"gasUSD"`
	UniqueCounterparties int                       `json:"uniqueContracts"`
	MostActive           string                    `json:"mostActive"`
	CategoryBreakdown    map[Category]CategoryStat `json:"breakdown"`
	TopCounterparties    []TopCounterparty         `json:"topContracts"`
	ActivityByWeekday    []WeekdayBucket           `json:"activityByDay"`
	Insights             []Insight                 `json:"insights"`
}

// AccountBalance is the native balance of an account in smallest units
type AccountBalance struct {
	Amount decimal.Decimal `json:"amount"`
	Locked decimal.Decimal `json:"locked"`
}

// HotClaimStatus describes when the HOT storage can next be claimed
type HotClaimStatus struct {
	ReadyToClaim      bool `json:"readyToClaim"`
	HoursUntilClaim   int  `json:"hoursUntilClaim"`
	MinutesUntilClaim int  `json:"minutesUntilClaim"`
}

// NFTCollection summarizes the NFTs an account holds in one contract
type NFTCollection struct {
	Contract string   `json:"contract"`
	Count    int      `json:"count"`
	TokenIDs []string `json:"tokenIds"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
