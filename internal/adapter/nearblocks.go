package adapter

import (
	"context"
	"net/url"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/near-pulse/internal/errors"
	"github.com/near-pulse/internal/logging"
	"github.com/near-pulse/internal/types"
	"github.com/shopspring/decimal"
)

// NearBlocksClient reads account history, token inventory and staking deposits
// from the NearBlocks indexer API
type NearBlocksClient struct {
	http     *httpClient
	pageSize int
}

// NewNearBlocksClient creates a NearBlocks client. pageSize bounds the receipt window.
func NewNearBlocksClient(opts ClientOptions, pageSize int) *NearBlocksClient {
	if opts.Source == "" {
		opts.Source = SourceNearBlocks
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &NearBlocksClient{http: newHTTPClient(opts), pageSize: pageSize}
}

// nearBlocksHeaders returns the auth header when an API key is configured
func nearBlocksHeaders(apiKey string) map[string]string {
	if apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

type nbAction struct {
	Action string              `json:"action"`
	Method string              `json:"method"`
	Args   jsoniter.RawMessage `json:"args"`
}

type nbTxn struct {
	TransactionHash string          `json:"transaction_hash"`
	Predecessor     string          `json:"predecessor_account_id"`
	Receiver        string          `json:"receiver_account_id"`
	BlockTimestamp  decimal.Decimal `json:"block_timestamp"`
	ActionsAgg      struct {
		Deposit decimal.Decimal `json:"deposit"`
	} `json:"actions_agg"`
	OutcomesAgg struct {
		TransactionFee decimal.Decimal `json:"transaction_fee"`
	} `json:"outcomes_agg"`
	Actions []nbAction `json:"actions"`
}

// GetReceipts returns the most recent receipts of an account, newest first.
// Records without a transaction hash are skipped.
func (c *NearBlocksClient) GetReceipts(ctx context.Context, account string) ([]types.RawReceipt, error) {
	var resp struct {
		Txns jsoniter.RawMessage `json:"txns"`
	}
	query := url.Values{
		"per_page": {strconv.Itoa(c.pageSize)},
		"order":    {"desc"},
	}
	if err := c.http.getJSON(ctx, "/account/"+url.PathEscape(account)+"/txns", query, &resp); err != nil {
		return nil, err
	}

	elements, err := decodeRecords(resp.Txns)
	if err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).WithSource(SourceNearBlocks).WithAccount(account)
	receipts := make([]types.RawReceipt, 0, len(elements))
	for i, raw := range elements {
		key := "txns[" + strconv.Itoa(i) + "]"
		var tx nbTxn
		if err := json.Unmarshal(raw, &tx); err != nil {
			logger.WithError(errors.NewMalformedRecordError(SourceNearBlocks, key, err.Error())).Debug("Skipping malformed receipt")
			continue
		}
		if tx.TransactionHash == "" {
			logger.WithError(errors.NewMalformedRecordError(SourceNearBlocks, key, "missing transaction_hash")).Debug("Skipping malformed receipt")
			continue
		}
		receipts = append(receipts, tx.toReceipt())
	}
	return receipts, nil
}

// decodeRecords splits a list or a keyed object into its raw elements, keeping
// document order. Elements are decoded one by one so a bad record only costs itself.
func decodeRecords(raw jsoniter.RawMessage) ([]jsoniter.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	iter := json.BorrowIterator(raw)
	defer json.ReturnIterator(iter)

	var elements []jsoniter.RawMessage
	collect := func(it *jsoniter.Iterator) bool {
		elements = append(elements, append(jsoniter.RawMessage(nil), it.SkipAndReturnBytes()...))
		return it.Error == nil
	}

	switch iter.WhatIsNext() {
	case jsoniter.ArrayValue:
		iter.ReadArrayCB(collect)
	case jsoniter.ObjectValue:
		iter.ReadObjectCB(func(it *jsoniter.Iterator, _ string) bool {
			return collect(it)
		})
	default:
		iter.Skip()
	}

	if iter.Error != nil {
		return nil, errors.NewMalformedRecordError(SourceNearBlocks, "txns", iter.Error.Error())
	}
	return elements, nil
}

func (tx nbTxn) toReceipt() types.RawReceipt {
	r := types.RawReceipt{
		TransactionHash: tx.TransactionHash,
		Sender:          tx.Predecessor,
		Receiver:        tx.Receiver,
		BlockTimestamp:  tx.BlockTimestamp.IntPart(),
		Deposit:         tx.ActionsAgg.Deposit,
		Fee:             tx.OutcomesAgg.TransactionFee,
	}
	for _, a := range tx.Actions {
		if a.Method == "" && a.Action == "" {
			continue
		}
		r.Actions = append(r.Actions, types.Action{Method: a.Method, Args: decodeArgs(a.Args)})
	}
	return r
}

// argsJSON keeps numeric arguments as json.Number so yocto-scale amounts stay exact
var argsJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// decodeArgs reads action arguments given either as an object or as a JSON-encoded string
func decodeArgs(raw jsoniter.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}

	var args map[string]interface{}
	if err := argsJSON.Unmarshal(raw, &args); err == nil {
		return args
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil || encoded == "" {
		return nil
	}
	if err := argsJSON.Unmarshal([]byte(encoded), &args); err != nil {
		return nil
	}
	return args
}

type nbTokenMeta struct {
	Decimals *int            `json:"decimals"`
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Icon     string          `json:"icon"`
	Price    decimal.Decimal `json:"price"`
}

type nbToken struct {
	Contract string           `json:"contract"`
	Amount   *decimal.Decimal `json:"amount"`
	Balance  *decimal.Decimal `json:"balance"`
	Decimals *int             `json:"decimals"`
	Symbol   string           `json:"symbol"`
	Name     string           `json:"name"`
	Icon     string           `json:"icon"`
	Price    decimal.Decimal  `json:"price"`
	Meta     *nbTokenMeta     `json:"ft_meta"`
}

// GetTokenInventory returns the raw fungible token balances of an account
func (c *NearBlocksClient) GetTokenInventory(ctx context.Context, account string) ([]types.RawTokenRecord, error) {
	var resp struct {
		Inventory struct {
			FTs []jsoniter.RawMessage `json:"fts"`
		} `json:"inventory"`
	}
	if err := c.http.getJSON(ctx, "/account/"+url.PathEscape(account)+"/inventory", nil, &resp); err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).WithSource(SourceNearBlocks).WithAccount(account)
	records := make([]types.RawTokenRecord, 0, len(resp.Inventory.FTs))
	for i, raw := range resp.Inventory.FTs {
		var t nbToken
		if err := json.Unmarshal(raw, &t); err != nil {
			malformed := errors.NewMalformedRecordError(SourceNearBlocks, "fts["+strconv.Itoa(i)+"]", err.Error())
			logger.WithError(malformed).Debug("Skipping malformed token record")
			continue
		}
		if t.Contract == "" {
			continue
		}
		records = append(records, t.toRecord())
	}
	return records, nil
}

func (t nbToken) toRecord() types.RawTokenRecord {
	amount := "0"
	switch {
	case t.Amount != nil:
		amount = t.Amount.String()
	case t.Balance != nil:
		amount = t.Balance.String()
	}

	rec := types.RawTokenRecord{
		Contract: t.Contract,
		Amount:   amount,
		Decimals: t.Decimals,
		Symbol:   t.Symbol,
		Name:     t.Name,
		Icon:     t.Icon,
		Price:    t.Price,
	}
	if t.Meta != nil {
		rec.Meta = &types.TokenMeta{
			Decimals: t.Meta.Decimals,
			Symbol:   t.Meta.Symbol,
			Name:     t.Meta.Name,
			Icon:     t.Meta.Icon,
			Price:    t.Meta.Price,
		}
	}
	return rec
}

type nbDeposit struct {
	Deposit *decimal.Decimal `json:"deposit"`
	Amount  *decimal.Decimal `json:"amount"`
}

// GetStakedBalance sums the positive staking deposits of an account, in yocto
func (c *NearBlocksClient) GetStakedBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	var raw jsoniter.RawMessage
	if err := c.http.getJSON(ctx, "/kitwallet/staking-deposits/"+url.PathEscape(account), nil, &raw); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, d := range decodeDeposits(raw) {
		amount := d.Deposit
		if amount == nil {
			amount = d.Amount
		}
		if amount != nil && amount.IsPositive() {
			total = total.Add(*amount)
		}
	}
	return total, nil
}

// decodeDeposits accepts a bare list or an object holding it under data or deposits
func decodeDeposits(raw jsoniter.RawMessage) []nbDeposit {
	var list []nbDeposit
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var wrapped struct {
		Data     []nbDeposit `json:"data"`
		Deposits []nbDeposit `json:"deposits"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil
	}
	if wrapped.Data != nil {
		return wrapped.Data
	}
	return wrapped.Deposits
}
