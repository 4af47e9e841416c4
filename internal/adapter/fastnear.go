package adapter

import (
	"context"
	"net/url"

	jsoniter "github.com/json-iterator/go"
	"github.com/near-pulse/internal/errors"
	"github.com/near-pulse/internal/types"
)

// maxTokenIDs is how many token ids are kept per collection
const maxTokenIDs = 10

// FastNearClient lists NFT holdings through the FastNEAR API
type FastNearClient struct {
	http *httpClient
}

// NewFastNearClient creates a FastNEAR client
func NewFastNearClient(opts ClientOptions) *FastNearClient {
	if opts.Source == "" {
		opts.Source = SourceFastNear
	}
	return &FastNearClient{http: newHTTPClient(opts)}
}

type fnCollection struct {
	ContractID string   `json:"contract_id"`
	Contract   string   `json:"contract"`
	Count      *int     `json:"count"`
	TokenIDs   []string `json:"token_ids"`
	Tokens     []string `json:"tokens"`
}

// GetNFTCollections returns the NFT collections held by an account
func (c *FastNearClient) GetNFTCollections(ctx context.Context, account string) ([]types.NFTCollection, error) {
	var raw jsoniter.RawMessage
	if err := c.http.getJSON(ctx, "/account/"+url.PathEscape(account)+"/nft", nil, &raw); err != nil {
		return nil, err
	}
	return decodeCollections(raw)
}

// decodeCollections accepts an object with a tokens field, a contract → token ids
// map, or a list of collection objects and bare contract ids
func decodeCollections(raw jsoniter.RawMessage) ([]types.NFTCollection, error) {
	var wrapped struct {
		Tokens jsoniter.RawMessage `json:"tokens"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Tokens) > 0 {
		raw = wrapped.Tokens
	}

	iter := json.BorrowIterator(raw)
	defer json.ReturnIterator(iter)

	collections := []types.NFTCollection{}
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		iter.ReadObjectCB(func(it *jsoniter.Iterator, contract string) bool {
			switch it.WhatIsNext() {
			case jsoniter.ArrayValue:
				var ids []string
				it.ReadVal(&ids)
				collections = append(collections, types.NFTCollection{
					Contract: contract,
					Count:    len(ids),
					TokenIDs: firstIDs(ids),
				})
			case jsoniter.NumberValue:
				collections = append(collections, types.NFTCollection{
					Contract: contract,
					Count:    it.ReadInt(),
					TokenIDs: []string{},
				})
			default:
				// account_id and other scalar metadata
				it.Skip()
			}
			return it.Error == nil
		})
	case jsoniter.ArrayValue:
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			switch it.WhatIsNext() {
			case jsoniter.StringValue:
				collections = append(collections, types.NFTCollection{Contract: it.ReadString(), TokenIDs: []string{}})
			case jsoniter.ObjectValue:
				var item fnCollection
				it.ReadVal(&item)
				collections = append(collections, item.toCollection())
			default:
				it.Skip()
			}
			return it.Error == nil
		})
	default:
		iter.Skip()
	}

	if iter.Error != nil {
		return nil, errors.NewMalformedRecordError(SourceFastNear, "nft", iter.Error.Error())
	}
	return collections, nil
}

func (item fnCollection) toCollection() types.NFTCollection {
	contract := item.ContractID
	if contract == "" {
		contract = item.Contract
	}
	ids := item.TokenIDs
	if ids == nil {
		ids = item.Tokens
	}

	count := 1
	switch {
	case item.Count != nil:
		count = *item.Count
	case len(ids) > 0:
		count = len(ids)
	}

	return types.NFTCollection{Contract: contract, Count: count, TokenIDs: firstIDs(ids)}
}

func firstIDs(ids []string) []string {
	if len(ids) > maxTokenIDs {
		ids = ids[:maxTokenIDs]
	}
	if ids == nil {
		return []string{}
	}
	return ids
}
