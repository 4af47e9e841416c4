package adapter

import (
	"context"
	"encoding/base64"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/near-pulse/internal/errors"
	"github.com/near-pulse/internal/types"
	"github.com/shopspring/decimal"
)

// NearRPCClient talks to NEAR JSON-RPC endpoints, failing over between them
// when one rate limits
type NearRPCClient struct {
	endpoints   []*httpClient
	pool        *EndpointPool
	hotContract string
}

// NewNearRPCClient creates an RPC client. opts.BaseURL may list several
// comma-separated endpoints, the first being the primary. hotContract is the
// account whose get_user view returns HOT storage state.
func NewNearRPCClient(opts ClientOptions, hotContract string) *NearRPCClient {
	if opts.Source == "" {
		opts.Source = SourceNearRPC
	}

	urls := ParseEndpoints(opts.BaseURL)
	if len(urls) == 0 {
		urls = []string{opts.BaseURL}
	}
	endpoints := make([]*httpClient, len(urls))
	for i, u := range urls {
		endpointOpts := opts
		endpointOpts.BaseURL = u
		endpoints[i] = newHTTPClient(endpointOpts)
	}

	return &NearRPCClient{
		endpoints:   endpoints,
		pool:        NewEndpointPool(urls, 0),
		hotContract: hotContract,
	}
}

// Endpoints reports the failover state of the configured RPC endpoints
func (c *NearRPCClient) Endpoints() []EndpointStatus {
	return c.pool.Status()
}

// post sends one JSON-RPC call, moving to the next endpoint on 429
func (c *NearRPCClient) post(ctx context.Context, req rpcRequest, dest interface{}) error {
	var err error
	for attempt := 0; attempt < c.pool.Len(); attempt++ {
		index := c.pool.Current()
		err = c.endpoints[index].postJSON(ctx, req, dest)
		if !isRateLimited(err) || !c.pool.OnRateLimited(index) {
			return err
		}
	}
	return err
}

type rpcRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      string                 `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

type rpcError struct {
	Name    string      `json:"name"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Cause   *struct {
		Name string `json:"name"`
	} `json:"cause"`
}

func (e *rpcError) Error() string {
	if e.Cause != nil && e.Cause.Name != "" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Cause.Name)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// query runs a finality=final query and decodes the result
func (c *NearRPCClient) query(ctx context.Context, params map[string]interface{}, result interface{}) error {
	params["finality"] = "final"
	req := rpcRequest{JSONRPC: "2.0", ID: "dontcare", Method: "query", Params: params}

	var resp struct {
		Result jsoniter.RawMessage `json:"result"`
		Error  *rpcError           `json:"error"`
	}
	if err := c.post(ctx, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return errors.NewSourceUnavailableError(SourceNearRPC, resp.Error)
	}
	if len(resp.Result) == 0 {
		return errors.NewMalformedRecordError(SourceNearRPC, "result", "missing result")
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return errors.NewMalformedRecordError(SourceNearRPC, "result", err.Error())
	}
	return nil
}

// GetAccountBalance returns the native balance of an account in yocto units
func (c *NearRPCClient) GetAccountBalance(ctx context.Context, account string) (types.AccountBalance, error) {
	var view struct {
		Amount decimal.Decimal `json:"amount"`
		Locked decimal.Decimal `json:"locked"`
		// query errors on some nodes arrive inside the result
		Error string `json:"error"`
	}
	err := c.query(ctx, map[string]interface{}{
		"request_type": "view_account",
		"account_id":   account,
	}, &view)
	if err != nil {
		return types.AccountBalance{}, err
	}
	if view.Error != "" {
		return types.AccountBalance{}, errors.NewSourceUnavailableError(SourceNearRPC, fmt.Errorf("%s", view.Error))
	}
	return types.AccountBalance{Amount: view.Amount, Locked: view.Locked}, nil
}

// GetHotUser calls get_user on the HOT contract and returns the raw JSON payload
func (c *NearRPCClient) GetHotUser(ctx context.Context, account string) ([]byte, error) {
	args, err := json.Marshal(map[string]string{"account_id": account})
	if err != nil {
		return nil, errors.NewInternalError("failed to encode get_user args", err)
	}

	var call struct {
		// the contract return value as a byte array
		Result []int  `json:"result"`
		Error  string `json:"error"`
	}
	err = c.query(ctx, map[string]interface{}{
		"request_type": "call_function",
		"account_id":   c.hotContract,
		"method_name":  "get_user",
		"args_base64":  base64.StdEncoding.EncodeToString(args),
	}, &call)
	if err != nil {
		return nil, err
	}
	if call.Error != "" {
		return nil, errors.NewSourceUnavailableError(SourceNearRPC, fmt.Errorf("%s", call.Error))
	}
	if len(call.Result) == 0 {
		return nil, errors.NewMalformedRecordError(SourceNearRPC, "get_user", "empty result")
	}

	payload := make([]byte, len(call.Result))
	for i, b := range call.Result {
		if b < 0 || b > 255 {
			return nil, errors.NewMalformedRecordError(SourceNearRPC, "get_user", "result is not a byte array")
		}
		payload[i] = byte(b)
	}
	return payload, nil
}
