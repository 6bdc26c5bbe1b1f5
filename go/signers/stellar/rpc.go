package stellar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/stellar/go/xdr"

	x402stellar "github.com/x402-go/x402/go/mechanisms/stellar"
)

// SorobanRPCClient implements x402stellar.RPCClient against a single Soroban
// JSON-RPC endpoint. The exact and split Stellar facilitator schemes are
// constructed per network, so one client is built per configured network.
type SorobanRPCClient struct {
	endpoint string
	http     *http.Client
}

// NewSorobanRPCClient creates a Soroban RPC client bound to a single
// network's RPC endpoint.
func NewSorobanRPCClient(endpoint string) *SorobanRPCClient {
	return &SorobanRPCClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *SorobanRPCClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	reqBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("soroban rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("failed to parse soroban rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("soroban rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func (c *SorobanRPCClient) GetLatestLedger(ctx context.Context) (uint32, error) {
	var result struct {
		Sequence uint32 `json:"sequence"`
	}
	if err := c.call(ctx, "getLatestLedger", map[string]interface{}{}, &result); err != nil {
		return 0, err
	}
	return result.Sequence, nil
}

func (c *SorobanRPCClient) GetAccountSequence(ctx context.Context, address string) (int64, error) {
	accountID, err := xdr.AddressToAccountId(address)
	if err != nil {
		return 0, fmt.Errorf("invalid account address %s: %w", address, err)
	}
	key, err := xdr.MarshalBase64(xdr.LedgerKey{Type: xdr.LedgerEntryTypeAccount, Account: &xdr.LedgerKeyAccount{AccountId: accountID}})
	if err != nil {
		return 0, fmt.Errorf("failed to encode ledger key: %w", err)
	}
	var result struct {
		Entries []struct {
			XDR string `json:"xdr"`
		} `json:"entries"`
	}
	params := map[string]interface{}{"keys": []string{key}}
	if err := c.call(ctx, "getLedgerEntries", params, &result); err != nil {
		return 0, err
	}
	if len(result.Entries) == 0 {
		return 0, fmt.Errorf("account not found: %s", address)
	}
	var data xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(result.Entries[0].XDR, &data); err != nil || data.Account == nil {
		return 0, fmt.Errorf("failed to decode account entry for %s: %v", address, err)
	}
	return int64(data.Account.SeqNum), nil
}

func (c *SorobanRPCClient) SimulateTransaction(ctx context.Context, txXDR string) (*x402stellar.SimulateResult, error) {
	var result struct {
		Error           string `json:"error"`
		MinResourceFee  string `json:"minResourceFee"`
		TransactionData string `json:"transactionData"`
		Results         []struct {
			Auth []string `json:"auth"`
			XDR  string   `json:"xdr"`
		} `json:"results"`
	}
	params := map[string]interface{}{"transaction": txXDR}
	if err := c.call(ctx, "simulateTransaction", params, &result); err != nil {
		return nil, err
	}

	minFee, _ := strconv.ParseInt(result.MinResourceFee, 10, 64)
	sim := &x402stellar.SimulateResult{
		Error:              result.Error,
		MinResourceFee:     minFee,
		TransactionDataXDR: result.TransactionData,
	}
	for _, r := range result.Results {
		sim.AuthXDR = append(sim.AuthXDR, r.Auth...)
		sim.Results = append(sim.Results, r.XDR)
	}
	return sim, nil
}

func (c *SorobanRPCClient) SendTransaction(ctx context.Context, txXDR string) (string, error) {
	var result struct {
		Hash   string `json:"hash"`
		Status string `json:"status"`
	}
	params := map[string]interface{}{"transaction": txXDR}
	if err := c.call(ctx, "sendTransaction", params, &result); err != nil {
		return "", err
	}
	if result.Status == "ERROR" {
		return "", fmt.Errorf("sendTransaction rejected: %s", result.Hash)
	}
	return result.Hash, nil
}

func (c *SorobanRPCClient) GetTransaction(ctx context.Context, hash string) (*x402stellar.TransactionStatus, error) {
	var result struct {
		Status       string `json:"status"`
		LatestLedger uint32 `json:"latestLedger"`
		ResultXdr    string `json:"resultXdr"`
	}
	params := map[string]interface{}{"hash": hash}
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	return &x402stellar.TransactionStatus{
		Status:       result.Status,
		ResultXDR:    result.ResultXdr,
		LatestLedger: result.LatestLedger,
	}, nil
}
