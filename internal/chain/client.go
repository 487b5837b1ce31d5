package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotConnected signals that no chain client is available. It is fatal
// for the current unit of work and is never retried.
var ErrNotConnected = errors.New("chain client not connected")

// ContractInfo is the on-chain metadata of an instantiated contract.
type ContractInfo struct {
	Address string
	CodeID  uint64
	Admin   string
	Creator string
	Label   string
}

// BlockInfo is the subset of a block header the indexer needs.
type BlockInfo struct {
	Height     uint64
	TimeUnixMs int64
	Timestamp  string
}

// Client is the chain query surface consumed by extractors and backfill
// generators. GetContracts is paginated: startAfter is the last address of
// the previous page, empty for the first page.
type Client interface {
	GetContract(ctx context.Context, address string) (ContractInfo, error)
	GetContracts(ctx context.Context, codeID uint64, startAfter string, limit int) ([]string, error)
	GetCodes(ctx context.Context) ([]uint64, error)
	QueryContractSmart(ctx context.Context, address string, query any) (json.RawMessage, error)
	GetBlock(ctx context.Context, height uint64) (BlockInfo, error)
	GetHeight(ctx context.Context) (uint64, error)
}

// NodeClient talks to a chain node over its LCD REST API (wasm queries)
// and Tendermint RPC (blocks).
type NodeClient struct {
	lcdURL string
	rpcURL string
	client *http.Client
}

// NewNodeClient builds a client for the given endpoints.
func NewNodeClient(lcdURL, rpcURL string) (*NodeClient, error) {
	if lcdURL == "" || rpcURL == "" {
		return nil, errors.New("lcd and rpc urls are required")
	}
	return &NodeClient{
		lcdURL: strings.TrimRight(lcdURL, "/"),
		rpcURL: strings.TrimRight(rpcURL, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// GetContract fetches contract metadata.
func (c *NodeClient) GetContract(ctx context.Context, address string) (ContractInfo, error) {
	var body struct {
		ContractInfo struct {
			CodeID  string `json:"code_id"`
			Creator string `json:"creator"`
			Admin   string `json:"admin"`
			Label   string `json:"label"`
		} `json:"contract_info"`
	}
	path := fmt.Sprintf("/cosmwasm/wasm/v1/contract/%s", url.PathEscape(address))
	if err := c.getJSON(ctx, c.lcdURL+path, &body); err != nil {
		return ContractInfo{}, err
	}
	codeID, err := strconv.ParseUint(body.ContractInfo.CodeID, 10, 64)
	if err != nil {
		return ContractInfo{}, fmt.Errorf("contract %s: parse code_id %q: %w", address, body.ContractInfo.CodeID, err)
	}
	return ContractInfo{
		Address: address,
		CodeID:  codeID,
		Admin:   body.ContractInfo.Admin,
		Creator: body.ContractInfo.Creator,
		Label:   body.ContractInfo.Label,
	}, nil
}

// GetContracts lists contract addresses for a code id, one page at a time.
func (c *NodeClient) GetContracts(ctx context.Context, codeID uint64, startAfter string, limit int) ([]string, error) {
	var body struct {
		Contracts []string `json:"contracts"`
	}
	q := url.Values{}
	q.Set("pagination.limit", strconv.Itoa(limit))
	if startAfter != "" {
		q.Set("pagination.key", base64.StdEncoding.EncodeToString([]byte(startAfter)))
	}
	path := fmt.Sprintf("/cosmwasm/wasm/v1/code/%d/contracts?%s", codeID, q.Encode())
	if err := c.getJSON(ctx, c.lcdURL+path, &body); err != nil {
		return nil, err
	}
	return body.Contracts, nil
}

// GetCodes lists deployed code ids.
func (c *NodeClient) GetCodes(ctx context.Context) ([]uint64, error) {
	var body struct {
		CodeInfos []struct {
			CodeID string `json:"code_id"`
		} `json:"code_infos"`
	}
	if err := c.getJSON(ctx, c.lcdURL+"/cosmwasm/wasm/v1/code", &body); err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(body.CodeInfos))
	for _, ci := range body.CodeInfos {
		id, err := strconv.ParseUint(ci.CodeID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// QueryContractSmart executes a smart query against a contract and returns
// the raw JSON response.
func (c *NodeClient) QueryContractSmart(ctx context.Context, address string, query any) (json.RawMessage, error) {
	msg, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	var body struct {
		Data json.RawMessage `json:"data"`
	}
	path := fmt.Sprintf("/cosmwasm/wasm/v1/contract/%s/smart/%s",
		url.PathEscape(address), base64.StdEncoding.EncodeToString(msg))
	if err := c.getJSON(ctx, c.lcdURL+path, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GetBlock fetches a block header by height.
func (c *NodeClient) GetBlock(ctx context.Context, height uint64) (BlockInfo, error) {
	var body struct {
		Result struct {
			Block struct {
				Header struct {
					Height string `json:"height"`
					Time   string `json:"time"`
				} `json:"header"`
			} `json:"block"`
		} `json:"result"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/block?height=%d", c.rpcURL, height), &body); err != nil {
		return BlockInfo{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, body.Result.Block.Header.Time)
	if err != nil {
		return BlockInfo{}, fmt.Errorf("block %d: parse time %q: %w", height, body.Result.Block.Header.Time, err)
	}
	return BlockInfo{
		Height:     height,
		TimeUnixMs: ts.UnixMilli(),
		Timestamp:  body.Result.Block.Header.Time,
	}, nil
}

// GetHeight returns the node's latest block height.
func (c *NodeClient) GetHeight(ctx context.Context) (uint64, error) {
	var body struct {
		Result struct {
			SyncInfo struct {
				LatestBlockHeight string `json:"latest_block_height"`
			} `json:"sync_info"`
		} `json:"result"`
	}
	if err := c.getJSON(ctx, c.rpcURL+"/status", &body); err != nil {
		return 0, err
	}
	h, err := strconv.ParseUint(body.Result.SyncInfo.LatestBlockHeight, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse latest height: %w", err)
	}
	return h, nil
}

func (c *NodeClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call node: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("node status %d for %s", resp.StatusCode, rawURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
