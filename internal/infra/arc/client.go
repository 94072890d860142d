package arc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
	"github.com/xPOURY4/voicepay-arc/internal/infra"
)

// ERC-20 function selectors and the Transfer event signature topic.
const (
	selectorBalanceOf = "0x70a08231"
	selectorTransfer  = "0xa9059cbb"
	selectorDecimals  = "0x313ce567"

	transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

	nativeDecimals = 18
)

type Config struct {
	RPCURL         string
	TokenAddress   string
	AccountAddress string
	LookbackBlocks uint64
	PollInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		LookbackBlocks: 5000,
		PollInterval:   2 * time.Second,
	}
}

// Client talks JSON-RPC to an Arc (EVM) node. Transfers are signed by the
// node itself, so the account must be managed by it; read calls retry on
// transient failures but eth_sendTransaction is always a single attempt.
type Client struct {
	httpClient *http.Client
	cfg        Config
	reqID      atomic.Int64

	mu       sync.RWMutex
	account  string
	decimals int32
	fetched  bool
}

func NewClient(cfg Config) *Client {
	if cfg.LookbackBlocks == 0 {
		cfg.LookbackBlocks = 5000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cfg:        cfg,
		account:    domain.NormalizeAddress(cfg.AccountAddress),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int64  `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.reqID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s request: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: HTTP %d: %s", method, resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err = json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if out != nil {
		if err = json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// callRetry is for read-only RPCs where a transient node hiccup should not
// surface as a failure.
func (c *Client) callRetry(ctx context.Context, method string, params []any, out any) error {
	return infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		return c.call(ctx, method, params, out)
	})
}

func (c *Client) OwnAddress(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.account != "" {
		defer c.mu.RUnlock()
		return c.account, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.account != "" {
		return c.account, nil
	}

	var accounts []string
	if err := c.callRetry(ctx, "eth_accounts", []any{}, &accounts); err != nil {
		return "", fmt.Errorf("listing node accounts: %w", err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("node manages no accounts; set the wallet address explicitly")
	}
	c.account = domain.NormalizeAddress(accounts[0])
	return c.account, nil
}

func (c *Client) TokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	dec, err := c.tokenDecimals(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	data := selectorBalanceOf + padAddress(address)
	var raw string
	err = c.callRetry(ctx, "eth_call", []any{
		map[string]string{"to": c.cfg.TokenAddress, "data": data},
		"latest",
	}, &raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching token balance: %w", err)
	}

	value, err := hexToBig(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing token balance %q: %w", raw, err)
	}
	return decimal.NewFromBigInt(value, -dec), nil
}

func (c *Client) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var raw string
	err := c.callRetry(ctx, "eth_getBalance", []any{domain.NormalizeAddress(address), "latest"}, &raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching native balance: %w", err)
	}

	value, err := hexToBig(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing native balance %q: %w", raw, err)
	}
	return decimal.NewFromBigInt(value, -nativeDecimals), nil
}

func (c *Client) Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	from, err := c.OwnAddress(ctx)
	if err != nil {
		return "", err
	}
	data, err := c.transferData(ctx, to, amount)
	if err != nil {
		return "", err
	}

	var hash string
	err = c.call(ctx, "eth_sendTransaction", []any{
		map[string]string{"from": from, "to": c.cfg.TokenAddress, "data": data},
	}, &hash)
	if err != nil {
		return "", fmt.Errorf("submitting transfer: %w", err)
	}
	return hash, nil
}

func (c *Client) WaitForConfirmations(ctx context.Context, hash string, n int) (*domain.Receipt, error) {
	if n < 1 {
		n = 1
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.fetchReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			current, err := c.blockNumber(ctx)
			if err != nil {
				return nil, err
			}
			confs := uint64(1)
			if current > receipt.BlockNumber {
				confs = current - receipt.BlockNumber + 1
			}
			if confs >= uint64(n) {
				receipt.Confirmations = confs
				return receipt, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// fetchReceipt returns nil with no error while the transaction is unmined.
func (c *Client) fetchReceipt(ctx context.Context, hash string) (*domain.Receipt, error) {
	var raw struct {
		Status            string `json:"status"`
		BlockNumber       string `json:"blockNumber"`
		GasUsed           string `json:"gasUsed"`
		EffectiveGasPrice string `json:"effectiveGasPrice"`
	}
	var msg json.RawMessage
	if err := c.callRetry(ctx, "eth_getTransactionReceipt", []any{hash}, &msg); err != nil {
		return nil, fmt.Errorf("fetching receipt: %w", err)
	}
	if len(msg) == 0 || string(msg) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return nil, fmt.Errorf("decoding receipt: %w", err)
	}

	block, err := hexToUint64(raw.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt block %q: %w", raw.BlockNumber, err)
	}

	fee := decimal.Zero
	gasUsed, errGas := hexToBig(raw.GasUsed)
	gasPrice, errPrice := hexToBig(raw.EffectiveGasPrice)
	if errGas == nil && errPrice == nil {
		fee = decimal.NewFromBigInt(new(big.Int).Mul(gasUsed, gasPrice), -nativeDecimals)
	}

	return &domain.Receipt{
		Hash:        hash,
		BlockNumber: block,
		Fee:         fee,
		Reverted:    raw.Status == "0x0",
	}, nil
}

func (c *Client) TransferEvents(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.TransferEvent, error) {
	dec, err := c.tokenDecimals(ctx)
	if err != nil {
		return nil, err
	}

	if toBlock == 0 {
		if toBlock, err = c.blockNumber(ctx); err != nil {
			return nil, err
		}
	}
	if fromBlock == 0 && toBlock > c.cfg.LookbackBlocks {
		fromBlock = toBlock - c.cfg.LookbackBlocks
	}

	topicAddr := "0x" + padAddress(address)
	sent, err := c.fetchLogs(ctx, fromBlock, toBlock, []any{transferTopic, topicAddr})
	if err != nil {
		return nil, err
	}
	received, err := c.fetchLogs(ctx, fromBlock, toBlock, []any{transferTopic, nil, topicAddr})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	events := make([]domain.TransferEvent, 0, len(sent)+len(received))
	for _, log := range append(sent, received...) {
		key := log.TransactionHash + "/" + log.LogIndex
		if seen[key] || len(log.Topics) < 3 {
			continue
		}
		seen[key] = true

		block, err := hexToUint64(log.BlockNumber)
		if err != nil {
			continue
		}
		value, err := hexToBig(log.Data)
		if err != nil {
			continue
		}
		events = append(events, domain.TransferEvent{
			Hash:        log.TransactionHash,
			From:        topicToAddress(log.Topics[1]),
			To:          topicToAddress(log.Topics[2]),
			Amount:      decimal.NewFromBigInt(value, -dec),
			BlockNumber: block,
		})
	}

	sort.Slice(events, func(i, j int) bool { return events[i].BlockNumber > events[j].BlockNumber })
	return events, nil
}

type logEntry struct {
	TransactionHash string   `json:"transactionHash"`
	BlockNumber     string   `json:"blockNumber"`
	LogIndex        string   `json:"logIndex"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
}

func (c *Client) fetchLogs(ctx context.Context, fromBlock, toBlock uint64, topics []any) ([]logEntry, error) {
	var logs []logEntry
	err := c.callRetry(ctx, "eth_getLogs", []any{map[string]any{
		"address":   c.cfg.TokenAddress,
		"fromBlock": hexUint64(fromBlock),
		"toBlock":   hexUint64(toBlock),
		"topics":    topics,
	}}, &logs)
	if err != nil {
		return nil, fmt.Errorf("fetching transfer logs: %w", err)
	}
	return logs, nil
}

func (c *Client) EstimateFee(ctx context.Context, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	from, err := c.OwnAddress(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	data, err := c.transferData(ctx, to, amount)
	if err != nil {
		return decimal.Zero, err
	}

	var gasHex string
	err = c.callRetry(ctx, "eth_estimateGas", []any{
		map[string]string{"from": from, "to": c.cfg.TokenAddress, "data": data},
	}, &gasHex)
	if err != nil {
		return decimal.Zero, fmt.Errorf("estimating gas: %w", err)
	}

	var priceHex string
	if err = c.callRetry(ctx, "eth_gasPrice", []any{}, &priceHex); err != nil {
		return decimal.Zero, fmt.Errorf("fetching gas price: %w", err)
	}

	gas, err := hexToBig(gasHex)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing gas estimate %q: %w", gasHex, err)
	}
	price, err := hexToBig(priceHex)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing gas price %q: %w", priceHex, err)
	}
	return decimal.NewFromBigInt(new(big.Int).Mul(gas, price), -nativeDecimals), nil
}

func (c *Client) ValidAddress(address string) bool {
	return domain.ValidAddress(address)
}

func (c *Client) transferData(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	dec, err := c.tokenDecimals(ctx)
	if err != nil {
		return "", err
	}
	base := amount.Shift(dec).BigInt()
	if base.Sign() <= 0 {
		return "", fmt.Errorf("amount %s is below one base unit", amount)
	}
	return selectorTransfer + padAddress(to) + padBig(base), nil
}

func (c *Client) tokenDecimals(ctx context.Context) (int32, error) {
	c.mu.RLock()
	if c.fetched {
		defer c.mu.RUnlock()
		return c.decimals, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetched {
		return c.decimals, nil
	}

	var raw string
	err := c.callRetry(ctx, "eth_call", []any{
		map[string]string{"to": c.cfg.TokenAddress, "data": selectorDecimals},
		"latest",
	}, &raw)
	if err != nil {
		return 0, fmt.Errorf("fetching token decimals: %w", err)
	}
	value, err := hexToUint64(raw)
	if err != nil || value > 77 {
		return 0, fmt.Errorf("token reported unusable decimals %q", raw)
	}
	c.decimals = int32(value)
	c.fetched = true
	return c.decimals, nil
}

func (c *Client) blockNumber(ctx context.Context) (uint64, error) {
	var raw string
	if err := c.callRetry(ctx, "eth_blockNumber", []any{}, &raw); err != nil {
		return 0, fmt.Errorf("fetching block number: %w", err)
	}
	return hexToUint64(raw)
}

func hexToBig(s string) (*big.Int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity")
	}
	return value, nil
}

func hexToUint64(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}

func hexUint64(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

// padAddress left-pads a 20-byte address to the 32-byte ABI word.
func padAddress(address string) string {
	hex := strings.TrimPrefix(domain.NormalizeAddress(address), "0x")
	if len(hex) >= 64 {
		return hex
	}
	return strings.Repeat("0", 64-len(hex)) + hex
}

func padBig(v *big.Int) string {
	hex := v.Text(16)
	if len(hex) >= 64 {
		return hex
	}
	return strings.Repeat("0", 64-len(hex)) + hex
}

// topicToAddress recovers the 20-byte address from a 32-byte topic word.
func topicToAddress(topic string) string {
	hex := strings.TrimPrefix(topic, "0x")
	if len(hex) < 40 {
		return topic
	}
	return "0x" + hex[len(hex)-40:]
}
