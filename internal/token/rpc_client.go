package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// JSON-RPC error codes the remote ledger uses for gateway sentinels.
const (
	rpcCodeInsufficientBalance = -32010
	rpcCodeUnknownAsset        = -32011
	rpcCodeInvalidAmount       = -32012
)

// RPCClient implements Gateway over HTTP JSON-RPC 2.0.
// Balance reads are retried with exponential backoff. Transfers are sent once:
// a transfer whose outcome is unknown must not be repeated blindly.
type RPCClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

var (
	_ Gateway = (*RPCClient)(nil)
	_ Minter  = (*RPCClient)(nil)
)

// ClientOption configures RPCClient.
type ClientOption func(*RPCClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for reads.
func WithMaxRetries(n int) ClientOption {
	return func(c *RPCClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *RPCClient) {
		c.client = client
	}
}

// NewRPCClient creates a gateway client for the given JSON-RPC endpoint.
func NewRPCClient(endpoint string, opts ...ClientOption) *RPCClient {
	c := &RPCClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Unwrap maps well-known codes onto gateway sentinels.
func (e *rpcError) Unwrap() error {
	switch e.Code {
	case rpcCodeInsufficientBalance:
		return ErrInsufficientBalance
	case rpcCodeUnknownAsset:
		return ErrUnknownAsset
	case rpcCodeInvalidAmount:
		return ErrInvalidAmount
	default:
		return nil
	}
}

// errNotRetryable marks failures that must not trigger another attempt.
var errNotRetryable = errors.New("not retryable")

type balanceResult struct {
	Amount domain.Amount `json:"amount"`
}

// Balance returns the amount of asset held by addr.
func (c *RPCClient) Balance(ctx context.Context, asset, addr domain.Address) (domain.Amount, error) {
	var result balanceResult
	if err := c.call(ctx, "token_balance", []interface{}{asset, addr}, &result, c.maxRetries); err != nil {
		return domain.Amount{}, err
	}
	return result.Amount, nil
}

// Transfer moves amount of asset from one account to another. Never retried.
func (c *RPCClient) Transfer(ctx context.Context, asset, from, to domain.Address, amount domain.Amount) error {
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return c.call(ctx, "token_transfer", []interface{}{asset, from, to, amount}, nil, 0)
}

// Mint asks the remote ledger to credit amount of asset to addr. Never retried.
func (c *RPCClient) Mint(ctx context.Context, asset, to domain.Address, amount domain.Amount) error {
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return c.call(ctx, "token_mint", []interface{}{asset, to, amount}, nil, 0)
}

// call performs a JSON-RPC call with up to maxRetries retries and exponential backoff.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}, maxRetries int) error {
	start := time.Now()
	defer func() {
		observability.RecordGatewayLatency(method, time.Since(start).Seconds())
	}()

	reqID := c.requestID.Add(1)
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		lastErr = c.do(ctx, body, result)
		if lastErr == nil {
			return nil
		}
		var rpcErr *rpcError
		if errors.As(lastErr, &rpcErr) || errors.Is(lastErr, errNotRetryable) {
			// RPC errors are not retried
			return lastErr
		}
	}

	if maxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *RPCClient) do(ctx context.Context, body []byte, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w: %w", errNotRetryable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w: %w", errNotRetryable, err)
		}
	}
	return nil
}
