package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client talks to a running daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	if err := c.call(ctx, MethodPing, nil, &res); err != nil {
		return err
	}
	if !res.Pong {
		return fmt.Errorf("ping failed: no pong")
	}
	return nil
}

// Status retrieves daemon and engine status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var res StatusResult
	if err := c.call(ctx, MethodStatus, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Search runs a query on the daemon's engine.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var res SearchResponse
	if err := c.call(ctx, MethodSearch, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Add uploads one document and returns its source id.
func (c *Client) Add(ctx context.Context, params AddParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", fmt.Errorf("invalid params: %w", err)
	}
	var res AddResult
	if err := c.call(ctx, MethodAdd, params, &res); err != nil {
		return "", err
	}
	return res.SourceID, nil
}

// Remove deletes a source. Unknown ids are not an error.
func (c *Client) Remove(ctx context.Context, sourceID string) error {
	params := RemoveParams{SourceID: sourceID}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	var res RemoveResult
	return c.call(ctx, MethodRemove, params, &res)
}

// List returns every live source.
func (c *Client) List(ctx context.Context) (*ListResult, error) {
	var res ListResult
	if err := c.call(ctx, MethodList, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// call performs one request/response exchange on a fresh connection.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID(),
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("failed to receive response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error.Err()
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}
