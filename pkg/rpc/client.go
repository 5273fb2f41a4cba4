package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
)

// RemoteError is a failure reported by the server. It unwraps to the
// sentinel matching Kind.
type RemoteError struct {
	Method  string
	Message string
	Kind    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Method, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return apperrors.FromKind(e.Kind)
}

// Client is a lightweight JSON-over-TCP RPC client.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	mu      sync.Mutex
	nextID  atomic.Int64
}

// Dial connects to an RPC server at the given address.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

// Call invokes the named RPC method with params and decodes the response
// into result. A deadline on ctx bounds the round trip. Call is safe for
// concurrent use; calls on one client are serialised.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	id := strconv.FormatInt(c.nextID.Add(1), 10)
	req := Request{
		Method: method,
		ID:     id,
		Params: raw,
	}
	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("response id %q does not match request id %q", resp.ID, id)
	}
	if resp.Error != "" {
		return &RemoteError{Method: method, Message: resp.Error, Kind: resp.ErrorKind}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("unmarshaling into result: %w", err)
		}
	}
	return nil
}

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
