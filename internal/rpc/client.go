package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"healthd-ng/internal/charging"
)

// ErrClientClosed is returned by calls on a Client that was closed, either
// explicitly or after a failed exchange left the connection out of step.
var ErrClientClosed = errors.New("rpc: client closed")

// Client calls a Server. Calls are serialized on one connection. Any transport
// failure (including a timed-out or canceled call) closes the connection,
// since a late reply would otherwise be read as the answer to the next call.
type Client struct {
	conn net.Conn
	fr   *FrameReader
	fw   *FrameWriter

	mu     sync.Mutex
	nextID uint32
	closed atomic.Bool
}

func Dial(ctx context.Context, socket string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", socket, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn: conn,
		fr:   NewFrameReader(conn, DefaultMaxMessageSize),
		fw:   NewFrameWriter(conn, DefaultMaxMessageSize),
	}
}

func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// fail closes the connection after a broken exchange and returns err.
func (c *Client) fail(err error) error {
	_ = c.Close()
	return err
}

func (c *Client) GetChargingEnabled(ctx context.Context) (bool, error) {
	resp, err := c.call(ctx, &Request{Method: MethodGetChargingEnabled})
	if err != nil {
		return false, err
	}
	if err := responseErr("get", resp); err != nil {
		return false, err
	}
	if resp.Enabled == nil {
		return false, fmt.Errorf("rpc: getChargingEnabled: response without value")
	}
	return *resp.Enabled, nil
}

func (c *Client) SetChargingEnabled(ctx context.Context, enabled bool) error {
	resp, err := c.call(ctx, &Request{Method: MethodSetChargingEnabled, Enabled: &enabled})
	if err != nil {
		return err
	}
	return responseErr("set", resp)
}

func (c *Client) call(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	c.nextID++
	req.ID = c.nextID

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.fail(fmt.Errorf("rpc: set deadline: %w", err))
	}
	// Unblock the exchange if ctx is canceled without a deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	data, err := EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode request: %w", err)
	}
	if err := c.fw.WriteFrame(data); err != nil {
		return nil, c.fail(c.ctxErr(ctx, fmt.Errorf("rpc: %s: %w", req.Method, err)))
	}
	frame, err := c.fr.ReadFrame()
	if err != nil {
		return nil, c.fail(c.ctxErr(ctx, fmt.Errorf("rpc: %s: %w", req.Method, err)))
	}
	resp, err := DecodeResponse(frame)
	if err != nil {
		return nil, c.fail(fmt.Errorf("rpc: %s: %w", req.Method, err))
	}
	if resp.ID != req.ID {
		return nil, c.fail(fmt.Errorf("rpc: %s: response id %d for request %d", req.Method, resp.ID, req.ID))
	}
	return resp, nil
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(ctxErr, err)
	}
	// The socket deadline can fire a moment before ctx notices.
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return errors.Join(context.DeadlineExceeded, err)
	}
	return err
}

// responseErr maps a failed status back to the charging error kinds, so
// callers can test errors.Is(err, charging.ErrUnsupportedOperation).
func responseErr(op string, resp *Response) error {
	switch resp.Status {
	case StatusOK:
		return nil
	case StatusUnsupportedOperation:
		return &charging.Error{Kind: charging.KindUnsupportedOperation, Op: op, Msg: "remote: " + resp.Detail}
	case StatusIllegalState:
		return &charging.Error{Kind: charging.KindIllegalState, Op: op, Msg: "remote: " + resp.Detail}
	default:
		return fmt.Errorf("rpc: %s: %s: %s", op, resp.Status, resp.Detail)
	}
}
