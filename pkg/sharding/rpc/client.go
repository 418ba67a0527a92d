package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client forwards entity operations to a remote owning node over one
// shared ClientConn, invoking methods directly rather than through a
// protoc-generated stub.
type Client struct {
	conn *grpc.ClientConn
}

// Dial opens a ClientConn to addr configured to use the JSON codec.
func Dial(addr string, extra ...grpc.DialOption) (*Client, error) {
	opts := append([]grpc.DialOption{grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName))}, extra...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an already-established ClientConn.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	resp := new(SubmitResponse)
	if err := c.conn.Invoke(ctx, fullMethod("Submit"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetSnapshot(ctx context.Context, req *GetSnapshotRequest) (*GetSnapshotResponse, error) {
	resp := new(GetSnapshotResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetSnapshot"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Touch(ctx context.Context, req *TouchRequest) (*TouchResponse, error) {
	resp := new(TouchResponse)
	if err := c.conn.Invoke(ctx, fullMethod("Touch"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SetPresence(ctx context.Context, req *SetPresenceRequest) (*SetPresenceResponse, error) {
	resp := new(SetPresenceResponse)
	if err := c.conn.Invoke(ctx, fullMethod("SetPresence"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) RemovePresence(ctx context.Context, req *RemovePresenceRequest) (*RemovePresenceResponse, error) {
	resp := new(RemovePresenceResponse)
	if err := c.conn.Invoke(ctx, fullMethod("RemovePresence"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetPresenceSnapshot(ctx context.Context, req *GetPresenceSnapshotRequest) (*GetPresenceSnapshotResponse, error) {
	resp := new(GetPresenceSnapshotResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetPresenceSnapshot"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

var _ Handler = (*Client)(nil)
