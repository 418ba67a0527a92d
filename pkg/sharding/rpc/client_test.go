package rpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/foundrysync/mimic/pkg/model"
)

// fakeHandler is an in-memory Handler used to exercise the hand-written
// service descriptor and JSON codec end to end, without a real registry.
type fakeHandler struct {
	lastSubmit *SubmitRequest
}

func (f *fakeHandler) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	f.lastSubmit = req
	return &SubmitResponse{Ok: true, Version: 7}, nil
}

func (f *fakeHandler) GetSnapshot(ctx context.Context, req *GetSnapshotRequest) (*GetSnapshotResponse, error) {
	return &GetSnapshotResponse{State: []byte(`{"doc":"` + req.DocumentID + `"}`), Version: 3}, nil
}

func (f *fakeHandler) Touch(ctx context.Context, req *TouchRequest) (*TouchResponse, error) {
	return &TouchResponse{}, nil
}

func (f *fakeHandler) SetPresence(ctx context.Context, req *SetPresenceRequest) (*SetPresenceResponse, error) {
	return &SetPresenceResponse{}, nil
}

func (f *fakeHandler) RemovePresence(ctx context.Context, req *RemovePresenceRequest) (*RemovePresenceResponse, error) {
	return &RemovePresenceResponse{}, nil
}

func (f *fakeHandler) GetPresenceSnapshot(ctx context.Context, req *GetPresenceSnapshotRequest) (*GetPresenceSnapshotResponse, error) {
	return &GetPresenceSnapshotResponse{Entries: []PresenceEntryWire{
		{ConnectionID: "conn-1", UserID: "user-1", Data: []byte(`{"cursor":1}`)},
	}}, nil
}

var _ Handler = (*fakeHandler)(nil)

func newTestServer(t *testing.T, h Handler) *Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterEntityServiceServer(srv, h)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn)
}

// ============================================================================
// Client <-> hand-written ServiceDesc <-> JSON codec, end to end
// ============================================================================

func TestClient_SubmitRoundTrip(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{}
	c := newTestServer(t, h)

	resp, err := c.Submit(context.Background(), &SubmitRequest{
		DocumentID: "doc-1",
		Transaction: model.Transaction{
			ID:  "tx-1",
			Ops: []model.RawOp{[]byte(`{"a":1}`)},
		},
	})
	require.NoError(t, err)
	assert.True(t, resp.Ok)
	assert.Equal(t, uint64(7), resp.Version)
	require.NotNil(t, h.lastSubmit)
	assert.Equal(t, "doc-1", h.lastSubmit.DocumentID)
	assert.Equal(t, "tx-1", h.lastSubmit.Transaction.ID)
}

func TestClient_GetSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, &fakeHandler{})

	resp, err := c.GetSnapshot(context.Background(), &GetSnapshotRequest{DocumentID: "doc-42"})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), resp.Version)
	assert.JSONEq(t, `{"doc":"doc-42"}`, string(resp.State))
}

func TestClient_TouchRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, &fakeHandler{})

	_, err := c.Touch(context.Background(), &TouchRequest{DocumentID: "doc-1"})
	assert.NoError(t, err)
}

func TestClient_PresenceRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, &fakeHandler{})

	_, err := c.SetPresence(context.Background(), &SetPresenceRequest{
		DocumentID: "doc-1", ConnectionID: "conn-1", UserID: "user-1", Data: []byte(`{"cursor":1}`),
	})
	require.NoError(t, err)

	snap, err := c.GetPresenceSnapshot(context.Background(), &GetPresenceSnapshotRequest{DocumentID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "conn-1", snap.Entries[0].ConnectionID)

	_, err = c.RemovePresence(context.Background(), &RemovePresenceRequest{DocumentID: "doc-1", ConnectionID: "conn-1"})
	assert.NoError(t, err)
}

func TestClient_CloseClosesUnderlyingConn(t *testing.T) {
	t.Parallel()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterEntityServiceServer(srv, &fakeHandler{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	c := NewClient(conn)
	assert.NoError(t, c.Close())
}
