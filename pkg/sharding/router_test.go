package sharding

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/foundrysync/mimic/pkg/sharding/rpc"
)

// stubHandler is a minimal in-memory rpc.Handler for exercising Router
// dispatch without a real document.Runtime.
type stubHandler struct {
	submitCalls int
}

func (s *stubHandler) Submit(ctx context.Context, req *rpc.SubmitRequest) (*rpc.SubmitResponse, error) {
	s.submitCalls++
	return &rpc.SubmitResponse{Ok: true, Version: uint64(s.submitCalls)}, nil
}

func (s *stubHandler) GetSnapshot(ctx context.Context, req *rpc.GetSnapshotRequest) (*rpc.GetSnapshotResponse, error) {
	return &rpc.GetSnapshotResponse{Version: 1}, nil
}

func (s *stubHandler) Touch(ctx context.Context, req *rpc.TouchRequest) (*rpc.TouchResponse, error) {
	return &rpc.TouchResponse{}, nil
}

func (s *stubHandler) SetPresence(ctx context.Context, req *rpc.SetPresenceRequest) (*rpc.SetPresenceResponse, error) {
	return &rpc.SetPresenceResponse{}, nil
}

func (s *stubHandler) RemovePresence(ctx context.Context, req *rpc.RemovePresenceRequest) (*rpc.RemovePresenceResponse, error) {
	return &rpc.RemovePresenceResponse{}, nil
}

func (s *stubHandler) GetPresenceSnapshot(ctx context.Context, req *rpc.GetPresenceSnapshotRequest) (*rpc.GetPresenceSnapshotResponse, error) {
	return &rpc.GetPresenceSnapshotResponse{}, nil
}

var _ rpc.Handler = (*stubHandler)(nil)

func singleNodeRing(self string) *Ring {
	r := NewRing()
	r.Add(self, 0)
	return r
}

// ============================================================================
// Router: ownership and local-vs-forward resolution
// ============================================================================

func TestRouter_OwnerAndIsLocal_SingleNode(t *testing.T) {
	t.Parallel()

	local := &stubHandler{}
	members := NewStaticMemberList("node-a", map[string]string{"node-a": "ignored:0"})
	router := NewRouter("node-a", singleNodeRing("node-a"), members, local, nil)

	assert.Equal(t, "node-a", router.Owner("doc-1"))
	assert.True(t, router.IsLocal("doc-1"))
}

func TestRouter_DispatchLocalRunsAgainstLocalHandler(t *testing.T) {
	t.Parallel()

	local := &stubHandler{}
	members := NewStaticMemberList("node-a", map[string]string{"node-a": "ignored:0"})
	router := NewRouter("node-a", singleNodeRing("node-a"), members, local, nil)

	resp, err := router.Submit(context.Background(), &rpc.SubmitRequest{DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.True(t, resp.Ok)
	assert.Equal(t, 1, local.submitCalls)
}

func TestRouter_DispatchUnreachableOwnerReturnsError(t *testing.T) {
	t.Parallel()

	local := &stubHandler{}
	ring := NewRing()
	ring.Add("node-a", 0)
	ring.Add("node-b", 0)

	// node-b is known to the ring but has no address in the member list.
	members := NewStaticMemberList("node-a", map[string]string{"node-a": "ignored:0"})
	router := NewRouter("node-a", ring, members, local, nil)

	var sawNodeB bool
	for _, key := range []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5", "doc-6", "doc-7", "doc-8"} {
		if router.Owner(key) == "node-b" {
			sawNodeB = true
			_, err := router.Touch(context.Background(), &rpc.TouchRequest{DocumentID: key})
			assert.Error(t, err)
		}
	}
	require.True(t, sawNodeB, "test setup expects at least one key to hash to node-b")
}

// ============================================================================
// Router: forwarding to a remote peer over the real JSON/gRPC wire
// ============================================================================

func newBufconnClient(t *testing.T, h rpc.Handler) *rpc.Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	rpc.RegisterEntityServiceServer(srv, h)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return rpc.NewClient(conn)
}

func TestRouter_ForwardsToRemoteOwner(t *testing.T) {
	t.Parallel()

	remote := &stubHandler{}
	client := newBufconnClient(t, remote)

	ring := NewRing()
	ring.Add("node-a", 0)
	ring.Add("node-b", 0)

	members := NewStaticMemberList("node-a", map[string]string{
		"node-a": "ignored:0",
		"node-b": "ignored:0",
	})
	local := &stubHandler{}
	router := NewRouter("node-a", ring, members, local, nil)
	router.dial = func(addr string) (*rpc.Client, error) { return client, nil }

	var documentID string
	for _, key := range []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5", "doc-6", "doc-7", "doc-8"} {
		if router.Owner(key) == "node-b" {
			documentID = key
			break
		}
	}
	require.NotEmpty(t, documentID, "test setup expects at least one key to hash to node-b")

	resp, err := router.Submit(context.Background(), &rpc.SubmitRequest{DocumentID: documentID})
	require.NoError(t, err)
	assert.True(t, resp.Ok)
	assert.Equal(t, 1, remote.submitCalls)
	assert.Equal(t, 0, local.submitCalls, "a remote-owned document must never run against the local handler")
}

func TestRouter_ClientForCachesDialedClients(t *testing.T) {
	t.Parallel()

	remote := &stubHandler{}
	client := newBufconnClient(t, remote)

	ring := NewRing()
	ring.Add("node-a", 0)
	ring.Add("node-b", 0)

	members := NewStaticMemberList("node-a", map[string]string{
		"node-a": "ignored:0",
		"node-b": "ignored:0",
	})
	local := &stubHandler{}
	router := NewRouter("node-a", ring, members, local, nil)

	var dialCount int
	router.dial = func(addr string) (*rpc.Client, error) {
		dialCount++
		return client, nil
	}

	var documentID string
	for _, key := range []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5", "doc-6", "doc-7", "doc-8"} {
		if router.Owner(key) == "node-b" {
			documentID = key
			break
		}
	}
	require.NotEmpty(t, documentID)

	for i := 0; i < 3; i++ {
		_, err := router.Touch(context.Background(), &rpc.TouchRequest{DocumentID: documentID})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, dialCount, "clientFor must dial a peer at most once and cache the result")
}
