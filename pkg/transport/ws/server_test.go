package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrysync/mimic/pkg/auth"
	"github.com/foundrysync/mimic/pkg/codec"
	coldmemory "github.com/foundrysync/mimic/pkg/coldstorage/memory"
	"github.com/foundrysync/mimic/pkg/document"
	hotmemory "github.com/foundrysync/mimic/pkg/hotstorage/memory"
	"github.com/foundrysync/mimic/pkg/model"
	"github.com/foundrysync/mimic/pkg/registry"
	"github.com/foundrysync/mimic/pkg/schema/jsonmerge"
)

type allowAllAuth struct{}

func (allowAllAuth) Authenticate(ctx context.Context, token string) (auth.Verdict, error) {
	return auth.Verdict{OK: true, UserID: "user-" + token, Permission: model.PermissionWrite}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	cold := coldmemory.New()
	hot := hotmemory.New()
	factory := func(documentID string) document.Config {
		return document.Config{DocumentID: documentID, ColdStore: cold, HotStore: hot, Applier: jsonmerge.New()}
	}
	reg := registry.New(factory, time.Minute, time.Hour, nil, nil)

	srv := New(Config{}, reg, allowAllAuth{}, jsonmerge.New())
	ts := httptest.NewServer(srv.Router(nil))
	t.Cleanup(func() {
		ts.Close()
		reg.Shutdown(context.Background())
	})
	return ts, reg
}

func dialDocument(t *testing.T, ts *httptest.Server, documentID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/mimic/doc/" + documentID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn, msgType string) codec.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var env codec.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == msgType {
			return env
		}
	}
}

// ============================================================================
// HTTP routes
// ============================================================================

func TestServer_HealthzReturnsOK(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_UpgradeRejectsMissingDocumentID(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/mimic/doc/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

// fakeShardRouter always reports a fixed owner for every document.
type fakeShardRouter struct{ owner string }

func (f fakeShardRouter) IsLocal(string) bool { return false }
func (f fakeShardRouter) Owner(string) string { return f.owner }

func TestServer_UpgradeRefusesNonLocalDocument(t *testing.T) {
	t.Parallel()

	cold := coldmemory.New()
	hot := hotmemory.New()
	factory := func(documentID string) document.Config {
		return document.Config{DocumentID: documentID, ColdStore: cold, HotStore: hot, Applier: jsonmerge.New()}
	}
	reg := registry.New(factory, time.Minute, time.Hour, nil, nil)
	defer reg.Shutdown(context.Background())

	srv := New(Config{}, reg, allowAllAuth{}, jsonmerge.New(), fakeShardRouter{owner: "node-b"})
	ts := httptest.NewServer(srv.Router(nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/mimic/doc/doc-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMisdirectedRequest, resp.StatusCode)
	assert.Equal(t, "node-b", resp.Header.Get("X-Mimic-Owner"))
}

// ============================================================================
// End-to-end WebSocket round trip
// ============================================================================

func TestServer_AuthAndSubmitRoundTrip(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	conn := dialDocument(t, ts, "doc-1")
	defer conn.Close()

	authFrame, err := codec.Encode(codec.TypeAuth, codec.AuthPayload{Token: "alice"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, authFrame))

	resultEnv := readEnvelope(t, conn, codec.TypeAuthResult)
	var result codec.AuthResultPayload
	require.NoError(t, codec.DecodePayload(resultEnv, &result))
	assert.True(t, result.Success)
	assert.Equal(t, "user-alice", result.UserID)

	readEnvelope(t, conn, codec.TypeSnapshot)

	wire, err := jsonmerge.New().Encode(model.Transaction{ID: "tx-1", Ops: []model.RawOp{[]byte(`{"title":"hi"}`)}})
	require.NoError(t, err)
	submitFrame, err := codec.Encode(codec.TypeSubmit, codec.SubmitPayload{Transaction: wire})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, submitFrame))

	txEnv := readEnvelope(t, conn, codec.TypeTransaction)
	var txPayload codec.TransactionPayload
	require.NoError(t, codec.DecodePayload(txEnv, &txPayload))
	tx, err := jsonmerge.New().Decode(txPayload.Transaction)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, uint64(1), txPayload.Version)
}

func TestServer_SecondConnectionSeesFirstConnectionsTransaction(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	conn1 := dialDocument(t, ts, "doc-shared")
	defer conn1.Close()
	conn2 := dialDocument(t, ts, "doc-shared")
	defer conn2.Close()

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		authFrame, err := codec.Encode(codec.TypeAuth, codec.AuthPayload{Token: "alice"})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, authFrame))
		readEnvelope(t, conn, codec.TypeAuthResult)
		readEnvelope(t, conn, codec.TypeSnapshot)
	}

	wire, err := jsonmerge.New().Encode(model.Transaction{ID: "tx-1", Ops: []model.RawOp{[]byte(`{"a":1}`)}})
	require.NoError(t, err)
	submitFrame, err := codec.Encode(codec.TypeSubmit, codec.SubmitPayload{Transaction: wire})
	require.NoError(t, err)
	require.NoError(t, conn1.WriteMessage(websocket.TextMessage, submitFrame))

	txEnv := readEnvelope(t, conn2, codec.TypeTransaction)
	var txPayload codec.TransactionPayload
	require.NoError(t, codec.DecodePayload(txEnv, &txPayload))
	tx, err := jsonmerge.New().Decode(txPayload.Transaction)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.ID)
}
