package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrysync/mimic/pkg/model"
	"github.com/foundrysync/mimic/pkg/schema/jsonmerge"
)

func TestDecode_ValidEnvelope(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, TypePing, env.Type)
}

func TestDecode_MalformedJSONReturnsParseError(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte("not json"))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestDecode_MissingTypeReturnsParseError(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"payload":{}}`))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestDecodePayload_EmptyPayloadIsNoOp(t *testing.T) {
	t.Parallel()

	var payload AuthPayload
	err := DecodePayload(Envelope{Type: TypePing}, &payload)
	require.NoError(t, err)
	assert.Empty(t, payload.Token)
}

func TestDecodePayload_PopulatesTarget(t *testing.T) {
	t.Parallel()

	env := Envelope{Type: TypeAuth, Payload: json.RawMessage(`{"token":"abc"}`)}
	var payload AuthPayload
	require.NoError(t, DecodePayload(env, &payload))
	assert.Equal(t, "abc", payload.Token)
}

func TestDecodePayload_MalformedPayloadReturnsParseError(t *testing.T) {
	t.Parallel()

	env := Envelope{Type: TypeAuth, Payload: json.RawMessage(`not json`)}
	var payload AuthPayload
	err := DecodePayload(env, &payload)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestEncode_ProducesDecodableEnvelope(t *testing.T) {
	t.Parallel()

	frame, err := Encode(TypeSnapshot, SnapshotPayload{State: json.RawMessage(`{"a":1}`), Version: 3})
	require.NoError(t, err)

	env, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeSnapshot, env.Type)

	var payload SnapshotPayload
	require.NoError(t, DecodePayload(env, &payload))
	assert.Equal(t, uint64(3), payload.Version)
	assert.JSONEq(t, `{"a":1}`, string(payload.State))
}

func TestEncode_SubmitPayloadRoundTripsApplierEncodedTransaction(t *testing.T) {
	t.Parallel()

	applier := jsonmerge.New()
	tx := model.Transaction{ID: "tx-1", Ops: []model.RawOp{[]byte(`{"a":1}`)}, Timestamp: 42}
	wire, err := applier.Encode(tx)
	require.NoError(t, err)

	frame, err := Encode(TypeSubmit, SubmitPayload{Transaction: wire})
	require.NoError(t, err)

	env, err := Decode(frame)
	require.NoError(t, err)
	var payload SubmitPayload
	require.NoError(t, DecodePayload(env, &payload))

	decoded, err := applier.Decode(payload.Transaction)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, decoded.ID)
	assert.Equal(t, tx.Timestamp, decoded.Timestamp)
}
