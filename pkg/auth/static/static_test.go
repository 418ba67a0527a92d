package static

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrysync/mimic/pkg/model"
)

func TestProvider_AuthenticateKnownToken(t *testing.T) {
	t.Parallel()

	p := New(map[string]Identity{
		"tok-1": {UserID: "user-1", Permission: model.PermissionWrite},
	})

	verdict, err := p.Authenticate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.True(t, verdict.OK)
	assert.Equal(t, "user-1", verdict.UserID)
	assert.Equal(t, model.PermissionWrite, verdict.Permission)
}

func TestProvider_AuthenticateUnknownTokenFails(t *testing.T) {
	t.Parallel()

	p := New(nil)
	verdict, err := p.Authenticate(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, verdict.OK)
	assert.NotEmpty(t, verdict.Reason)
}

func TestProvider_SetAddsNewTokenAtRuntime(t *testing.T) {
	t.Parallel()

	p := New(nil)
	p.Set("tok-2", Identity{UserID: "user-2", Permission: model.PermissionRead})

	verdict, err := p.Authenticate(context.Background(), "tok-2")
	require.NoError(t, err)
	assert.True(t, verdict.OK)
	assert.Equal(t, model.PermissionRead, verdict.Permission)
}

func TestNew_ClonesInputMap(t *testing.T) {
	t.Parallel()

	input := map[string]Identity{"tok-1": {UserID: "user-1"}}
	p := New(input)
	input["tok-1"] = Identity{UserID: "mutated"}

	verdict, err := p.Authenticate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", verdict.UserID, "New must not alias the caller's map")
}
