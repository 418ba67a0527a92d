package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `validate:"required"`
	Level string `validate:"oneof=DEBUG INFO WARN ERROR"`
	Port  int    `validate:"min=1,max=65535"`
}

func TestStruct_ValidStructReturnsNil(t *testing.T) {
	t.Parallel()

	err := Struct(sample{Name: "svc", Level: "INFO", Port: 8080})
	assert.NoError(t, err)
}

func TestStruct_MissingRequiredFieldReturnsError(t *testing.T) {
	t.Parallel()

	err := Struct(sample{Level: "INFO", Port: 8080})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "Name")
}

func TestStruct_JoinsMultipleFieldErrors(t *testing.T) {
	t.Parallel()

	err := Struct(sample{Name: "", Level: "BOGUS", Port: 0})
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{"Name", "Level", "Port"} {
		assert.True(t, strings.Contains(msg, want), "expected error to mention field %q, got: %s", want, msg)
	}
}

func TestStruct_OneofRejectsOutOfSetValue(t *testing.T) {
	t.Parallel()

	err := Struct(sample{Name: "svc", Level: "TRACE", Port: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}
