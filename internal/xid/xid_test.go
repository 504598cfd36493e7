package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasPrefixAndUUID(t *testing.T) {
	id := New("sale")
	require.True(t, strings.HasPrefix(id, "sale-"))

	_, err := uuid.Parse(strings.TrimPrefix(id, "sale-"))
	assert.NoError(t, err)
	assert.NotEqual(t, id, New("sale"))
}
