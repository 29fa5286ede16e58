package sink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop(t *testing.T) {
	loc, err := Noop{}.Put(context.Background(), Batch{})
	require.NoError(t, err)
	assert.Empty(t, loc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Noop{}.Put(ctx, Batch{})
	assert.ErrorIs(t, err, context.Canceled)
}
