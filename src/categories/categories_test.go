package categories

import (
	"context"
	"testing"

	"git.handmade.network/hmn/discuss/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := NewStatic()

	status, err := s.CategoryStatus(ctx, 3)
	require.Nil(t, err)
	assert.Equal(t, models.CategoryStatusOpen, status)
	assert.True(t, status.AcceptsReplies())

	s.Set(3, models.CategoryStatusArchived)
	status, err = s.CategoryStatus(ctx, 3)
	require.Nil(t, err)
	assert.Equal(t, models.CategoryStatusArchived, status)
	assert.False(t, status.AcceptsReplies())
}
