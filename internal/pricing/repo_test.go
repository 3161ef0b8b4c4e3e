package pricing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelmint/pixelmint-backend/internal/pricing"
	"github.com/pixelmint/pixelmint-backend/pkg/db/dbtest"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
)

func TestCost(t *testing.T) {
	client := dbtest.Open(t)
	dbtest.SeedPricing(t, client, "nano-banana", 4, true)
	dbtest.SeedPricing(t, client, "sora-image", 6, false)
	repo := pricing.NewRepository(client.DB())
	ctx := context.Background()

	cost, err := repo.Cost(ctx, "nano-banana")
	require.NoError(t, err)
	assert.Equal(t, int64(4), cost)

	for _, key := range []string{"sora-image", "dall-e-9", ""} {
		_, err := repo.Cost(ctx, key)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnsupportedModel), "key %q: %v", key, err)
	}

	rows, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "nano-banana", rows[0].ModelKey)
}
