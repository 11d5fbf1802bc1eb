package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnlimited(t *testing.T) {
	var svc Service = Unlimited{}
	ctx := context.Background()
	company := uuid.New()

	decision, err := svc.Check(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, Decision{}, decision)

	assert.NoError(t, svc.IncrementContractsUsed(ctx, company))
	assert.NoError(t, svc.ChargeOverage(ctx, company, uuid.New()))
}
