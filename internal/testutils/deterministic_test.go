package testutils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"minerva/internal/context"
)

func TestGenerateUUID_DeterministicInTestMode(t *testing.T) {
	ResetTestCounters()
	ctx := context.New()
	ctx.SetTestMode(true)

	assert.Equal(t, "00000001-0000-4000-8000-000000000001", GenerateUUID(ctx))
	assert.Equal(t, "00000002-0000-4000-8000-000000000002", GenerateUUID(ctx))
}

func TestGenerateUUID_RandomInProduction(t *testing.T) {
	ctx := context.New()

	first := GenerateUUID(ctx)
	second := GenerateUUID(ctx)
	assert.NotEqual(t, first, second)
	assert.Len(t, first, 36)
}

func TestGenerateConversationID(t *testing.T) {
	ResetTestCounters()
	ctx := context.New()
	ctx.SetTestMode(true)

	assert.Equal(t, "conv_1735689600000_00000001", GenerateConversationID(ctx))
	assert.Equal(t, "conv_1735689600000_00000002", GenerateConversationID(ctx))

	prod := context.New()
	id := GenerateConversationID(prod)
	assert.True(t, strings.HasPrefix(id, "conv_"))
	assert.Len(t, strings.Split(id, "_"), 3)
}

func TestGenerateProjectID(t *testing.T) {
	ResetTestCounters()
	ctx := context.New()
	ctx.SetTestMode(true)

	assert.Equal(t, "proj_1735689600000_00000001", GenerateProjectID(ctx))
}

func TestGetCurrentTime_IncrementsInTestMode(t *testing.T) {
	ResetTestCounters()
	ctx := context.New()
	ctx.SetTestMode(true)

	first := GetCurrentTime(ctx)
	second := GetCurrentTime(ctx)

	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC), first)
	assert.Equal(t, time.Second, second.Sub(first))
}

func TestGetCurrentTime_RealInProduction(t *testing.T) {
	ctx := context.New()

	before := time.Now()
	got := GetCurrentTime(ctx)
	assert.WithinDuration(t, before, got, time.Second)
}
