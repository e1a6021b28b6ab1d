package tracer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopTracer_Start(t *testing.T) {
	tr := NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, SpanVerify,
		String(AttrCredentialID, "cred_1"),
		Bool(AttrValid, true),
	)

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.SetAttributes(String(AttrReason, "expired"))
	span.AddEvent(EventRetry, Int64(AttrAttempt, 1))
	span.End(errors.New("boom"))
}

func TestHashFederationID(t *testing.T) {
	assert.Empty(t, HashFederationID(""))
	assert.Len(t, HashFederationID("NGF-000123"), 16)
	assert.Equal(t, HashFederationID("NGF-000123"), HashFederationID("NGF-000123"))
	assert.NotEqual(t, HashFederationID("NGF-000123"), HashFederationID("NGF-000124"))
}

func TestToOTelAttributes(t *testing.T) {
	got := toOTelAttributes([]Attribute{
		String("s", "v"),
		Bool("b", true),
		Int("i", 3),
		Int64("i64", 4),
		Float64("f", 1.5),
		Duration("d", 2*time.Second),
		{Key: "ids", Value: []string{"a", "b"}},
		{Key: "skipped", Value: struct{}{}},
	})

	assert.Equal(t, []attribute.KeyValue{
		attribute.String("s", "v"),
		attribute.Bool("b", true),
		attribute.Int64("i", 3),
		attribute.Int64("i64", 4),
		attribute.Float64("f", 1.5),
		attribute.Int64("d", 2000),
		attribute.StringSlice("ids", []string{"a", "b"}),
	}, got)
	assert.Nil(t, toOTelAttributes(nil))
}
