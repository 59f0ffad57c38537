package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Settings{ServiceName: "auratriage"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMeterAndTracer_UsableWithoutInit(t *testing.T) {
	ctx := context.Background()

	counter, err := Meter("test").Int64Counter("test.count")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	_, span := Tracer("test").Start(ctx, "op")
	span.End()
}
