package observability

import (
	"context"
	"testing"

	"github.com/annel0/shopzones/internal/config"
	"github.com/annel0/shopzones/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledTelemetryIsNoop(t *testing.T) {
	shutdown, err := InitTelemetry(context.Background(), config.TelemetryConfig{ServiceName: "shopzones"}, logging.Discard())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestEnabledTelemetry(t *testing.T) {
	// экспортер создается без соединения; отправка происходит лениво
	shutdown, err := InitTelemetry(context.Background(), config.TelemetryConfig{Enabled: true, ServiceName: "shopzones-test"}, logging.Discard())
	require.NoError(t, err)
	_ = shutdown(context.Background())
}
