package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.True(t, logger.Core().Enabled(-1)) // debug enabled in development
}

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.False(t, logger.Core().Enabled(-1))
}

func TestConfigEncoding(t *testing.T) {
	t.Parallel()

	dev := developmentConfig()
	require.Equal(t, "ts", dev.EncoderConfig.TimeKey)

	prod := productionConfig()
	require.Equal(t, "ts", prod.EncoderConfig.TimeKey)
	require.False(t, prod.DisableStacktrace)
}
