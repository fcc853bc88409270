package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFromContext(t *testing.T) {
	assert.Same(t, &log.Logger, LoggerFromContext(context.Background()))

	var buf bytes.Buffer
	l := zerolog.New(&buf)
	ctx := l.WithContext(context.Background())
	LoggerFromContext(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestSetGlobalLogger(t *testing.T) {
	orig := log.Logger
	origLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = orig
		zerolog.SetGlobalLevel(origLevel)
	}()

	SetGlobalLogger("debug", "json")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	SetGlobalLogger("nonsense", "console")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInitTracer(t *testing.T) {
	var buf bytes.Buffer
	tp, err := InitTracer("cachely-test", &buf)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "unit")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name": "unit"`)
	assert.Contains(t, buf.String(), "cachely-test")
}
