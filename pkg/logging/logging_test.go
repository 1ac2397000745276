package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/tracesim/pkg/config"
)

func TestSetupWriter_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, config.LogConfig{Level: "warn", Format: "json"}))

	log.Info().Msg("hidden")
	log.Warn().Int("run", 3).Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"run":3`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, l)

	l, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetupWriter_UnknownFormat(t *testing.T) {
	assert.Error(t, SetupWriter(&bytes.Buffer{}, config.LogConfig{Format: "xml"}))
}
