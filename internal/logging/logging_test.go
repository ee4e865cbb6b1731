package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetup_ParsesLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Setup("debug", "json")
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Setup("WARN", "console")
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestSetup_UnknownLevelFallsBackToInfo(t *testing.T) {
	Setup("loud", "json")
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	Setup("", "json")
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
