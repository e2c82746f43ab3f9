package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, New("debug", false).GetLevel())
	require.Equal(t, zerolog.InfoLevel, New("nonsense", false).GetLevel())
	require.Equal(t, zerolog.InfoLevel, New("", true).GetLevel())
}

func TestContextRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Str("item_id", "item-1").Msg("synced")

	require.Contains(t, buf.String(), `"item_id":"item-1"`)
	require.Contains(t, buf.String(), "synced")
}

func TestFromContextDefaultsToNop(t *testing.T) {
	log := FromContext(context.Background())
	require.Equal(t, zerolog.Disabled, log.GetLevel())
}
