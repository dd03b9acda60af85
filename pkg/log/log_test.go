package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCtxCarriesRoomLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(Config{Level: "debug", ServiceName: "live-engine"}, &buf))
	ctx = WithRoom(ctx, "r1")

	l := Ctx(ctx)
	l.Warn().Str(FieldUserID, "u1").Msg("viewer dropped")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "r1", entry[FieldRoomID])
	assert.Equal(t, "u1", entry[FieldUserID])
	assert.Equal(t, "live-engine", entry[FieldService])
	assert.Equal(t, "viewer dropped", entry["message"])
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	assert.Equal(t, L(), Ctx(context.Background()))
}

func TestParseLevel(t *testing.T) {
	l := New(Config{Level: "error"}, &bytes.Buffer{})
	assert.Equal(t, "error", l.GetLevel().String())

	l = New(Config{Level: "bogus"}, &bytes.Buffer{})
	assert.Equal(t, "info", l.GetLevel().String())
}
