package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("nonsense").GetLevel())
}

func TestJSONOutput(t *testing.T) {
	l := NewLogger("info")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithField("user_id", 7).Info("User registered successfully")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "User registered successfully", entry["msg"])
	assert.Equal(t, float64(7), entry["user_id"])
	assert.Equal(t, "info", entry["level"])
}
