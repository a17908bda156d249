package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/errclass/internal/logging"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	entry, err := logging.NewWithOutput(&buf, "debug", "json")
	require.NoError(t, err)

	entry.WithField("component", "trainer").Debug("Epoch completed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "errclass", line["service"])
	assert.Equal(t, "trainer", line["component"])
	assert.Equal(t, "Epoch completed", line["msg"])
	assert.Equal(t, "debug", line["level"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	entry, err := logging.NewWithOutput(&buf, "info", "text")
	require.NoError(t, err)

	entry.Debug("hidden")
	entry.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "service=errclass")
	assert.Equal(t, logrus.InfoLevel, entry.Logger.GetLevel())
}

func TestNew_Invalid(t *testing.T) {
	_, err := logging.New("loud", "text")
	assert.Error(t, err)

	_, err = logging.New("info", "xml")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	entry := logging.Discard()
	assert.NotPanics(t, func() { entry.Info("nothing") })
}
