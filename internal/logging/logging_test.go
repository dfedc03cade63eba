package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() {
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(&log.TextFormatter{})
	})

	require.NoError(t, Setup(Config{Level: "debug", Format: "json"}))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	_, isJSON := log.StandardLogger().Formatter.(*log.JSONFormatter)
	assert.True(t, isJSON)

	require.NoError(t, Setup(Config{}))
	assert.Equal(t, log.InfoLevel, log.GetLevel())
	_, isText := log.StandardLogger().Formatter.(*log.TextFormatter)
	assert.True(t, isText)
}

func TestSetupRejectsBadInput(t *testing.T) {
	assert.Error(t, Setup(Config{Level: "loud"}))
	assert.Error(t, Setup(Config{Format: "xml"}))
}
