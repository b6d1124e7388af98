package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ehr-terminal/internal/model"
)

func TestStartPrefillsAndApply(t *testing.T) {
	cfg := *model.DefaultAppConfig()
	m := New("", cfg, 80, 24)
	m.Start()

	assert.Equal(t, cfg.API.BaseURL, m.fv.baseURL)
	assert.Equal(t, "30", m.fv.timeoutSec)
	assert.Equal(t, "60", m.fv.pollSec)

	m.fv.baseURL = " https://ehr.example.com/ "
	m.fv.pollSec = "15"
	m.fv.tokenBackend = model.TokenBackendStore

	got := m.Apply(cfg)
	assert.Equal(t, "https://ehr.example.com", got.API.BaseURL)
	assert.Equal(t, 15, got.Display.PollIntervalSec)
	assert.Equal(t, 30, got.API.TimeoutSec)
	assert.Equal(t, model.TokenBackendStore, got.Storage.TokenBackend)
}

func TestSaveWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m := New(path, *model.DefaultAppConfig(), 80, 24)
	m.Start()
	m.fv.baseURL = "http://10.1.1.1:5000"

	msg := m.save()()
	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	done, ok := cmd().(DoneMsg)
	require.True(t, ok)
	assert.True(t, done.Saved)

	loaded, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.1.1.1:5000", loaded.API.BaseURL)
}

func TestSaveFailureReopensForm(t *testing.T) {
	m := New("", *model.DefaultAppConfig(), 80, 24)
	m.Start()

	m, _ = m.Update(m.save()())
	assert.Equal(t, ModeForm, m.Mode())
	assert.Contains(t, m.statusMsg, "Error saving settings")
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateURL("http://127.0.0.1:5000"))
	assert.Error(t, validateURL(""))
	assert.Error(t, validateURL("127.0.0.1:5000"))
	assert.Error(t, validateURL("ftp://host"))

	positive := validatePositive("Timeout")
	assert.NoError(t, positive("10"))
	assert.EqualError(t, positive("0"), "Timeout must be positive")
	assert.EqualError(t, positive("ten"), "Timeout must be a number")
}
