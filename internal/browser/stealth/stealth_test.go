package stealth

import (
	"testing"

	rodstealth "github.com/go-rod/stealth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	cfg.Headers = map[string]string{"DNT": "1"}

	p := FromConfig(cfg)
	assert.Equal(t, cfg.UserAgent, p.UserAgent)
	assert.Equal(t, "America/New_York", p.Timezone)
	assert.Equal(t, []string{"en-US", "en"}, p.Languages)
	assert.Equal(t, 1920, p.Width)
	assert.Equal(t, 1080, p.Height)
	assert.True(t, p.Evasions)

	headers := p.ExtraHeaders()
	assert.Equal(t, "en-US,en;q=0.9", headers["Accept-Language"])
	assert.Equal(t, "1", headers["DNT"])
}

func TestFromConfigKeepsDefaultsForEmptyValues(t *testing.T) {
	p := FromConfig(config.BrowserConfig{Locale: "de"})
	assert.Equal(t, DefaultPersona.UserAgent, p.UserAgent)
	assert.Equal(t, []string{"de"}, p.Languages)
	assert.False(t, p.Evasions)
	assert.Empty(t, p.InitScripts())
}

func TestInitScriptsCarryEvasions(t *testing.T) {
	scripts := DefaultPersona.InitScripts()
	require.Len(t, scripts, 1)
	assert.Equal(t, rodstealth.JS, scripts[0])
}

func TestApply(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	tasks := Apply(DefaultPersona, zap.New(core))
	// UA, evasions, timezone, locale, metrics, headers.
	assert.Len(t, tasks, 6)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Applying browser stealth persona", entry.Message)
	assert.Equal(t, DefaultPersona.UserAgent, entry.ContextMap()["userAgent"])

	bare := Apply(Persona{UserAgent: "ua"}, zap.NewNop())
	assert.Len(t, bare, 1)
}
