package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionOptionsDefaults(t *testing.T) {
	opts := SessionOptions{}.withDefaults()
	assert.Equal(t, EngineChromium, opts.Engine)
	require.NotNil(t, opts.Viewport)
	assert.Equal(t, Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}, *opts.Viewport)
	assert.Equal(t, DefaultTimeout, opts.Timeout)

	set := SessionOptions{
		Engine:   EngineWebKit,
		Viewport: &Viewport{Width: 800, Height: 600},
		Timeout:  5 * time.Second,
	}.withDefaults()
	assert.Equal(t, EngineWebKit, set.Engine)
	assert.Equal(t, 800, set.Viewport.Width)
	assert.Equal(t, 5*time.Second, set.Timeout)

	zero := SessionOptions{Viewport: &Viewport{Width: 0, Height: 600}}.withDefaults()
	assert.Equal(t, DefaultViewportWidth, zero.Viewport.Width)
}

func TestManagerOptions(t *testing.T) {
	m := NewSessionManager(WithMaxSessions(2), WithEngine(EngineFirefox), WithSkipInstall(true))
	assert.Equal(t, 2, m.maxSessions)
	assert.Equal(t, EngineFirefox, m.engine)
	assert.True(t, m.skipInstall)

	m = NewSessionManager(WithMaxSessions(0), WithEngine(""))
	assert.Equal(t, DefaultMaxSessions, m.maxSessions)
	assert.Equal(t, EngineChromium, m.engine)

	_, err := m.StartSession("run", SessionOptions{})
	assert.ErrorContains(t, err, "not initialized")
	assert.NoError(t, m.Shutdown())
}
