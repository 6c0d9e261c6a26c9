package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/pkg/relay"
)

func TestReloadRouting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	a := &App{router: relay.NewSwapRouter(relay.StaticRouter{Default: -100})}

	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  token: "x"
  staff_group_id: -100
routing:
  categories:
    3: {chat_id: -300, topic_id: 33, label: Physics}
`), 0o600))
	a.reloadRouting(path)

	target := a.router.Route(3)
	assert.Equal(t, int64(-300), target.ChatID)
	assert.Equal(t, int64(33), target.TopicID)
	assert.Equal(t, int64(-100), a.router.Route(0).ChatID)

	// an invalid edit keeps the current routing
	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  staff_group_id: -100
routing:
  categories:
    3: {chat_id: 0}
`), 0o600))
	a.reloadRouting(path)
	assert.Equal(t, int64(-300), a.router.Route(3).ChatID)

	require.NoError(t, os.WriteFile(path, []byte("routing: [broken"), 0o600))
	a.reloadRouting(path)
	assert.Equal(t, int64(-300), a.router.Route(3).ChatID)
}
