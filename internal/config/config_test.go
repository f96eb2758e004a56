package config_test

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-voyage/internal/config"
)

func TestDefaultPortFormsValidListenAddress(t *testing.T) {
	require.NoError(t, os.Unsetenv("PORT"))

	cfg := config.Load()
	assert.Equal(t, "8080", cfg.Server.Port)

	// main binds ":" + Port; a port value carrying its own colon breaks that.
	_, _, err := net.SplitHostPort(":" + cfg.Server.Port)
	assert.NoError(t, err)
}

func TestPortOverrideFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg := config.Load()
	assert.Equal(t, "9090", cfg.Server.Port)
}
