package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houseofmisfits/willow/internal/platform"
)

const validYAML = `
guild_id: guild-1
admin_roles:
  - role-admin
  - role-mod
database: willow.db
log_level: debug
token: secret
`

func TestParseConfig_Valid(t *testing.T) {
	cfg, err := ParseConfig([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "guild-1", cfg.GuildID)
	assert.Equal(t, []string{"role-admin", "role-mod"}, cfg.AdminRoles)
	assert.Equal(t, "willow.db", cfg.Database)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, []platform.RoleID{"role-admin", "role-mod"}, cfg.AdminRoleIDs())
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
guild_id: guild-1
admin_roles: [role-admin]
database: willow.db
`))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Token)
}

func TestParseConfig_MissingGuild(t *testing.T) {
	_, err := ParseConfig([]byte(`
admin_roles: [role-admin]
database: willow.db
`))
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.NotEmpty(t, cerr.Problems)
}

func TestParseConfig_EmptyAdminRoles(t *testing.T) {
	_, err := ParseConfig([]byte(`
guild_id: guild-1
admin_roles: []
database: willow.db
`))
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestParseConfig_BadLogLevel(t *testing.T) {
	_, err := ParseConfig([]byte(`
guild_id: guild-1
admin_roles: [role-admin]
database: willow.db
log_level: loud
`))
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestParseConfig_MalformedYAML(t *testing.T) {
	_, err := ParseConfig([]byte("guild_id: [unclosed"))
	require.Error(t, err)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "willow.yml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "guild-1", cfg.GuildID)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}
