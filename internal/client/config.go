package client

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/houseofmisfits/willow/internal/platform"
)

//go:embed schema.cue
var configSchema string

// Config is the bootstrap configuration read once at startup. Everything
// that can change at runtime lives in the database instead.
type Config struct {
	GuildID    string   `yaml:"guild_id"`
	AdminRoles []string `yaml:"admin_roles"`
	Database   string   `yaml:"database"`
	LogLevel   string   `yaml:"log_level"`
	Token      string   `yaml:"token"`
}

// AdminRoleIDs returns the admin roles as platform role ids.
func (c *Config) AdminRoleIDs() []platform.RoleID {
	out := make([]platform.RoleID, len(c.AdminRoles))
	for i, r := range c.AdminRoles {
		out[i] = platform.RoleID(r)
	}
	return out
}

// LoadConfig reads and validates a YAML bootstrap config file. Validation
// unifies the decoded document with the embedded CUE schema, so schema
// violations surface as config errors rather than nil-map panics later.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates raw YAML config bytes.
func ParseConfig(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validateConfig(raw); err != nil {
		return nil, err
	}

	cfg := &Config{LogLevel: "info"}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func validateConfig(raw map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(configSchema).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		var msgs []string
		for _, e := range cueerrors.Errors(err) {
			msgs = append(msgs, e.Error())
		}
		return &ConfigError{Problems: msgs}
	}
	return nil
}

// ConfigError aggregates every schema violation found in one pass, so a bad
// config file is fixed in one edit rather than one restart per field.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid config: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid config: %d problems, first: %s", len(e.Problems), e.Problems[0])
}
