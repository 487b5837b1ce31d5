package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/devblac/cw-indexer/internal/source"
)

// Config holds the YAML configuration.
type Config struct {
	Node       NodeConfig          `yaml:"node"`
	DBPath     string              `yaml:"db_path"`
	CodeIDs    map[string][]uint64 `yaml:"code_ids"`
	Extractors []Extractor         `yaml:"extractors"`
	Listener   ListenerConfig      `yaml:"listener"`
}

// NodeConfig locates the chain node.
type NodeConfig struct {
	RPCURL string `yaml:"rpc_url"`
	LCDURL string `yaml:"lcd_url"`
	WSURL  string `yaml:"ws_url"`
}

// ListenerConfig tunes the WebSocket subscription.
type ListenerConfig struct {
	// Events to subscribe to; defaults to NewBlock and Tx.
	Events []string `yaml:"events,omitempty"`
	// WaitForPort delays dialing until the node port accepts connections.
	WaitForPort bool `yaml:"wait_for_port,omitempty"`
	// Base64Attributes selects the legacy attribute encoding of
	// Tendermint 0.34 and earlier nodes.
	Base64Attributes bool `yaml:"base64_attributes,omitempty"`
}

// Extractor enables one extractor type with its optional filters.
type Extractor struct {
	Type string `yaml:"type"`

	// Bank filters, only meaningful for type "bank".
	Bank *source.BankTransferConfig `yaml:"bank,omitempty"`
	// FeeGrant filters, only meaningful for type "feegrant".
	FeeGrant *source.FeeGrantConfig `yaml:"feegrant,omitempty"`
}

// KnownExtractorTypes are the extractor types the binary can construct.
var KnownExtractorTypes = []string{"daocore", "roles", "bank", "feegrant"}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if len(c.Extractors) == 0 {
		return errors.New("at least one extractor is required")
	}

	for key, ids := range c.CodeIDs {
		if key == "" {
			return errors.New("code_ids: empty key")
		}
		if len(ids) == 0 {
			return fmt.Errorf("code_ids: key %s has no ids", key)
		}
		for _, id := range ids {
			if id == 0 {
				return fmt.Errorf("code_ids: key %s: code id 0 is invalid", key)
			}
		}
	}

	seen := map[string]struct{}{}
	for _, x := range c.Extractors {
		if _, dup := seen[x.Type]; dup {
			return fmt.Errorf("duplicate extractor type: %s", x.Type)
		}
		seen[x.Type] = struct{}{}
		if err := x.Validate(); err != nil {
			return fmt.Errorf("extractor %s: %w", x.Type, err)
		}
	}

	for _, ev := range c.Listener.Events {
		switch ev {
		case "NewBlock", "Tx":
		default:
			return fmt.Errorf("listener: unsupported event type %s", ev)
		}
	}

	return nil
}

// EventTypes returns the subscription list with defaults applied.
func (c *ListenerConfig) EventTypes() []string {
	if len(c.Events) == 0 {
		return []string{"NewBlock", "Tx"}
	}
	return c.Events
}

func (n *NodeConfig) Validate() error {
	if n.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if n.LCDURL == "" {
		return errors.New("lcd_url is required")
	}
	if n.WSURL == "" {
		return errors.New("ws_url is required")
	}
	return nil
}

func (x *Extractor) Validate() error {
	if x.Type == "" {
		return errors.New("type is required")
	}
	known := false
	for _, t := range KnownExtractorTypes {
		if x.Type == t {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unsupported type %s", x.Type)
	}
	if x.Bank != nil && x.Type != "bank" {
		return errors.New("bank filters only apply to the bank extractor")
	}
	if x.FeeGrant != nil && x.Type != "feegrant" {
		return errors.New("feegrant filters only apply to the feegrant extractor")
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
