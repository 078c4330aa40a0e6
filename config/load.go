package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

// reservedCoresKeys are Cores struct fields decoded normally; every
// other key directly under [cores] is a backend subtable.
var reservedCoresKeys = map[string]bool{
	"enabled_cores": true,
	"default_core":  true,
}

// Load parses TOML source into a validated Config. Unknown top-level
// keys are logged as a warning via log (or the standard logger if
// nil); a type mismatch anywhere returns a *ValidationError.
func Load(data []byte, log logrus.FieldLogger) (*Config, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, &ValidationError{Field: "<root>", Reason: err.Error()}
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Field: "<root>", Reason: err.Error()}
	}

	backends, err := extractBackends(raw)
	if err != nil {
		return nil, err
	}
	cfg.Cores.Backends = backends

	warnUnknownTopLevelKeys(raw, log)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// extractBackends re-marshals every non-reserved key of [cores] back
// to TOML and decodes it into a BackendConfig, since go-toml/v2 has no
// direct way to decode an arbitrary-named subtable into a typed map
// alongside fixed sibling fields.
func extractBackends(raw map[string]any) (map[string]BackendConfig, error) {
	out := make(map[string]BackendConfig)

	coresRaw, ok := raw["cores"].(map[string]any)
	if !ok {
		return out, nil
	}

	for key, val := range coresRaw {
		if reservedCoresKeys[key] {
			continue
		}
		table, ok := val.(map[string]any)
		if !ok {
			continue
		}

		encoded, err := toml.Marshal(table)
		if err != nil {
			return nil, &ValidationError{Field: "cores." + key, Reason: err.Error()}
		}
		var bc BackendConfig
		if err := toml.Unmarshal(encoded, &bc); err != nil {
			return nil, &ValidationError{Field: "cores." + key, Reason: err.Error()}
		}
		bc.Extra = table
		out[key] = bc
	}
	return out, nil
}

var knownTopLevel = map[string]bool{
	"general": true, "cores": true, "pools": true,
	"devices": true, "api": true, "monitoring": true,
}

func warnUnknownTopLevelKeys(raw map[string]any, log logrus.FieldLogger) {
	for key := range raw {
		if !knownTopLevel[key] {
			log.WithField("key", key).Warn("config: unrecognized top-level section ignored")
		}
	}
}

// LoadFile is a convenience wrapper; callers that already have the
// bytes (e.g. read via a CLI flag) should call Load directly.
func LoadFile(path string, readFile func(string) ([]byte, error), log logrus.FieldLogger) (*Config, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Load(data, log)
}
