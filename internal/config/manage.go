package config

import (
	"fmt"
	"strconv"
)

// KeyInfo describes a config key for display purposes. OverriddenBy names
// the environment variable currently overriding the key, if any.
type KeyInfo struct {
	Key          string
	EnvVar       string
	Value        string
	OverriddenBy string
}

// ShowAll returns all non-secret config key/value pairs from cfg.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		name, _ := envValue(s)
		result = append(result, KeyInfo{
			Key:          s.key,
			EnvVar:       s.env,
			Value:        fmt.Sprintf("%v", s.extract(cfg)),
			OverriddenBy: name,
		})
	}
	return result
}

// SetKey validates value against the key's type and writes it to the file
// backend. Secrets are rejected.
func SetKey(key, value string) error {
	b := newPlatformBackend()

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		switch s.typ {
		case kString:
			return b.SetString(key, value)
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		default:
			if _, err := parseValue(s.typ, value); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			return b.SetString(key, value)
		}
	}

	return fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
