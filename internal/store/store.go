// Package store is the session state store shared by the top-level and
// content contexts. It is the only state that survives a content reload.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNotFound is returned when a key has no value.
	ErrNotFound = errors.New("no value for key")
)

// Keys written by the runtime.
const (
	KeyCurrentPage      = "currentPage"
	KeyAddQueryString   = "addQueryString"
	KeyCurrentLanguage  = "currentLanguage"
	KeyCurrentSelection = "currentSelection"
	KeyTheme            = "theme"
	KeyMQTTConnected    = "MQTTConnected"
	KeyDateTime         = "dateTime"

	// DefaultLogLevelKey is used when the skin does not name its own.
	DefaultLogLevelKey = "logLevel"
)

// Store is a flat string-keyed store. Writers replace whole keys; there is
// no merge or compare-and-swap, because the contexts sharing it have no
// common lock.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
	Keys() []string
	Clear() error
}

// GetJSON decodes the value under key into v. It reports false when the key
// is absent.
func GetJSON(s Store, key string, v any) (bool, error) {
	raw, ok := s.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Require returns the value under key, or ErrNotFound.
func Require(s Store, key string) (string, error) {
	v, ok := s.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

// SetJSON serializes v and stores it under key.
func SetJSON(s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(key, string(data))
}

// GetBool reads a flag written by SetBool. Absent or unparsable values are
// false.
func GetBool(s Store, key string) bool {
	raw, ok := s.Get(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(raw)
	return err == nil && b
}

func SetBool(s Store, key string, v bool) error {
	return s.Set(key, strconv.FormatBool(v))
}

// Dump copies the whole store, for diagnostics.
func Dump(s Store) map[string]string {
	out := make(map[string]string)
	for _, k := range s.Keys() {
		if v, ok := s.Get(k); ok {
			out[k] = v
		}
	}
	return out
}
