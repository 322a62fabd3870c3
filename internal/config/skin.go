package config

import (
	"fmt"
	"os"
	"path"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-skin/internal/envelope"
)

var validate = validator.New()

// SkinConfig is the static configuration the generator writes next to the
// site: navigation, broker and rendering settings.
type SkinConfig struct {
	// DocumentURL is where the top-level page is loaded from. A file: URL
	// means the site is opened from the local filesystem.
	DocumentURL   string `yaml:"document_url" validate:"required"`
	TrustedOrigin bool   `yaml:"trusted_origin"`

	PagesDir string `yaml:"pages_dir"`
	DataDir  string `yaml:"data_dir"`
	LangDir  string `yaml:"lang_dir"`

	Landing        string `yaml:"landing"`
	DiagnosticPage string `yaml:"diagnostic_page"`
	NavbarHeight   int    `yaml:"navbar_height" validate:"gte=0"`

	DefaultLanguage string `yaml:"default_language" validate:"required"`
	DefaultTheme    string `yaml:"default_theme" validate:"oneof=dark light"`
	LogLevelKey     string `yaml:"log_level_key" validate:"required"`

	Navigation []NavEntry `yaml:"navigation" validate:"dive"`

	// Header names the observation shown in the page header.
	Header         string `yaml:"header"`
	TimestampField string `yaml:"timestamp_field" validate:"required"`

	HeaderNodeID      string `yaml:"header_node_id"`
	LastUpdatedNodeID string `yaml:"last_updated_node_id"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

// NavEntry is one navigation bar entry, in declared order.
type NavEntry struct {
	Name    string `yaml:"name" validate:"required"`
	Enabled bool   `yaml:"enabled"`
	Primary bool   `yaml:"primary"`

	// AddQueryString appends a cache-busting query when the entry is
	// opened.
	AddQueryString bool `yaml:"add_query_string"`
}

// MQTTConfig mirrors the broker connection options of the skin.
type MQTTConfig struct {
	Enable            bool   `yaml:"enable"`
	Host              string `yaml:"host" validate:"required_if=Enable true"`
	Port              int    `yaml:"port" validate:"min=1,max=65535"`
	Path              string `yaml:"path"`
	Timeout           int    `yaml:"timeout" validate:"gte=0"`
	KeepAliveInterval int    `yaml:"keep_alive_interval" validate:"gte=0"`
	CleanSession      bool   `yaml:"clean_session"`
	UseSSL            bool   `yaml:"use_ssl"`
	Reconnect         bool   `yaml:"reconnect"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`

	// Disconnect closes the connection this many seconds after connecting;
	// zero keeps it open.
	Disconnect int `yaml:"disconnect" validate:"gte=0"`

	Topics map[string]TopicConfig `yaml:"topics" validate:"dive"`
}

// TopicConfig holds the subscription QoS and the wire field renames of a
// topic (wire field name to observation name).
type TopicConfig struct {
	QoS    byte              `yaml:"qos" validate:"lte=2"`
	Fields map[string]string `yaml:"fields"`
}

// LoadSkin reads and validates a skin file.
func LoadSkin(p string) (*SkinConfig, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read skin config: %w", err)
	}
	return ParseSkin(data)
}

// ParseSkin parses skin YAML, applies defaults and validates.
func ParseSkin(data []byte) (*SkinConfig, error) {
	skin := DefaultSkin()
	if err := yaml.Unmarshal(data, skin); err != nil {
		return nil, fmt.Errorf("failed to parse skin config: %w", err)
	}
	if err := skin.Validate(); err != nil {
		return nil, fmt.Errorf("invalid skin config: %w", err)
	}
	return skin, nil
}

// DefaultSkin returns a skin with every default filled in.
func DefaultSkin() *SkinConfig {
	return &SkinConfig{
		PagesDir:        "pages",
		DataDir:         "data",
		LangDir:         "lang",
		DefaultLanguage: "en",
		DefaultTheme:    envelope.ThemeLight,
		LogLevelKey:     "logLevel",
		TimestampField:  "dateTime",

		HeaderNodeID:      "header",
		LastUpdatedNodeID: "updateDate",
		MQTT: MQTTConfig{
			Port:              9001,
			Path:              "/mqtt",
			Timeout:           30,
			KeepAliveInterval: 60,
			CleanSession:      true,
			Reconnect:         true,
		},
	}
}

// Validate checks struct rules and the cross-field ones validator cannot
// express.
func (s *SkinConfig) Validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	if err := s.OriginPolicy().Validate(); err != nil {
		return err
	}
	names := make(map[string]bool, len(s.Navigation))
	for _, e := range s.Navigation {
		if names[e.Name] {
			return fmt.Errorf("navigation entry %q declared twice", e.Name)
		}
		names[e.Name] = true
	}
	if s.Landing != "" && !names[s.Landing] {
		return fmt.Errorf("landing %q is not a navigation entry", s.Landing)
	}
	return nil
}

// OriginPolicy returns the envelope origin policy of the top document.
func (s *SkinConfig) OriginPolicy() envelope.OriginPolicy {
	return envelope.OriginPolicy{DocumentURL: s.DocumentURL, Trusted: s.TrustedOrigin}
}

// Entry returns the navigation entry called name.
func (s *SkinConfig) Entry(name string) (NavEntry, bool) {
	for _, e := range s.Navigation {
		if e.Name == name {
			return e, true
		}
	}
	return NavEntry{}, false
}

// Address returns the frame address of a navigation entry.
func (s *SkinConfig) Address(name string) string {
	return path.Join(s.PagesDir, name+".html")
}

// DiagnosticAddress returns the address that reveals broker controls, or
// "" when no diagnostic page is configured.
func (s *SkinConfig) DiagnosticAddress() string {
	if s.DiagnosticPage == "" {
		return ""
	}
	return s.Address(s.DiagnosticPage)
}

// FieldMap returns topic -> wire field -> observation name.
func (m MQTTConfig) FieldMap() map[string]map[string]string {
	out := make(map[string]map[string]string, len(m.Topics))
	for topic, tc := range m.Topics {
		if len(tc.Fields) == 0 {
			continue
		}
		fields := make(map[string]string, len(tc.Fields))
		for wire, name := range tc.Fields {
			fields[wire] = name
		}
		out[topic] = fields
	}
	return out
}
