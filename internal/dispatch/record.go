package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/i474232898/weather-skin/internal/i18n"
)

// ObservationRecord is one named measurement as cached in the session
// store. Value is a string or a number; Suffix names another record whose
// current value is appended when rendering.
type ObservationRecord struct {
	Name        string  `json:"name"`
	Label       string  `json:"label"`
	Value       any     `json:"value"`
	Unit        string  `json:"unit"`
	MaxDecimals *int    `json:"maxDecimals"`
	ModalLabel  *string `json:"modalLabel"`
	Suffix      string  `json:"suffix,omitempty"`
}

// Decimals returns the configured fraction digits, or -1 for "as many as
// the value has".
func (r ObservationRecord) Decimals() int {
	if r.MaxDecimals == nil {
		return -1
	}
	return *r.MaxDecimals
}

// TopicFieldMap maps a broker topic to its wire field renames. Fields
// without a rename use the observation name on the wire.
type TopicFieldMap struct {
	toName map[string]map[string]string
	toWire map[string]map[string]string
}

// NewTopicFieldMap builds the map from topic -> wire field -> observation
// name. The inverse is computed once here.
func NewTopicFieldMap(fields map[string]map[string]string) *TopicFieldMap {
	m := &TopicFieldMap{
		toName: make(map[string]map[string]string, len(fields)),
		toWire: make(map[string]map[string]string, len(fields)),
	}
	for topic, renames := range fields {
		names := make(map[string]string, len(renames))
		wires := make(map[string]string, len(renames))
		for wire, name := range renames {
			names[wire] = name
			wires[name] = wire
		}
		m.toName[topic] = names
		m.toWire[topic] = wires
	}
	return m
}

// WireField returns the payload key carrying observation name on topic.
func (m *TopicFieldMap) WireField(topic, name string) string {
	if m != nil {
		if wire, ok := m.toWire[topic][name]; ok {
			return wire
		}
	}
	return name
}

// Name returns the observation name for a payload key on topic.
func (m *TopicFieldMap) Name(topic, wire string) string {
	if m != nil {
		if name, ok := m.toName[topic][wire]; ok {
			return name
		}
	}
	return wire
}

// Topics lists the topics with renames.
func (m *TopicFieldMap) Topics() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.toName))
	for topic := range m.toName {
		out = append(out, topic)
	}
	return out
}

// numeric reports the float value of v when v is a number or a string that
// parses as one.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

// FormatValue renders a value with the locale number format when it is
// numeric and as-is otherwise.
func FormatValue(f *i18n.Formatter, v any, decimals int) string {
	if v == nil {
		return ""
	}
	if n, ok := numeric(v); ok {
		return f.Number(n, decimals)
	}
	return fmt.Sprint(v)
}
