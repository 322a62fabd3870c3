// Package envelope defines the messages exchanged between the top-level
// context and an embedded content context.
//
// Every cross-context message is a single Envelope: a Kind drawn from a
// closed set and a Message whose shape is fixed per kind. Receivers ignore
// envelopes whose kind they do not recognize.
package envelope

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind identifies the payload shape carried by an Envelope.
type Kind string

const (
	KindMQTT        Kind = "mqtt"
	KindResize      Kind = "resize"
	KindScroll      Kind = "scroll"
	KindLoaded      Kind = "loaded"
	KindLang        Kind = "lang"
	KindSetTheme    Kind = "setTheme"
	KindSetLogLevel Kind = "setLogLevel"
	KindGetLogLevel Kind = "getLogLevel"
	KindRefreshData Kind = "refreshData"
	KindLog         Kind = "log"
	KindJasShow     Kind = "jasShow"
)

// Kinds lists every supported kind in protocol table order.
var Kinds = []Kind{
	KindMQTT, KindResize, KindScroll, KindLoaded, KindLang, KindSetTheme,
	KindSetLogLevel, KindGetLogLevel, KindRefreshData, KindLog, KindJasShow,
}

// Known reports whether k is part of the protocol.
func (k Kind) Known() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

var (
	// ErrUnknownKind is returned when an envelope has a missing or
	// unrecognized kind. Receivers drop such envelopes silently.
	ErrUnknownKind = errors.New("unknown envelope kind")

	// ErrInvalidPayload is returned when a message does not match the
	// schema of its kind.
	ErrInvalidPayload = errors.New("invalid envelope payload")
)

var validate = validator.New()

// Envelope is the only structure that crosses a context boundary.
type Envelope struct {
	Kind    Kind `json:"kind"`
	Message any  `json:"message"`
}

// MQTTMessage carries one broker message to the active content.
type MQTTMessage struct {
	Topic   string         `json:"topic" validate:"required"`
	Payload map[string]any `json:"payload"`
	QoS     byte           `json:"qos" validate:"lte=2"`
	Retain  bool           `json:"retain"`
}

// ResizeMessage is the usable viewport the top sends to content.
type ResizeMessage struct {
	Width  int `json:"width" validate:"gte=0"`
	Height int `json:"height" validate:"gte=0"`
}

// ContentResizeMessage is the height content reports to the top.
type ContentResizeMessage struct {
	Height int `json:"height" validate:"gte=0"`
}

// resizeWire tells the two resize directions apart by the width field.
type resizeWire struct {
	Width  *int `json:"width"`
	Height int  `json:"height"`
}

// ScrollMessage tells content where the top window is scrolled to.
type ScrollMessage struct {
	TopOffset     int `json:"topOffset" validate:"gte=0"`
	CurrentScroll int `json:"currentScroll" validate:"gte=0"`
}

// LogLevelMessage sets the content log level.
type LogLevelMessage struct {
	LogLevel string `json:"logLevel" validate:"required,oneof=debug info warn error"`
}

// Empty is the payload of kinds that carry no data.
type Empty struct{}

// Themes accepted by KindSetTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

func NewMQTT(topic string, payload map[string]any, qos byte, retain bool) Envelope {
	return Envelope{Kind: KindMQTT, Message: MQTTMessage{Topic: topic, Payload: payload, QoS: qos, Retain: retain}}
}

// NewResize builds the top to content resize envelope.
func NewResize(width, height int) Envelope {
	return Envelope{Kind: KindResize, Message: ResizeMessage{Width: width, Height: height}}
}

// NewContentResize builds the content to top resize envelope.
func NewContentResize(height int) Envelope {
	return Envelope{Kind: KindResize, Message: ContentResizeMessage{Height: height}}
}

func NewScroll(topOffset, currentScroll int) Envelope {
	return Envelope{Kind: KindScroll, Message: ScrollMessage{TopOffset: topOffset, CurrentScroll: currentScroll}}
}

func NewLoaded() Envelope { return Envelope{Kind: KindLoaded, Message: Empty{}} }

func NewLang(lang string) Envelope { return Envelope{Kind: KindLang, Message: lang} }

func NewTheme(theme string) Envelope { return Envelope{Kind: KindSetTheme, Message: theme} }

func NewSetLogLevel(level string) Envelope {
	return Envelope{Kind: KindSetLogLevel, Message: LogLevelMessage{LogLevel: level}}
}

func NewGetLogLevel() Envelope { return Envelope{Kind: KindGetLogLevel, Message: Empty{}} }

func NewRefreshData() Envelope { return Envelope{Kind: KindRefreshData, Message: Empty{}} }

func NewLog(v any) Envelope { return Envelope{Kind: KindLog, Message: v} }

func NewJasShow(v any) Envelope { return Envelope{Kind: KindJasShow, Message: v} }

// Validate checks the envelope kind and the message schema.
func (e Envelope) Validate() error {
	if !e.Kind.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	switch e.Kind {
	case KindMQTT, KindResize, KindScroll, KindSetLogLevel:
		if err := validate.Struct(e.Message); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Kind, err)
		}
	case KindLang:
		lang, ok := e.Message.(string)
		if !ok {
			return fmt.Errorf("%w: %s: message must be a string", ErrInvalidPayload, e.Kind)
		}
		if err := validate.Var(lang, "required,max=16"); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Kind, err)
		}
	case KindSetTheme:
		theme, ok := e.Message.(string)
		if !ok {
			return fmt.Errorf("%w: %s: message must be a string", ErrInvalidPayload, e.Kind)
		}
		if err := validate.Var(theme, "required,oneof=dark light"); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Kind, err)
		}
	}
	return nil
}

// decodeMessage turns the raw message bytes into the typed payload of kind.
// The same table serves both the JSON and the CBOR wire form.
func decodeMessage(kind Kind, raw []byte, unmarshal func([]byte, any) error) (any, error) {
	empty := len(raw) == 0 || string(raw) == "null" || (len(raw) == 1 && raw[0] == 0xf6)

	var msg any
	switch kind {
	case KindMQTT:
		var m MQTTMessage
		if err := decodeInto(empty, raw, unmarshal, &m); err != nil {
			return nil, err
		}
		msg = m
	case KindResize:
		var m resizeWire
		if err := decodeInto(empty, raw, unmarshal, &m); err != nil {
			return nil, err
		}
		if m.Width != nil {
			msg = ResizeMessage{Width: *m.Width, Height: m.Height}
		} else {
			msg = ContentResizeMessage{Height: m.Height}
		}
	case KindScroll:
		var m ScrollMessage
		if err := decodeInto(empty, raw, unmarshal, &m); err != nil {
			return nil, err
		}
		msg = m
	case KindSetLogLevel:
		var m LogLevelMessage
		if err := decodeInto(empty, raw, unmarshal, &m); err != nil {
			return nil, err
		}
		msg = m
	case KindLang, KindSetTheme:
		var s string
		if err := decodeInto(empty, raw, unmarshal, &s); err != nil {
			return nil, err
		}
		msg = s
	case KindLoaded, KindGetLogLevel, KindRefreshData:
		msg = Empty{}
	case KindLog, KindJasShow:
		if empty {
			return nil, nil
		}
		var v any
		if err := unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, kind, err)
		}
		msg = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if err := (Envelope{Kind: kind, Message: msg}).Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeInto(empty bool, raw []byte, unmarshal func([]byte, any) error, v any) error {
	if empty {
		return nil
	}
	if err := unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
