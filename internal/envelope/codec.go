package envelope

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// The in-process transport between contexts uses CBOR. Encoding and then
// decoding every envelope gives the receiver a private copy of the message,
// so no memory is ever shared across a context boundary. JSON is kept for
// anything that leaves the process.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("envelope: CBOR encoder initialization failed: " + err.Error())
	}

	// Broker payloads are decoded into any; they must come back as
	// map[string]any to look the same as their JSON form.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("envelope: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborWire struct {
	Kind    Kind            `json:"kind"`
	Message cbor.RawMessage `json:"message"`
}

type jsonWire struct {
	Kind    Kind            `json:"kind"`
	Message json.RawMessage `json:"message"`
}

// Marshal encodes e for in-process delivery.
func Marshal(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return encMode.Marshal(e)
}

// Unmarshal decodes an envelope produced by Marshal.
func Unmarshal(data []byte) (Envelope, error) {
	var w cborWire
	if err := decMode.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	msg, err := decodeMessage(w.Kind, w.Message, decMode.Unmarshal)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: w.Kind, Message: msg}, nil
}

// Clone returns a deep copy of e as the receiving context would see it.
func Clone(e Envelope) (Envelope, error) {
	data, err := Marshal(e)
	if err != nil {
		return Envelope{}, err
	}
	return Unmarshal(data)
}

// MarshalJSON encodes e in the interoperable wire form
// {"kind": ..., "message": ...}.
func MarshalJSON(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// ParseJSON decodes the interoperable wire form, validating the message
// against the schema of its kind.
func ParseJSON(data []byte) (Envelope, error) {
	var w jsonWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	msg, err := decodeMessage(w.Kind, w.Message, json.Unmarshal)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: w.Kind, Message: msg}, nil
}
