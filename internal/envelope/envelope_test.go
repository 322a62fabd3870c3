package envelope

import (
	"errors"
	"reflect"
	"testing"
)

func sampleEnvelopes() []Envelope {
	return []Envelope{
		NewMQTT("weather/loop", map[string]any{
			"outTemp":  72.5,
			"dateTime": 1700000000.0,
			"windDir":  "NNE",
			"nested":   map[string]any{"a": 1.5},
		}, 1, true),
		NewResize(1024, 700),
		NewResize(0, 500),
		NewContentResize(1830),
		NewScroll(56, 240),
		NewLoaded(),
		NewLang("de"),
		NewTheme(ThemeDark),
		NewSetLogLevel("debug"),
		NewGetLogLevel(),
		NewRefreshData(),
		NewLog("page loaded"),
		NewJasShow(map[string]any{"node": "outTemp", "count": 3.0}),
	}
}

// TestRoundTripAllKinds clones every kind through the in-process transport
// and through the JSON wire form and expects an identical payload back.
func TestRoundTripAllKinds(t *testing.T) {
	seen := make(map[Kind]bool)
	for _, env := range sampleEnvelopes() {
		seen[env.Kind] = true

		got, err := Clone(env)
		if err != nil {
			t.Fatalf("clone %s: %v", env.Kind, err)
		}
		if !reflect.DeepEqual(got, env) {
			t.Errorf("clone %s: got %#v, want %#v", env.Kind, got, env)
		}

		data, err := MarshalJSON(env)
		if err != nil {
			t.Fatalf("marshal json %s: %v", env.Kind, err)
		}
		parsed, err := ParseJSON(data)
		if err != nil {
			t.Fatalf("parse json %s: %v", env.Kind, err)
		}
		if !reflect.DeepEqual(parsed, env) {
			t.Errorf("json %s: got %#v, want %#v", env.Kind, parsed, env)
		}
	}

	for _, k := range Kinds {
		if !seen[k] {
			t.Errorf("kind %s not covered", k)
		}
	}
}

func TestCloneDoesNotShareMemory(t *testing.T) {
	payload := map[string]any{"outTemp": 70.0}
	env := NewMQTT("weather/loop", payload, 0, false)

	got, err := Clone(env)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	payload["outTemp"] = 99.0

	msg := got.Message.(MQTTMessage)
	if msg.Payload["outTemp"] != 70.0 {
		t.Fatalf("receiver saw sender mutation: %v", msg.Payload["outTemp"])
	}
}

func TestWireFieldNames(t *testing.T) {
	tests := []struct {
		env  Envelope
		want string
	}{
		{NewScroll(56, 10), `{"kind":"scroll","message":{"topOffset":56,"currentScroll":10}}`},
		{NewContentResize(900), `{"kind":"resize","message":{"height":900}}`},
		{NewResize(800, 600), `{"kind":"resize","message":{"width":800,"height":600}}`},
		{NewResize(0, 600), `{"kind":"resize","message":{"width":0,"height":600}}`},
		{NewSetLogLevel("warn"), `{"kind":"setLogLevel","message":{"logLevel":"warn"}}`},
		{NewTheme("light"), `{"kind":"setTheme","message":"light"}`},
		{NewLoaded(), `{"kind":"loaded","message":{}}`},
	}
	for _, tt := range tests {
		data, err := MarshalJSON(tt.env)
		if err != nil {
			t.Fatalf("marshal %s: %v", tt.env.Kind, err)
		}
		if string(data) != tt.want {
			t.Errorf("%s: got %s, want %s", tt.env.Kind, data, tt.want)
		}
	}
}

func TestParseJSONUnknownKind(t *testing.T) {
	for _, raw := range []string{
		`{"kind":"teleport","message":{}}`,
		`{"message":{"height":3}}`,
	} {
		_, err := ParseJSON([]byte(raw))
		if !errors.Is(err, ErrUnknownKind) {
			t.Errorf("%s: expected ErrUnknownKind, got %v", raw, err)
		}
	}
}

func TestParseJSONInvalidPayload(t *testing.T) {
	for _, raw := range []string{
		`{"kind":"setTheme","message":"sepia"}`,
		`{"kind":"mqtt","message":{"payload":{}}}`,
		`{"kind":"resize","message":"tall"}`,
		`{"kind":"setLogLevel","message":{"logLevel":"verbose"}}`,
	} {
		_, err := ParseJSON([]byte(raw))
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("%s: expected ErrInvalidPayload, got %v", raw, err)
		}
	}
}

func TestParseJSONMissingMessage(t *testing.T) {
	env, err := ParseJSON([]byte(`{"kind":"refreshData"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Message != (Empty{}) {
		t.Fatalf("expected empty message, got %#v", env.Message)
	}
}

func TestOriginPolicy(t *testing.T) {
	file := OriginPolicy{DocumentURL: "file:///home/wx/jas/index.html", Trusted: true}
	if got := file.Target(); got != Wildcard {
		t.Errorf("file target: got %q", got)
	}
	if !file.Accept("https://elsewhere.example") {
		t.Errorf("trusted policy should accept any origin")
	}

	web := OriginPolicy{DocumentURL: "https://wx.example:8443/jas/index.html"}
	if got := web.Target(); got != "https://wx.example:8443" {
		t.Errorf("web target: got %q", got)
	}
	if web.Accept("https://evil.example") {
		t.Errorf("untrusted policy accepted foreign origin")
	}
	if !web.Accept("https://wx.example:8443") {
		t.Errorf("untrusted policy rejected own origin")
	}
	if !web.Matches(Wildcard) || web.Matches("https://other.example") {
		t.Errorf("unexpected target matching")
	}

	if err := (OriginPolicy{DocumentURL: "file:///x/index.html"}).Validate(); !errors.Is(err, ErrUntrustedFileOrigin) {
		t.Errorf("expected ErrUntrustedFileOrigin, got %v", err)
	}
	if err := web.Validate(); err != nil {
		t.Errorf("web policy: %v", err)
	}
}
