package i18n

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCatalogLookupFallbacks(t *testing.T) {
	c, err := NewCatalog("en")
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if err := c.Add("en", "outTemp", "Outside Temperature"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add("de", "outTemp", "Außentemperatur"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add("en", "barometer", "Barometer"); err != nil {
		t.Fatalf("add: %v", err)
	}

	tests := []struct {
		lang, id, want string
	}{
		{"de", "outTemp", "Außentemperatur"},
		{"de", "barometer", "Barometer"},
		{"en", "outTemp", "Outside Temperature"},
		{"xx", "outTemp", "Outside Temperature"},
		{"de", "unknownLabel", "unknownLabel"},
	}
	for _, tt := range tests {
		if got := c.Lookup(tt.lang, tt.id); got != tt.want {
			t.Errorf("Lookup(%s, %s) = %q, want %q", tt.lang, tt.id, got, tt.want)
		}
	}

	if err := c.Add("tlh", "outTemp", "?"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
	if got := c.Languages(); strings.Join(got, ",") != "de,en" {
		t.Errorf("unexpected languages %v", got)
	}
}

func TestCatalogLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fr.yaml"), []byte("outTemp: Température extérieure\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewCatalog("en")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.LoadDir(dir); err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if !c.Has("fr", "outTemp") || c.Lookup("fr", "outTemp") != "Température extérieure" {
		t.Fatalf("catalog not loaded: %q", c.Lookup("fr", "outTemp"))
	}
}

func TestFormatterNumber(t *testing.T) {
	f := NewFormatter("en", nil)
	tests := []struct {
		v        float64
		decimals int
		want     string
	}{
		{72.5, 1, "72.5"},
		{72.46, 1, "72.5"},
		{30.1, 3, "30.100"},
		{12.25, -1, "12.25"},
		{7, -1, "7"},
	}
	for _, tt := range tests {
		if got := f.Number(tt.v, tt.decimals); got != tt.want {
			t.Errorf("Number(%v, %d) = %q, want %q", tt.v, tt.decimals, got, tt.want)
		}
	}
}

func TestFormatterDateTime(t *testing.T) {
	f := NewFormatter("en", time.UTC)
	got := f.DateTime(time.Unix(1700000000, 0))
	if !strings.HasPrefix(got, f.Date(time.Unix(1700000000, 0))) || !strings.Contains(got, "2023") {
		t.Fatalf("unexpected date time %q", got)
	}
	if NewFormatter("zz", nil).Locale() != "en" {
		t.Fatal("unknown language should use the English locale")
	}
}
