// Package i18n holds the translation catalog deposited by the static
// generator and the locale-aware number and date formatting used when
// rendering observations.
package i18n

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/de"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/es"
	"github.com/go-playground/locales/fr"
	"github.com/go-playground/locales/it"
	"github.com/go-playground/locales/nl"
	ut "github.com/go-playground/universal-translator"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedLanguage is returned for a language without locale data.
var ErrUnsupportedLanguage = errors.New("unsupported language")

var supported = map[string]func() locales.Translator{
	"en": en.New,
	"de": de.New,
	"es": es.New,
	"fr": fr.New,
	"it": it.New,
	"nl": nl.New,
}

// Catalog answers catalog[language][labelID].
type Catalog struct {
	uni      *ut.UniversalTranslator
	fallback string

	mu     sync.RWMutex
	loaded map[string]bool
}

// NewCatalog creates an empty catalog that falls back to lang.
func NewCatalog(fallback string) (*Catalog, error) {
	newFallback, ok := supported[fallback]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, fallback)
	}
	all := make([]locales.Translator, 0, len(supported))
	for _, newLocale := range supported {
		all = append(all, newLocale())
	}
	return &Catalog{
		uni:      ut.New(newFallback(), all...),
		fallback: fallback,
		loaded:   make(map[string]bool),
	}, nil
}

// Fallback returns the fallback language.
func (c *Catalog) Fallback() string { return c.fallback }

// Add registers one label text, replacing any earlier text.
func (c *Catalog) Add(lang, labelID, text string) error {
	trans, found := c.uni.GetTranslator(lang)
	if !found {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	if err := trans.Add(labelID, text, true); err != nil {
		return fmt.Errorf("add %s/%s: %w", lang, labelID, err)
	}
	c.mu.Lock()
	c.loaded[lang] = true
	c.mu.Unlock()
	return nil
}

// LoadDir reads every <lang>.yaml file of dir; each is a flat map of label
// id to text.
func (c *Catalog) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	for _, file := range files {
		lang := strings.TrimSuffix(filepath.Base(file), ".yaml")
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read catalog %s: %w", file, err)
		}
		var labels map[string]string
		if err := yaml.Unmarshal(data, &labels); err != nil {
			return fmt.Errorf("failed to parse catalog %s: %w", file, err)
		}
		for id, text := range labels {
			if err := c.Add(lang, id, text); err != nil {
				return err
			}
		}
	}
	return nil
}

// Languages lists languages that have at least one label.
func (c *Catalog) Languages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.loaded))
	for lang := range c.loaded {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the text for labelID in lang, then in the fallback
// language, then labelID itself.
func (c *Catalog) Lookup(lang, labelID string) string {
	if trans, found := c.uni.GetTranslator(lang); found {
		if text, err := trans.T(labelID); err == nil {
			return text
		}
	}
	if trans, found := c.uni.GetTranslator(c.fallback); found {
		if text, err := trans.T(labelID); err == nil {
			return text
		}
	}
	return labelID
}

// Has reports whether lang has its own text for labelID.
func (c *Catalog) Has(lang, labelID string) bool {
	trans, found := c.uni.GetTranslator(lang)
	if !found {
		return false
	}
	_, err := trans.T(labelID)
	return err == nil
}
