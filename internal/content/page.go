package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/i474232898/weather-skin/internal/dispatch"
	"github.com/i474232898/weather-skin/internal/geometry"
)

var ErrPageNotFound = errors.New("page data not found")

// PageData is what the generator writes for one page.
type PageData struct {
	// Observations have nodes on the page, in display order.
	Observations []dispatch.ObservationRecord `json:"observations"`

	// References are cached for header and suffix lookups but not shown.
	References []dispatch.ObservationRecord `json:"references"`

	// Layout overrides the default row and chart sizes.
	Layout   *geometry.Layout `json:"layout"`
	Forecast bool             `json:"forecast"`

	// Selections are the periods an archive page can show; the first is
	// the default.
	Selections []string `json:"selections"`
}

// PageSource yields the page data of a page name.
type PageSource interface {
	Load(ctx context.Context, page string) (PageData, error)
}

// ParsePageData decodes page data; comments and trailing commas are
// allowed.
func ParsePageData(data []byte) (PageData, error) {
	var pd PageData
	if err := json.Unmarshal(jsonc.ToJSON(data), &pd); err != nil {
		return PageData{}, fmt.Errorf("parse page data: %w", err)
	}
	for i, rec := range pd.Observations {
		if rec.Name == "" {
			return PageData{}, fmt.Errorf("parse page data: observation %d has no name", i)
		}
	}
	return pd, nil
}

// FileSource reads <Dir>/<page>.json.
type FileSource struct {
	Dir string
}

func (s FileSource) Load(ctx context.Context, page string) (PageData, error) {
	if err := ctx.Err(); err != nil {
		return PageData{}, err
	}
	p := filepath.Join(s.Dir, page+".json")
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return PageData{}, fmt.Errorf("%w: %s", ErrPageNotFound, page)
	}
	if err != nil {
		return PageData{}, fmt.Errorf("read page data: %w", err)
	}
	return ParsePageData(data)
}

// StaticSource serves page data embedded at build time, keyed by page name.
type StaticSource map[string]string

func (s StaticSource) Load(ctx context.Context, page string) (PageData, error) {
	if err := ctx.Err(); err != nil {
		return PageData{}, err
	}
	raw, ok := s[page]
	if !ok {
		return PageData{}, fmt.Errorf("%w: %s", ErrPageNotFound, page)
	}
	return ParsePageData([]byte(raw))
}

// PageName resolves a frame address such as "pages/day.html?ts=1" to the
// page name "day".
func PageName(src string) string {
	src, _, _ = strings.Cut(src, "?")
	src, _, _ = strings.Cut(src, "#")
	return strings.TrimSuffix(path.Base(src), path.Ext(src))
}
