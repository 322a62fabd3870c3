// Package dispatch turns broker payloads into targeted updates of the
// content document. Only the nodes of observations present in a payload
// are written; everything else keeps its last rendered state.
package dispatch

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/i474232898/weather-skin/internal/dom"
	"github.com/i474232898/weather-skin/internal/i18n"
	"github.com/i474232898/weather-skin/internal/store"
)

// LabelSuffix is appended to an observation name to form its label node id.
const LabelSuffix = "_label"

// Options configures a Dispatcher.
type Options struct {
	Document *dom.Document
	Store    store.Store
	Fields   *TopicFieldMap
	Catalog  *i18n.Catalog
	Location *time.Location
	Logger   *slog.Logger

	// Header is the observation shown in the header node; empty disables
	// the header step.
	Header       string
	HeaderNodeID string

	// TimestampField is the payload field with the observation time in
	// epoch seconds.
	TimestampField    string
	LastUpdatedNodeID string
}

// Dispatcher owns the observation records of one content context. It is
// not safe for concurrent use; the content loop is its only caller.
type Dispatcher struct {
	opts   Options
	logger *slog.Logger

	lang     string
	format   *i18n.Formatter
	declared []string
	records  map[string]*ObservationRecord
}

func New(opts Options, lang string) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HeaderNodeID == "" {
		opts.HeaderNodeID = "header"
	}
	if opts.TimestampField == "" {
		opts.TimestampField = store.KeyDateTime
	}
	if opts.LastUpdatedNodeID == "" {
		opts.LastUpdatedNodeID = "updateDate"
	}
	return &Dispatcher{
		opts:    opts,
		logger:  opts.Logger.With("component", "dispatch"),
		lang:    lang,
		format:  i18n.NewFormatter(lang, opts.Location),
		records: make(map[string]*ObservationRecord),
	}
}

// Declare registers the observations the current content shows. When the
// session store already holds a record for a name, its value and unit
// replace the page data ones: the cache is newer than the generated page.
// Every merged record is written back so a later reload sees it.
func (d *Dispatcher) Declare(recs ...ObservationRecord) {
	for _, rec := range recs {
		rec := rec
		var cached ObservationRecord
		if ok, err := store.GetJSON(d.opts.Store, rec.Name, &cached); err != nil {
			d.logger.Warn("cached record unreadable", "name", rec.Name, "error", err)
		} else if ok {
			if cached.Value != nil && cached.Value != "" {
				rec.Value = cached.Value
			}
			if cached.Unit != "" {
				rec.Unit = cached.Unit
			}
		}
		if _, seen := d.records[rec.Name]; !seen {
			d.declared = append(d.declared, rec.Name)
		}
		d.records[rec.Name] = &rec
		d.persist(&rec)
	}
}

// Cache stores records that are referenced (as header or suffix) but have
// no nodes of their own on this page.
func (d *Dispatcher) Cache(recs ...ObservationRecord) {
	for _, rec := range recs {
		rec := rec
		if _, ok := d.opts.Store.Get(rec.Name); ok {
			continue
		}
		d.persist(&rec)
	}
}

// Declared lists observation names in declaration order.
func (d *Dispatcher) Declared() []string {
	return append([]string(nil), d.declared...)
}

// Record returns the current record for name, from memory or the store.
func (d *Dispatcher) Record(name string) (ObservationRecord, bool) {
	rec := d.lookup(name)
	if rec == nil {
		return ObservationRecord{}, false
	}
	return *rec, true
}

// Lang returns the language used for labels and formatting.
func (d *Dispatcher) Lang() string { return d.lang }

// SetLanguage switches labels and number formats and re-renders every
// declared observation.
func (d *Dispatcher) SetLanguage(lang string) {
	d.lang = lang
	d.format = i18n.NewFormatter(lang, d.opts.Location)
	d.RenderAll()
}

// Dispatch applies one payload received on topic and returns the names of
// the observations that were updated, header first. Values and referenced
// suffixes are all updated before any node renders, so a value node always
// carries the suffix from the same payload.
func (d *Dispatcher) Dispatch(topic string, payload map[string]any) []string {
	var updated []string

	var header *ObservationRecord
	if name := d.opts.Header; name != "" {
		wire := d.opts.Fields.WireField(topic, name)
		if v, ok := payload[wire]; ok {
			if header = d.lookup(name); header != nil {
				header.Value = v
				if unit, ok := payload[wire+"_unit"].(string); ok {
					header.Unit = unit
				}
				d.persist(header)
				updated = append(updated, name)
			}
		}
	}

	present := make(map[string]bool)
	for _, name := range d.declared {
		v, ok := payload[d.opts.Fields.WireField(topic, name)]
		if !ok {
			continue
		}
		rec := d.records[name]
		rec.Value = v
		d.persist(rec)
		present[name] = true
	}
	d.refreshSuffixes(topic, payload, present, header)

	if header != nil {
		if node := d.opts.Document.ByID(d.opts.HeaderNodeID); node != nil {
			node.SetText(d.valueText(header))
		}
	}
	for _, name := range d.declared {
		if !present[name] {
			continue
		}
		d.render(d.records[name])
		updated = append(updated, name)
	}

	if v, ok := payload[d.opts.Fields.WireField(topic, d.opts.TimestampField)]; ok {
		d.updateTimestamp(v)
	}

	d.logger.Debug("payload dispatched", "topic", topic, "fields", len(payload), "updated", len(updated))
	return updated
}

// refreshSuffixes stores the payload value of every suffix referenced by
// the header or a declared observation. Declared suffixes were already
// updated with the other declared names.
func (d *Dispatcher) refreshSuffixes(topic string, payload map[string]any, present map[string]bool, header *ObservationRecord) {
	owners := make([]*ObservationRecord, 0, len(d.declared)+1)
	if header != nil {
		owners = append(owners, header)
	}
	for _, name := range d.declared {
		owners = append(owners, d.records[name])
	}

	done := make(map[string]bool)
	for _, owner := range owners {
		name := owner.Suffix
		if name == "" || name == owner.Name || present[name] || done[name] {
			continue
		}
		v, ok := payload[d.opts.Fields.WireField(topic, name)]
		if !ok {
			continue
		}
		suffix := d.lookup(name)
		if suffix == nil {
			suffix = &ObservationRecord{Name: name}
		}
		suffix.Value = v
		d.persist(suffix)
		done[name] = true
	}
}

// Render re-renders the label and value nodes of one declared observation.
func (d *Dispatcher) Render(name string) {
	if rec, ok := d.records[name]; ok {
		d.render(rec)
	}
}

// RenderAll renders every declared observation, the header and the last
// updated node from cached state.
func (d *Dispatcher) RenderAll() {
	for _, name := range d.declared {
		d.render(d.records[name])
	}
	if d.opts.Header != "" {
		if rec := d.lookup(d.opts.Header); rec != nil {
			if node := d.opts.Document.ByID(d.opts.HeaderNodeID); node != nil {
				node.SetText(d.valueText(rec))
			}
		}
	}
	if raw, ok := d.opts.Store.Get(store.KeyDateTime); ok {
		d.renderTimestamp(raw)
	}
}

// Format renders a value in the current language.
func (d *Dispatcher) Format(v any, decimals int) string {
	return FormatValue(d.format, v, decimals)
}

// Formatter returns the formatter of the current language.
func (d *Dispatcher) Formatter() *i18n.Formatter { return d.format }

func (d *Dispatcher) render(rec *ObservationRecord) {
	if node := d.opts.Document.ByID(rec.Name + LabelSuffix); node != nil {
		node.SetText(d.labelText(rec))
		if rec.ModalLabel != nil {
			node.SetAttr("title", *rec.ModalLabel)
		}
	}
	if node := d.opts.Document.ByID(rec.Name); node != nil {
		node.SetText(d.valueText(rec))
	}
}

func (d *Dispatcher) labelText(rec *ObservationRecord) string {
	if d.opts.Catalog != nil && d.opts.Catalog.Has(d.lang, rec.Name) {
		return d.opts.Catalog.Lookup(d.lang, rec.Name)
	}
	if rec.Label != "" {
		return rec.Label
	}
	if d.opts.Catalog != nil {
		return d.opts.Catalog.Lookup(d.lang, rec.Name)
	}
	return rec.Name
}

// valueText is value + unit + the suffix record's current value. A suffix
// that was never cached renders as nothing.
func (d *Dispatcher) valueText(rec *ObservationRecord) string {
	text := FormatValue(d.format, rec.Value, rec.Decimals()) + rec.Unit
	if rec.Suffix != "" && rec.Suffix != rec.Name {
		if suffix := d.lookup(rec.Suffix); suffix != nil {
			text += FormatValue(d.format, suffix.Value, suffix.Decimals())
		}
	}
	return text
}

func (d *Dispatcher) updateTimestamp(v any) {
	secs, ok := numeric(v)
	if !ok {
		d.logger.Debug("timestamp not numeric, ignored", "value", v)
		return
	}
	raw := strconv.FormatInt(int64(secs), 10)
	if err := d.opts.Store.Set(store.KeyDateTime, raw); err != nil {
		d.logger.Warn("failed to persist timestamp", "error", err)
	}
	d.renderTimestamp(raw)
}

func (d *Dispatcher) renderTimestamp(raw string) {
	secs, ok := numeric(raw)
	if !ok {
		return
	}
	if node := d.opts.Document.ByID(d.opts.LastUpdatedNodeID); node != nil {
		node.SetText(d.format.DateTime(time.Unix(int64(secs), 0)))
	}
}

// lookup returns the in-memory record for name, loading it from the store
// when this page does not declare it.
func (d *Dispatcher) lookup(name string) *ObservationRecord {
	if rec, ok := d.records[name]; ok {
		return rec
	}
	var rec ObservationRecord
	ok, err := store.GetJSON(d.opts.Store, name, &rec)
	if err != nil {
		d.logger.Warn("cached record unreadable", "name", name, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &rec
}

func (d *Dispatcher) persist(rec *ObservationRecord) {
	if err := store.SetJSON(d.opts.Store, rec.Name, rec); err != nil {
		d.logger.Warn("failed to cache record", "name", rec.Name, "error", err)
	}
}
