// Package adapter converts between the compact diagram description and the
// editing surface's element model, and post-processes connector geometry.
package adapter

import (
	log "github.com/sirupsen/logrus"
)

// Options tunes conversion. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	// BindingTolerance is how far (in scene units) a connector endpoint may
	// be from a shape and still bind to it.
	BindingTolerance float64
	// CoordinateLimit clips every coordinate and extent to [-limit, limit].
	CoordinateLimit float64
	// MinExtent is the smallest magnitude an extent may have.
	MinExtent float64
	// DefaultExtent replaces missing or non-finite extents.
	DefaultExtent    float64
	DefaultTextColor string
	DefaultFontSize  float64
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		BindingTolerance: 200,
		CoordinateLimit:  1e6,
		MinExtent:        1,
		DefaultExtent:    100,
		DefaultTextColor: "#000000",
		DefaultFontSize:  16,
	}
}

// Converter holds conversion settings. It keeps no state between calls and
// is safe for concurrent use.
type Converter struct {
	opts Options
}

// NewConverter returns a converter using opts, filling any unset field from
// DefaultOptions.
func NewConverter(opts Options) *Converter {
	def := DefaultOptions()
	if opts.BindingTolerance <= 0 {
		opts.BindingTolerance = def.BindingTolerance
	}
	if opts.CoordinateLimit <= 0 {
		opts.CoordinateLimit = def.CoordinateLimit
	}
	if opts.MinExtent <= 0 {
		opts.MinExtent = def.MinExtent
	}
	if opts.DefaultExtent <= 0 {
		opts.DefaultExtent = def.DefaultExtent
	}
	if opts.DefaultTextColor == "" {
		opts.DefaultTextColor = def.DefaultTextColor
	}
	if opts.DefaultFontSize <= 0 {
		opts.DefaultFontSize = def.DefaultFontSize
	}
	return &Converter{opts: opts}
}

// Options returns the effective settings.
func (c *Converter) Options() Options {
	return c.opts
}

// Drop records an element removed during conversion.
type Drop struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Type   string `json:"type,omitempty"`
	Reason string `json:"reason"`
}

// Report collects the non-fatal problems found during a conversion.
type Report struct {
	Dropped []Drop `json:"dropped,omitempty"`
	// Renamed maps a duplicate id to the fresh id it was given.
	Renamed map[string]string `json:"renamed,omitempty"`
}

func (r *Report) drop(index int, id, typ, reason string) {
	r.Dropped = append(r.Dropped, Drop{Index: index, ID: id, Type: typ, Reason: reason})
	log.WithFields(log.Fields{
		"id":     id,
		"type":   typ,
		"index":  index,
		"reason": reason,
	}).Warn("adapter: dropped element")
}

func (r *Report) rename(from, to string) {
	if r.Renamed == nil {
		r.Renamed = make(map[string]string)
	}
	r.Renamed[from] = to
	log.WithFields(log.Fields{"id": from, "new_id": to}).Debug("adapter: regenerated duplicate id")
}
