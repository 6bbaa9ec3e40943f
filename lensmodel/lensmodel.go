// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package lensmodel implements the closed enumeration of lens models
// supported by the calibration core, their per-model metadata, and the
// name <-> tag parsing used by camera-model files.
package lensmodel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cpmech/gosl/chk"
)

// Family identifies the kinematic family of a lens model. This is a closed
// enumeration: every kernel in package project is keyed by Family, and
// dispatch is a single switch -- no runtime polymorphism.
type Family int

const (
	// Invalid marks a name that could not be parsed into any known family
	Invalid Family = iota

	// InvalidBadConfig marks a name whose base family is known but whose
	// configuration suffix failed to parse
	InvalidBadConfig

	Pinhole
	Stereographic
	LonLat
	LatLon
	Opencv4
	Opencv5
	Opencv8
	Opencv12
	Cahvor
	Cahvore
	SplinedStereographic
)

// Config carries the small per-model configuration for the two families
// that need one. Zero value is correct for every family that carries none.
type Config struct {
	// Cahvore
	Linearity float64

	// SplinedStereographic
	Order  int // 2 or 3
	Nx, Ny int
	FovDeg float64
}

// Model is the tagged variant: a Family tag plus its Config, which is only
// meaningful for Cahvore and SplinedStereographic.
type Model struct {
	Family Family
	Config Config
}

// Meta is the per-family derived metadata.
type Meta struct {
	HasCore           bool
	CanProjectBehind  bool
	AnalyticGradients bool
}

var metaTable = map[Family]Meta{
	Pinhole:              {HasCore: true, CanProjectBehind: false, AnalyticGradients: true},
	Stereographic:        {HasCore: true, CanProjectBehind: true, AnalyticGradients: true},
	LonLat:               {HasCore: true, CanProjectBehind: true, AnalyticGradients: true},
	LatLon:               {HasCore: true, CanProjectBehind: true, AnalyticGradients: true},
	Opencv4:              {HasCore: true, CanProjectBehind: false, AnalyticGradients: true},
	Opencv5:              {HasCore: true, CanProjectBehind: false, AnalyticGradients: true},
	Opencv8:              {HasCore: true, CanProjectBehind: false, AnalyticGradients: true},
	Opencv12:             {HasCore: true, CanProjectBehind: false, AnalyticGradients: true},
	Cahvor:               {HasCore: true, CanProjectBehind: false, AnalyticGradients: true},
	Cahvore:              {HasCore: true, CanProjectBehind: false, AnalyticGradients: false},
	SplinedStereographic: {HasCore: true, CanProjectBehind: true, AnalyticGradients: true},
}

// baseNames maps a Family to its canonical bare name (without configuration
// suffix); the reverse map is built once in init().
var baseNames = map[Family]string{
	Pinhole:              "LENSMODEL_PINHOLE",
	Stereographic:        "LENSMODEL_STEREOGRAPHIC",
	LonLat:               "LENSMODEL_LONLAT",
	LatLon:               "LENSMODEL_LATLON",
	Opencv4:              "LENSMODEL_OPENCV4",
	Opencv5:              "LENSMODEL_OPENCV5",
	Opencv8:              "LENSMODEL_OPENCV8",
	Opencv12:             "LENSMODEL_OPENCV12",
	Cahvor:               "LENSMODEL_CAHVOR",
	Cahvore:              "LENSMODEL_CAHVORE",
	SplinedStereographic: "LENSMODEL_SPLINED_STEREOGRAPHIC",
}

var nameToFamily = func() map[string]Family {
	m := make(map[string]Family, len(baseNames))
	for f, n := range baseNames {
		m[n] = f
	}
	return m
}()

// HasConfig is true for families that carry a non-empty Config
func (f Family) HasConfig() bool {
	return f == Cahvore || f == SplinedStereographic
}

// Meta returns the derived metadata for the model's family. Panics if
// called on Invalid/InvalidBadConfig -- callers must reject those first.
func (m Model) Meta() Meta {
	meta, ok := metaTable[m.Family]
	if !ok {
		chk.Panic("lensmodel: Meta: family %v has no metadata (invalid tag)", m.Family)
	}
	return meta
}

// NumParams returns the number of intrinsics for this model: fixed per
// family, except SplinedStereographic where it is derived from Config.
func (m Model) NumParams() int {
	switch m.Family {
	case Pinhole, Stereographic, LonLat, LatLon:
		return 4
	case Opencv4:
		return 4 + 4
	case Opencv5:
		return 4 + 5
	case Opencv8:
		return 4 + 8
	case Opencv12:
		return 4 + 12
	case Cahvor:
		return 4 + 5
	case Cahvore:
		return 4 + 5 + 3 // core + (alpha,beta,r0,r1,r2) + (e0,e1,e2)
	case SplinedStereographic:
		return 4 + 2*m.Config.Nx*m.Config.Ny
	}
	chk.Panic("lensmodel: NumParams: unrecognised family %v", m.Family)
	return 0
}

// Name renders the canonical name for a model, including the
// "_key1=value1_key2=value2..." configuration suffix when the family
// carries one.
func (m Model) Name() string {
	base, ok := baseNames[m.Family]
	if !ok {
		return "LENSMODEL_INVALID"
	}
	switch m.Family {
	case Cahvore:
		return fmt.Sprintf("%s_linearity=%s", base, formatFloat(m.Config.Linearity))
	case SplinedStereographic:
		return fmt.Sprintf("%s_order=%d_Nx=%d_Ny=%d_fov_x_deg=%s",
			base, m.Config.Order, m.Config.Nx, m.Config.Ny, formatFloat(m.Config.FovDeg))
	}
	return base
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Parse parses a camera-model lens-model name into a Model. A name with a
// known base family but a malformed or missing-when-required configuration
// suffix returns Family == InvalidBadConfig. An unrecognised base name
// returns Family == Invalid. A bare name for a family that requires
// configuration (Cahvore, SplinedStereographic) is accepted only by
// ParseLoose; Parse (the strict path used everywhere else) rejects it as
// InvalidBadConfig.
func Parse(name string) (Model, error) {
	base, kv, hasSuffix := splitNameConfig(name)
	family, ok := nameToFamily[base]
	if !ok {
		return Model{Family: Invalid}, chk.Err("lensmodel: Parse: unrecognised model name %q", name)
	}
	if !family.HasConfig() {
		if hasSuffix {
			return Model{Family: InvalidBadConfig}, chk.Err("lensmodel: Parse: model %q takes no configuration", name)
		}
		return Model{Family: family}, nil
	}
	if !hasSuffix {
		return Model{Family: InvalidBadConfig}, chk.Err("lensmodel: Parse: model %q requires a configuration suffix", name)
	}
	cfg, err := parseConfig(family, kv)
	if err != nil {
		return Model{Family: InvalidBadConfig}, err
	}
	return Model{Family: family, Config: cfg}, nil
}

// ParseLoose is like Parse but recognises a bare name for a configured
// family as valid-but-unconfigured (Config left zero), for callers that
// only need to identify the family.
func ParseLoose(name string) (Model, bool) {
	base, kv, hasSuffix := splitNameConfig(name)
	family, ok := nameToFamily[base]
	if !ok {
		return Model{Family: Invalid}, false
	}
	if !hasSuffix || !family.HasConfig() {
		return Model{Family: family}, true
	}
	cfg, err := parseConfig(family, kv)
	if err != nil {
		return Model{Family: InvalidBadConfig}, false
	}
	return Model{Family: family, Config: cfg}, true
}

// splitNameConfig splits "BASE_key=val_key2=val2" into ("BASE", {"key":
// "val", ...}, true). A name with no recognised base is returned verbatim
// with hasSuffix=false so the caller's base lookup fails naturally.
func splitNameConfig(name string) (base string, kv map[string]string, hasSuffix bool) {
	for candidate := range nameToFamily {
		if name == candidate {
			return candidate, nil, false
		}
		prefix := candidate + "_"
		if strings.HasPrefix(name, prefix) {
			base = candidate
			hasSuffix = true
			kv = make(map[string]string)
			rest := strings.TrimPrefix(name, prefix)
			// keys may themselves contain underscores (fov_x_deg=...), so
			// split on "_" and fold "="-less tokens into the next key
			var pending []string
			for _, tok := range strings.Split(rest, "_") {
				if i := strings.Index(tok, "="); i >= 0 {
					key := strings.Join(append(pending, tok[:i]), "_")
					kv[key] = tok[i+1:]
					pending = pending[:0]
				} else {
					pending = append(pending, tok)
				}
			}
			return
		}
	}
	return name, nil, false
}

func parseConfig(family Family, kv map[string]string) (Config, error) {
	var cfg Config
	switch family {
	case Cahvore:
		v, ok := kv["linearity"]
		if !ok {
			return cfg, chk.Err("lensmodel: parseConfig: CAHVORE requires 'linearity'")
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, chk.Err("lensmodel: parseConfig: bad linearity %q: %v", v, err)
		}
		cfg.Linearity = f
	case SplinedStereographic:
		order, err := parseIntKey(kv, "order")
		if err != nil {
			return cfg, err
		}
		nx, err := parseIntKey(kv, "Nx")
		if err != nil {
			return cfg, err
		}
		ny, err := parseIntKey(kv, "Ny")
		if err != nil {
			return cfg, err
		}
		fovStr, ok := kv["fov_x_deg"]
		if !ok {
			return cfg, chk.Err("lensmodel: parseConfig: splined stereographic requires 'fov_x_deg'")
		}
		fov, err := strconv.ParseFloat(fovStr, 64)
		if err != nil {
			return cfg, chk.Err("lensmodel: parseConfig: bad fov_x_deg %q: %v", fovStr, err)
		}
		if order != 2 && order != 3 {
			return cfg, chk.Err("lensmodel: parseConfig: order must be 2 or 3, got %d", order)
		}
		if nx < order+1 || ny < order+1 {
			return cfg, chk.Err("lensmodel: parseConfig: Nx,Ny must be >= order+1 (%d), got Nx=%d Ny=%d", order+1, nx, ny)
		}
		cfg.Order, cfg.Nx, cfg.Ny, cfg.FovDeg = order, nx, ny, fov
	}
	return cfg, nil
}

func parseIntKey(kv map[string]string, key string) (int, error) {
	v, ok := kv[key]
	if !ok {
		return 0, chk.Err("lensmodel: parseConfig: missing %q", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, chk.Err("lensmodel: parseConfig: bad %q=%q: %v", key, v, err)
	}
	return n, nil
}
