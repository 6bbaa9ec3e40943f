// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package camfile reads and writes the camera-model text file format: a
// bracket-delimited, Python-dict-looking file with three required keys
// and one optional one. It is kept outside the optimization core and
// parsed by hand -- the format isn't valid JSON (trailing commas,
// unquoted-style keys), so a generic struct-tag decoder couldn't read
// it anyway.
package camfile

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"

	"github.com/cpmech/camcal/lensmodel"
)

// CameraModel is the decoded contents of one camera-model file.
type CameraModel struct {
	LensModel     lensmodel.Model
	Intrinsics    []float64
	ImagerWidth   int
	ImagerHeight  int
	Extrinsics    [6]float64 // rx,ry,rz,tx,ty,tz; zero if the file omitted it (reference camera)
	HasExtrinsics bool
}

// Read parses a camera-model file at path.
func Read(path string) (*CameraModel, error) {
	buf, err := io.ReadFile(path)
	if err != nil {
		return nil, chk.Err("camfile: Read: cannot read %q: %v", path, err)
	}
	return Parse(string(buf))
}

// Parse decodes the in-memory contents of a camera-model file:
//
//	{
//	  'lensmodel':  '<name>',
//	  'intrinsics': [ <floats> ],
//	  'imagersize': [ <W>, <H> ],
//	  'extrinsics': [ <6 floats> ],   // optional
//	}
func Parse(text string) (*CameraModel, error) {
	fields, err := splitDict(text)
	if err != nil {
		return nil, err
	}

	m := &CameraModel{}

	lensName, ok := fields["lensmodel"]
	if !ok {
		return nil, chk.Err("camfile: Parse: missing required key 'lensmodel'")
	}
	lensName = strings.Trim(strings.TrimSpace(lensName), "'\"")
	model, err := lensmodel.Parse(lensName)
	if err != nil {
		return nil, chk.Err("camfile: Parse: %v", err)
	}
	m.LensModel = model

	intrText, ok := fields["intrinsics"]
	if !ok {
		return nil, chk.Err("camfile: Parse: missing required key 'intrinsics'")
	}
	intr, err := parseFloatList(intrText)
	if err != nil {
		return nil, chk.Err("camfile: Parse: intrinsics: %v", err)
	}
	if len(intr) != model.NumParams() {
		return nil, chk.Err("camfile: Parse: intrinsics has %d entries, lens model %q wants %d", len(intr), model.Name(), model.NumParams())
	}
	m.Intrinsics = intr

	sizeText, ok := fields["imagersize"]
	if !ok {
		return nil, chk.Err("camfile: Parse: missing required key 'imagersize'")
	}
	size, err := parseFloatList(sizeText)
	if err != nil || len(size) != 2 {
		return nil, chk.Err("camfile: Parse: imagersize must have exactly 2 entries")
	}
	m.ImagerWidth, m.ImagerHeight = int(size[0]), int(size[1])

	if extrText, ok := fields["extrinsics"]; ok {
		extr, err := parseFloatList(extrText)
		if err != nil || len(extr) != 6 {
			return nil, chk.Err("camfile: Parse: extrinsics must have exactly 6 entries")
		}
		copy(m.Extrinsics[:], extr)
		m.HasExtrinsics = true
	}

	return m, nil
}

// Write serializes m to path in the format Parse accepts, trailing
// commas included after every value.
func Write(path string, m *CameraModel) error {
	var sb strings.Builder
	sb.WriteString("{\n")
	sb.WriteString(io.Sf("  'lensmodel': '%s',\n", m.LensModel.Name()))
	sb.WriteString("  'intrinsics': [ ")
	for _, v := range m.Intrinsics {
		sb.WriteString(io.Sf("%.10g, ", v))
	}
	sb.WriteString("],\n")
	sb.WriteString(io.Sf("  'imagersize': [ %d, %d, ],\n", m.ImagerWidth, m.ImagerHeight))
	if m.HasExtrinsics {
		sb.WriteString("  'extrinsics': [ ")
		for _, v := range m.Extrinsics {
			sb.WriteString(io.Sf("%.10g, ", v))
		}
		sb.WriteString("],\n")
	}
	sb.WriteString("}\n")
	dir, fname := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	io.WriteFileSD(dir, fname, sb.String())
	return nil
}

// splitDict is a minimal bracket-dictionary tokenizer: it finds each
// 'key': value, pair at the top level between the outer braces. It does
// not attempt to be a general-purpose parser -- only what the fixed
// four-key format needs.
func splitDict(text string) (map[string]string, error) {
	text = strings.TrimSpace(text)
	open := strings.Index(text, "{")
	shut := strings.LastIndex(text, "}")
	if open < 0 || shut < 0 || shut < open {
		return nil, chk.Err("camfile: Parse: missing outer { } braces")
	}
	body := text[open+1 : shut]

	fields := make(map[string]string)
	i := 0
	for i < len(body) {
		for i < len(body) && (body[i] == ' ' || body[i] == '\n' || body[i] == '\t' || body[i] == ',') {
			i++
		}
		if i >= len(body) {
			break
		}
		if body[i] != '\'' && body[i] != '"' {
			return nil, chk.Err("camfile: Parse: expected quoted key at offset %d", i)
		}
		quote := body[i]
		i++
		keyStart := i
		for i < len(body) && body[i] != quote {
			i++
		}
		key := body[keyStart:i]
		i++ // skip closing quote

		for i < len(body) && (body[i] == ' ' || body[i] == ':') {
			i++
		}

		valStart := i
		depth := 0
		for i < len(body) {
			switch body[i] {
			case '[':
				depth++
			case ']':
				depth--
			case ',':
				if depth == 0 {
					goto doneValue
				}
			}
			i++
		}
	doneValue:
		fields[key] = strings.TrimSpace(body[valStart:i])
		if i < len(body) {
			i++ // skip the trailing comma
		}
	}
	return fields, nil
}

// parseFloatList parses a bracket-delimited, comma-separated (possibly
// trailing-comma) list of floats, e.g. "[ 1000, 1000, 500, 500, ]".
func parseFloatList(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	parts := strings.Split(s, ",")
	var out []float64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, chk.Err("camfile: cannot parse float %q: %v", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
