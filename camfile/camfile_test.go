// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package camfile

import (
	"math"
	"testing"

	"github.com/cpmech/camcal/lensmodel"
)

func TestParseAllKeys(t *testing.T) {
	text := `{
  'lensmodel':  'LENSMODEL_PINHOLE',
  'intrinsics': [ 1000, 1000, 500, 500, ],
  'imagersize': [ 1920, 1080, ],
  'extrinsics': [ 0.01, 0.02, 0.03, 1, 2, 3, ],
}`
	m, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.LensModel.Family != lensmodel.Pinhole {
		t.Errorf("got family %v, want Pinhole", m.LensModel.Family)
	}
	if len(m.Intrinsics) != 4 || m.Intrinsics[0] != 1000 {
		t.Errorf("got intrinsics %v", m.Intrinsics)
	}
	if m.ImagerWidth != 1920 || m.ImagerHeight != 1080 {
		t.Errorf("got imager %dx%d, want 1920x1080", m.ImagerWidth, m.ImagerHeight)
	}
	if !m.HasExtrinsics || math.Abs(m.Extrinsics[3]-1) > 1e-12 {
		t.Errorf("got extrinsics %v", m.Extrinsics)
	}
}

func TestParseMissingRequiredKey(t *testing.T) {
	text := `{ 'lensmodel': 'LENSMODEL_PINHOLE', 'intrinsics': [ 1000, 1000, 500, 500, ], }`
	if _, err := Parse(text); err == nil {
		t.Errorf("expected an error for a missing 'imagersize' key")
	}
}

func TestParseWrongIntrinsicsCount(t *testing.T) {
	text := `{
  'lensmodel': 'LENSMODEL_PINHOLE',
  'intrinsics': [ 1000, 1000, ],
  'imagersize': [ 100, 100, ],
}`
	if _, err := Parse(text); err == nil {
		t.Errorf("expected an error: pinhole wants 4 intrinsics, got 2")
	}
}
