// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lensmodel

import "testing"

func TestParsePinhole(t *testing.T) {
	m, err := Parse("LENSMODEL_PINHOLE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Family != Pinhole {
		t.Fatalf("expected Pinhole, got %v", m.Family)
	}
	if m.NumParams() != 4 {
		t.Fatalf("expected 4 params, got %d", m.NumParams())
	}
	if m.Name() != "LENSMODEL_PINHOLE" {
		t.Fatalf("round-trip name mismatch: %q", m.Name())
	}
}

func TestParseSplinedStereographic(t *testing.T) {
	m, err := Parse("LENSMODEL_SPLINED_STEREOGRAPHIC_order=3_Nx=11_Ny=11_fov_x_deg=170")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Family != SplinedStereographic {
		t.Fatalf("expected SplinedStereographic, got %v", m.Family)
	}
	if m.Config.Order != 3 || m.Config.Nx != 11 || m.Config.Ny != 11 {
		t.Fatalf("unexpected config: %+v", m.Config)
	}
	// 4 core + 2*11*11 distortion
	if got, want := m.NumParams(), 4+2*11*11; got != want {
		t.Fatalf("NumParams: got %d want %d", got, want)
	}
}

func TestParseSplinedBareIsBadConfig(t *testing.T) {
	m, err := Parse("LENSMODEL_SPLINED_STEREOGRAPHIC")
	if err == nil {
		t.Fatalf("expected error for bare splined name in strict parse path")
	}
	if m.Family != InvalidBadConfig {
		t.Fatalf("expected InvalidBadConfig, got %v", m.Family)
	}
}

func TestParseLooseSplinedBare(t *testing.T) {
	m, ok := ParseLoose("LENSMODEL_SPLINED_STEREOGRAPHIC")
	if !ok {
		t.Fatalf("expected loose parse to accept bare configured name")
	}
	if m.Family != SplinedStereographic {
		t.Fatalf("expected SplinedStereographic, got %v", m.Family)
	}
}

func TestParseUnknown(t *testing.T) {
	m, err := Parse("LENSMODEL_NOT_A_REAL_MODEL")
	if err == nil {
		t.Fatalf("expected error")
	}
	if m.Family != Invalid {
		t.Fatalf("expected Invalid, got %v", m.Family)
	}
}

func TestMetaTable(t *testing.T) {
	cases := []struct {
		f                Family
		hasCore          bool
		canProjectBehind bool
		analyticGrad     bool
	}{
		{Pinhole, true, false, true},
		{Stereographic, true, true, true},
		{LonLat, true, true, true},
		{Cahvor, true, false, true},
		{Cahvore, true, false, false},
		{SplinedStereographic, true, true, true},
	}
	for _, c := range cases {
		meta := Model{Family: c.f}.Meta()
		if meta.HasCore != c.hasCore || meta.CanProjectBehind != c.canProjectBehind || meta.AnalyticGradients != c.analyticGrad {
			t.Errorf("family %v: got %+v", c.f, meta)
		}
	}
}

func TestCahvoreConfigRoundTrip(t *testing.T) {
	m, err := Parse("LENSMODEL_CAHVORE_linearity=0.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Config.Linearity != 0.5 {
		t.Fatalf("expected linearity 0.5, got %v", m.Config.Linearity)
	}
	if m.Name() != "LENSMODEL_CAHVORE_linearity=0.5" {
		t.Fatalf("round-trip name mismatch: %q", m.Name())
	}
}
