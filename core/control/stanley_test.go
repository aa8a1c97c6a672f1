package control

import (
	"math"
	"testing"
)

func TestStraightLine(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	law := cfg.Stanley()
	for _, v := range []float64{0, 0.1, 0.3, 1, 5} {
		raw, clamped := law.Steer(0, 0, v)
		if raw != 0 || clamped != 0 {
			t.Fatalf("v=%v: steer = %v/%v, want 0", v, raw, clamped)
		}
	}
}

func TestSaturation(t *testing.T) {
	law := Stanley{K: 0.55, Ks: 0.1, MaxSteer: Radians(25)}
	raw, clamped := law.Steer(10, 0, 0.3)
	if math.Abs(raw-math.Atan2(5.5, 0.4)) > 1e-12 {
		t.Fatalf("raw = %v", raw)
	}
	if math.Abs(raw-1.498) > 1e-3 {
		t.Fatalf("raw = %v, want about 1.498", raw)
	}
	if clamped != law.MaxSteer {
		t.Fatalf("clamped = %v, want %v", clamped, law.MaxSteer)
	}
	_, neg := law.Steer(-10, 0, 0.3)
	if neg != -law.MaxSteer {
		t.Fatalf("negative clamp = %v", neg)
	}
	if d := Degrees(clamped); math.Abs(d-25) > 1e-9 {
		t.Fatalf("degrees = %v", d)
	}
}

func TestHeadingErrorWithinLimit(t *testing.T) {
	law := Stanley{K: 0.55, Ks: 0.1, MaxSteer: Radians(25)}
	raw, clamped := law.Steer(0, 0.1, 1)
	if raw != 0.1 || clamped != 0.1 {
		t.Fatalf("steer = %v/%v, want 0.1", raw, clamped)
	}
}

func TestSpeedUnits(t *testing.T) {
	cases := []struct{ v, want float64 }{
		{0.3, 90},
		{0, 0},
		{1, 300},
		{0.0999, 29},
	}
	for _, c := range cases {
		if got := SpeedUnits(c.v, 300); got != c.want {
			t.Errorf("SpeedUnits(%v) = %v want %v", c.v, got, c.want)
		}
	}
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if cfg.K != 0.55 || cfg.Softening() != 0.1 || cfg.MaxSteerDeg != 25 || cfg.SpeedScale != 300 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate defaults: %v", err)
	}
	bad := cfg
	bad.MaxSteerDeg = 120
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for max_steer_deg")
	}
	bad = cfg
	negative := -1.0
	bad.Ks = &negative
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for negative ks")
	}
}

func TestConfigKeepsExplicitZeroSoftening(t *testing.T) {
	zero := 0.0
	cfg := Config{Ks: &zero}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := cfg.Stanley().Ks; got != 0 {
		t.Fatalf("explicit ks 0 replaced by %v", got)
	}
}
