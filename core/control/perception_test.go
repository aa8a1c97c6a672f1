package control

import (
	"errors"
	"math"
	"testing"

	"github.com/ewolf/brain/core/messages"
)

func TestDecodePerception(t *testing.T) {
	want := messages.PerceptionError{EY: 0.2, ThetaE: -0.1, Speed: 0.3}
	inputs := []any{
		want,
		&want,
		map[string]any{"e_y": 0.2, "theta_e": -0.1, "speed": 0.3},
		[]byte(`{"e_y":0.2,"theta_e":-0.1,"speed":0.3}`),
	}
	for _, in := range inputs {
		got, err := DecodePerception(in)
		if err != nil {
			t.Fatalf("%T: %v", in, err)
		}
		if got != want {
			t.Fatalf("%T: got %+v want %+v", in, got, want)
		}
	}
}

func TestDecodePerceptionIntegers(t *testing.T) {
	got, err := DecodePerception(map[string]any{"e_y": 1, "theta_e": 0, "speed": 2})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EY != 1 || got.Speed != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodePerceptionRejects(t *testing.T) {
	var nilPtr *messages.PerceptionError
	cases := map[string]any{
		"missing field": map[string]any{"e_y": 0.1, "speed": 0.3},
		"wrong type":    map[string]any{"e_y": "left", "theta_e": 0.0, "speed": 0.3},
		"bad json":      []byte(`{"e_y":`),
		"nan":           messages.PerceptionError{EY: math.NaN()},
		"inf":           messages.PerceptionError{ThetaE: math.Inf(1)},
		"negative":      messages.PerceptionError{Speed: -0.1},
		"nil pointer":   nilPtr,
		"string":        "e_y=0",
		"nil":           nil,
	}
	for name, in := range cases {
		if _, err := DecodePerception(in); !errors.Is(err, ErrMalformedPerception) {
			t.Errorf("%s: expected ErrMalformedPerception, got %v", name, err)
		}
	}
}
