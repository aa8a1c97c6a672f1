package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mitchellh/mapstructure"

	"github.com/ewolf/brain/core/messages"
)

// ErrMalformedPerception is returned for a perception payload that is
// missing fields, has the wrong shape or is out of range.
var ErrMalformedPerception = errors.New("malformed perception payload")

// DecodePerception accepts a PerceptionError, a pointer to one, a map with
// the e_y, theta_e and speed keys, or the JSON encoding of that map.
func DecodePerception(v any) (messages.PerceptionError, error) {
	var pe messages.PerceptionError
	switch p := v.(type) {
	case messages.PerceptionError:
		pe = p
	case *messages.PerceptionError:
		if p == nil {
			return pe, fmt.Errorf("%w: nil pointer", ErrMalformedPerception)
		}
		pe = *p
	case map[string]any:
		if err := decodeMap(p, &pe); err != nil {
			return pe, err
		}
	case []byte:
		var m map[string]any
		if err := json.Unmarshal(p, &m); err != nil {
			return pe, fmt.Errorf("%w: %v", ErrMalformedPerception, err)
		}
		if err := decodeMap(m, &pe); err != nil {
			return pe, err
		}
	default:
		return pe, fmt.Errorf("%w: unsupported type %T", ErrMalformedPerception, v)
	}
	if err := validate(pe); err != nil {
		return messages.PerceptionError{}, err
	}
	return pe, nil
}

func decodeMap(m map[string]any, out *messages.PerceptionError) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnset: true,
		Result:     out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(m); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPerception, err)
	}
	return nil
}

func validate(pe messages.PerceptionError) error {
	for name, f := range map[string]float64{"e_y": pe.EY, "theta_e": pe.ThetaE, "speed": pe.Speed} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrMalformedPerception, name)
		}
	}
	if pe.Speed < 0 {
		return fmt.Errorf("%w: negative speed %v", ErrMalformedPerception, pe.Speed)
	}
	return nil
}
