package eventbus

import (
	"errors"
	"fmt"

	"github.com/ewolf/brain/core/messages"
)

// ErrUnexpectedType is returned when a value does not have the requested type.
var ErrUnexpectedType = errors.New("unexpected payload type")

// ReceiveAs is Receive with a type assertion on the value.
func ReceiveAs[T any](s *Subscriber) (T, bool, error) {
	var zero T
	env, ok, err := s.ReceiveEnvelope()
	if err != nil || !ok {
		return zero, ok, err
	}
	return as[T](env)
}

// GetAs is Get with a type assertion on the value.
func GetAs[T any](s *Subscriber, key messages.Key) (T, bool, error) {
	var zero T
	env, ok, err := s.GetEnvelope(key)
	if err != nil || !ok {
		return zero, ok, err
	}
	return as[T](env)
}

func as[T any](env Envelope) (T, bool, error) {
	v, ok := env.Value.(T)
	if !ok {
		var zero T
		return zero, true, fmt.Errorf("%s: got %T want %T: %w", env.Key(), env.Value, zero, ErrUnexpectedType)
	}
	return v, true, nil
}
