package limiter

import (
	"fmt"
	"reflect"
)

// AnonymousKey is the key DefaultKeyStrategy assigns to absent or empty input.
const AnonymousKey = "anonymous"

// KeyStrategy derives a rate limit key from caller-defined input such as a
// user id, an IP address or request metadata. Implementations must be
// deterministic.
type KeyStrategy interface {
	ComputeKey(input any) (string, error)
}

// KeyFunc adapts an ordinary function to KeyStrategy.
type KeyFunc func(input any) (string, error)

func (f KeyFunc) ComputeKey(input any) (string, error) { return f(input) }

// DefaultKeyStrategy maps nil or empty input to AnonymousKey and renders
// everything else as text.
var DefaultKeyStrategy KeyStrategy = KeyFunc(func(input any) (string, error) {
	if isNil(input) {
		return AnonymousKey, nil
	}
	key := render(input)
	if key == "" {
		return AnonymousKey, nil
	}
	return key, nil
})

// StrictKeyStrategy renders input as text and rejects nil or empty input
// with ErrInvalidKey.
var StrictKeyStrategy KeyStrategy = KeyFunc(func(input any) (string, error) {
	if isNil(input) {
		return "", fmt.Errorf("%w: nil input", ErrInvalidKey)
	}
	key := render(input)
	if key == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidKey)
	}
	return key, nil
})

// ConsumeFor derives a key from input with ks and consumes one unit for it.
func ConsumeFor(l RateLimiter, ks KeyStrategy, input any) (Decision, error) {
	if ks == nil {
		ks = DefaultKeyStrategy
	}
	key, err := ks.ComputeKey(input)
	if err != nil {
		return Decision{}, err
	}
	return l.TryConsume(key)
}

func render(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func isNil(input any) bool {
	if input == nil {
		return true
	}
	rv := reflect.ValueOf(input)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
