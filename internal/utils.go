package internal

import (
	"context"
	"fmt"
)

// https://adithayyil.tech/posts/go-type-safe-contexts/

// CtxKey is a context key bound to the type of the value it stores. Two keys with the same name but different types
// never collide.
type CtxKey[T any] struct {
	name string
}

func NewCtxKey[T any](name string) CtxKey[T] {
	return CtxKey[T]{name: name}
}

func (k CtxKey[T]) String() string {
	return fmt.Sprintf("CtxKey[%T](%s)", *new(T), k.name)
}

// SetCtxKey returns a copy of ctx carrying value under key
func SetCtxKey[T any](ctx context.Context, key CtxKey[T], value T) context.Context {
	return context.WithValue(ctx, key, value)
}

// GetCtxKey reads the value stored under key. The boolean is false when the key is missing.
func GetCtxKey[T any](ctx context.Context, key CtxKey[T]) (T, bool) {
	value, ok := ctx.Value(key).(T)
	return value, ok
}
