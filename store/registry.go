package store

import (
	"context"
	"fmt"

	"profiledir/cas"
)

// Factory produces a store from a configuration map.
type Factory func(context.Context, map[string]interface{}) (cas.Store, error)

var registry = make(map[string]Factory)

// Register associates a factory with a type key.
// Store implementations call it from their init functions.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create produces a store of the registered type from conf.
func Create(ctx context.Context, key string, conf map[string]interface{}) (cas.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}
