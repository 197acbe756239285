// Package longpath is a registry of long-path store implementations.
// Each implementation registers a Factory from its package's init function,
// so a program selects a store by name and configuration at runtime
// after blank-importing the implementations it wants to offer.
package longpath

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/carvpath"
)

// Factory produces a long-path store from a configuration map,
// such as a section of a config file.
type Factory func(context.Context, map[string]interface{}) (carvpath.Store, error)

var registry = make(map[string]Factory)

// Register makes a store implementation available under the given key.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create produces the store registered under key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (carvpath.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, errors.Errorf("key %s not found in registry", key)
	}
	s, err := f(ctx, conf)
	return s, errors.Wrapf(err, "creating %s store", key)
}
