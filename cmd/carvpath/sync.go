package main

import (
	"context"
	"flag"

	"github.com/pkg/errors"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
)

func (c maincmd) sync(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	stores := []carvpath.Store{c.s}
	for i, conf := range c.conf.Replicas {
		s, err := storeFromConfig(ctx, conf)
		if err != nil {
			return errors.Wrapf(err, "creating replica %d", i)
		}
		stores = append(stores, s)
	}
	if len(stores) < 2 {
		return errors.New("no replicas configured")
	}
	return longpath.Sync(ctx, stores)
}
