package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/carvpath"
)

func (c maincmd) parse(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	for _, path := range fs.Args() {
		e, err := c.cp.Parse(ctx, path)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", path)
		}
		key, err := c.cp.Encode(ctx, e)
		if err != nil {
			return errors.Wrapf(err, "encoding %s", path)
		}
		fmt.Printf("%s\t%d\t%s\n", e, e.TotalSize(), key)
	}
	return nil
}

func (c maincmd) test(ctx context.Context, fs *flag.FlagSet, args []string) error {
	size := fs.Uint64("size", 0, "size of the underlying data")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	top := c.cp.NewTop(*size)
	var bad int
	for _, path := range fs.Args() {
		e, err := c.cp.Parse(ctx, path)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", path)
		}
		if top.Test(e) {
			fmt.Printf("%s\tok\n", path)
		} else {
			fmt.Printf("%s\tout of bounds\n", path)
			bad++
		}
	}
	if bad > 0 {
		return errors.Wrapf(carvpath.ErrOutOfBounds, "%d path(s) exceed size %d", bad, *size)
	}
	return nil
}

func (c maincmd) strip(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	for _, path := range fs.Args() {
		e, err := c.cp.Parse(ctx, path)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", path)
		}
		fmt.Println(e.StripSparse())
	}
	return nil
}

// pair parses exactly two paths from the command line.
func (c maincmd) pair(ctx context.Context, fs *flag.FlagSet, args []string) (a, b carvpath.Entity, err error) {
	if err = fs.Parse(args); err != nil {
		return a, b, errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 2 {
		return a, b, errors.New("need exactly two carvpaths")
	}
	if a, err = c.cp.Parse(ctx, fs.Arg(0)); err != nil {
		return a, b, errors.Wrapf(err, "parsing %s", fs.Arg(0))
	}
	if b, err = c.cp.Parse(ctx, fs.Arg(1)); err != nil {
		return a, b, errors.Wrapf(err, "parsing %s", fs.Arg(1))
	}
	return a, b, nil
}

func (c maincmd) merge(ctx context.Context, fs *flag.FlagSet, args []string) error {
	a, b, err := c.pair(ctx, fs, args)
	if err != nil {
		return err
	}
	merged, already, absorbed := a.Merge(b)
	fmt.Printf("merged\t%s\nalready\t%s\nabsorbed\t%s\n", merged, already, absorbed)
	return nil
}

func (c maincmd) unmerge(ctx context.Context, fs *flag.FlagSet, args []string) error {
	a, b, err := c.pair(ctx, fs, args)
	if err != nil {
		return err
	}
	remaining, absent, dropped := a.Unmerge(b)
	fmt.Printf("remaining\t%s\nabsent\t%s\ndropped\t%s\n", remaining, absent, dropped)
	return nil
}

func (c maincmd) overlaps(ctx context.Context, fs *flag.FlagSet, args []string) error {
	a, b, err := c.pair(ctx, fs, args)
	if err != nil {
		return err
	}
	fmt.Println(a.Overlaps(b))
	return nil
}

func (c maincmd) density(ctx context.Context, fs *flag.FlagSet, args []string) error {
	a, b, err := c.pair(ctx, fs, args)
	if err != nil {
		return err
	}
	fmt.Println(a.Density(b))
	return nil
}
