package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/bobg/carvpath/repo"
)

func (c maincmd) openRepo(path string) (*repo.Repository, error) {
	if path == "" {
		path = c.conf.Repo
	}
	if path == "" {
		return nil, errors.New("no repository: supply -repo or set repo in the config")
	}
	r, err := repo.Open(path, c.cp)
	return r, errors.Wrapf(err, "opening repository %s", path)
}

func (c maincmd) alloc(ctx context.Context, fs *flag.FlagSet, args []string) error {
	repoPath := fs.String("repo", "", "repository file")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	r, err := c.openRepo(*repoPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, arg := range fs.Args() {
		size, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parsing size %s", arg)
		}
		key, err := r.AllocateMutable(ctx, size)
		if err != nil {
			return errors.Wrapf(err, "allocating %d bytes", size)
		}
		fmt.Println(key)
	}
	return nil
}

func (c maincmd) ingest(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		repoPath = fs.String("repo", "", "repository file")
		chunks   = fs.Bool("chunks", false, "also print the carvpath of each chunk")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	r, err := c.openRepo(*repoPath)
	if err != nil {
		return err
	}
	defer r.Close()

	ing, err := r.Ingest(ctx, os.Stdin)
	if err != nil {
		return errors.Wrap(err, "ingesting stdin")
	}
	fmt.Println(ing.Key)
	if *chunks {
		for _, chunk := range ing.Chunks {
			st, err := r.Hashing(chunk)
			if err != nil {
				return errors.Wrapf(err, "getting hash state of %s", chunk)
			}
			fmt.Printf("  %s\t%s\n", chunk, st.Result)
		}
	}
	return nil
}

func (c maincmd) hash(ctx context.Context, fs *flag.FlagSet, args []string) error {
	repoPath := fs.String("repo", "", "repository file")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	r, err := c.openRepo(*repoPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, path := range fs.Args() {
		if _, err = r.Register(ctx, path); err != nil {
			return errors.Wrapf(err, "registering %s", path)
		}
		if _, err = r.WriteEntityTo(ctx, path, io.Discard); err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}
		st, err := r.Hashing(path)
		if err != nil {
			return errors.Wrapf(err, "getting hash state of %s", path)
		}
		fmt.Printf("%s\t%s\n", st.Result, path)
		if err = r.Release(path); err != nil {
			return errors.Wrapf(err, "releasing %s", path)
		}
	}
	return nil
}
