// Command carvpath parses, combines, and stores carvpaths,
// and manages carvpath repository files.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/bobg/subcmd"

	"github.com/bobg/carvpath"
	_ "github.com/bobg/carvpath/longpath/badger"
	_ "github.com/bobg/carvpath/longpath/file"
	_ "github.com/bobg/carvpath/longpath/gcs"
	_ "github.com/bobg/carvpath/longpath/logging"
	_ "github.com/bobg/carvpath/longpath/lru"
	_ "github.com/bobg/carvpath/longpath/mem"
	_ "github.com/bobg/carvpath/longpath/pg"
	_ "github.com/bobg/carvpath/longpath/replica"
	_ "github.com/bobg/carvpath/longpath/s3"
	_ "github.com/bobg/carvpath/longpath/sqlite3"
)

type maincmd struct {
	conf *Config
	s    carvpath.Store
	cp   *carvpath.Context
}

func main() {
	config := flag.String("config", "", "path to config file (default: ./carvpath.{yaml,json,toml} if present)")
	flag.Parse()

	conf, err := loadConfig(*config)
	if err != nil {
		log.Fatalf("Loading config: %s", err)
	}

	ctx := context.Background()

	s, err := storeFromConfig(ctx, conf.LongPath)
	if err != nil {
		log.Fatalf("Creating long-path store: %s", err)
	}

	c := maincmd{
		conf: conf,
		s:    s,
		cp:   carvpath.NewContext(s, carvpath.WithMaxTokenLen(conf.MaxTokenLen), conf.hashFunc()),
	}

	err = subcmd.Run(ctx, c, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"alloc":    c.alloc,
		"density":  c.density,
		"hash":     c.hash,
		"ingest":   c.ingest,
		"merge":    c.merge,
		"overlaps": c.overlaps,
		"parse":    c.parse,
		"strip":    c.strip,
		"sync":     c.sync,
		"test":     c.test,
		"unmerge":  c.unmerge,
	}
}
