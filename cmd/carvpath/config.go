package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
)

// Config is the CLI configuration.
// Values come from the config file, if any,
// overridden by CARVPATH_* environment variables
// (e.g. CARVPATH_MAX_TOKEN_LEN).
type Config struct {
	// MaxTokenLen is the longest carvpath text kept as-is.
	// Longer text is replaced by a digest token.
	MaxTokenLen int `mapstructure:"max_token_len" validate:"gte=8"`

	// Hash names the opportunistic hash function.
	Hash string `mapstructure:"hash" validate:"oneof=blake2b blake3"`

	// Repo is the default repository file for alloc, ingest, and hash.
	Repo string `mapstructure:"repo"`

	// LongPath configures the long-path store.
	// Its "type" entry selects a registered implementation,
	// and the rest is passed to that implementation.
	LongPath map[string]interface{} `mapstructure:"longpath" validate:"required"`

	// Replicas configures additional long-path stores for the sync subcommand.
	Replicas []map[string]interface{} `mapstructure:"replicas" validate:"dive,required"`
}

var validate = validator.New()

func loadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("max_token_len", carvpath.DefaultMaxTokenLen)
	v.SetDefault("hash", "blake2b")
	v.SetDefault("longpath", map[string]interface{}{"type": "mem"})

	v.SetEnvPrefix("CARVPATH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("carvpath")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := validate.Struct(&conf); err != nil {
		return nil, formatValidationError(err)
	}
	if _, err := storeType(conf.LongPath); err != nil {
		return nil, errors.Wrap(err, "longpath")
	}
	for i, r := range conf.Replicas {
		if _, err := storeType(r); err != nil {
			return nil, errors.Wrapf(err, "replicas[%d]", i)
		}
	}

	return &conf, nil
}

func formatValidationError(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

func storeType(conf map[string]interface{}) (string, error) {
	typ, ok := conf["type"].(string)
	if !ok || typ == "" {
		return "", errors.New("missing `type` parameter")
	}
	return typ, nil
}

func storeFromConfig(ctx context.Context, conf map[string]interface{}) (carvpath.Store, error) {
	typ, err := storeType(conf)
	if err != nil {
		return nil, err
	}
	return longpath.Create(ctx, typ, conf)
}

func (conf *Config) hashFunc() carvpath.Option {
	if conf.Hash == "blake3" {
		return carvpath.WithHash(carvpath.HashBLAKE3)
	}
	return carvpath.WithHash(carvpath.HashBLAKE2b)
}
