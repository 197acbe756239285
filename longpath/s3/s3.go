// Package s3 implements a long-path store on Amazon S3
// or an S3-compatible service such as MinIO.
package s3

import (
	"context"
	stderrs "errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
)

var _ carvpath.Store = &Store{}

// Store is an S3-based implementation of a long-path store.
// Each path is an object named by its digest under a key prefix.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New produces a new Store keeping paths in the given bucket,
// under the given key prefix.
func New(client *s3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) key(digest string) string {
	return s.prefix + digest
}

// Get gets the carvpath text for a digest token.
func (s *Store) Get(ctx context.Context, digest string) (string, error) {
	key := s.key(digest)
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	var notFound *types.NoSuchKey
	if stderrs.As(err, &notFound) {
		return "", carvpath.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "getting object %s", key)
	}
	defer result.Body.Close()

	b, err := io.ReadAll(result.Body)
	return string(b), errors.Wrapf(err, "reading contents of object %s", key)
}

// Put adds a carvpath to the store if it wasn't already present.
// It uses a conditional write,
// so exactly one of several concurrent writers of the same path sees added=true.
func (s *Store) Put(ctx context.Context, path string) (string, bool, error) {
	var (
		digest = carvpath.Digest(path)
		key    = s.key(digest)
	)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(path),
		ContentType: aws.String("text/plain"),
		IfNoneMatch: aws.String("*"),
	})
	var apiErr smithy.APIError
	if stderrs.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
		return digest, false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "putting object %s", key)
	}
	return digest, true, nil
}

// List produces all digests in the store, in lexicographic order.
func (s *Store) List(ctx context.Context, start string, f func(string) error) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}
	if start != "" {
		input.StartAfter = aws.String(s.key(start))
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, input)

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return errors.Wrap(err, "listing objects")
		}

		for _, obj := range page.Contents {
			digest := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if !carvpath.IsDigest(digest) {
				continue
			}
			if err := f(digest); err != nil {
				return err
			}
		}
	}
	return nil
}

// Config is the configuration of an s3 Store.
type Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// NewClient produces an S3 client from c.
// Static credentials are used if given,
// otherwise the default credential chain.
// A custom endpoint implies path-style addressing.
func NewClient(ctx context.Context, c Config) (*s3.Client, error) {
	if c.Region == "" {
		return nil, errors.New(`missing "region" parameter`)
	}

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(c.Region),
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func init() {
	longpath.Register("s3", func(ctx context.Context, conf map[string]interface{}) (carvpath.Store, error) {
		var c Config
		if err := mapstructure.Decode(conf, &c); err != nil {
			return nil, errors.Wrap(err, "decoding s3 store config")
		}
		if c.Bucket == "" {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		client, err := NewClient(ctx, c)
		if err != nil {
			return nil, err
		}
		return New(client, c.Bucket, c.Prefix), nil
	})
}
