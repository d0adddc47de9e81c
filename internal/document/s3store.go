package document

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/stackerrors"
)

// S3Store implements Store over an S3 bucket. Layout:
//
//	<prefix><type>/<name>.yaml          — catalog documents
//	<prefix>stack_instances/<name>.yaml — stack instance documents
//
// A document's Revision is the ETag returned by the GetObject call that
// read it.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3StoreConfig holds options for creating an S3Store.
type S3StoreConfig struct {
	Bucket      string
	Prefix      string
	Region      string
	EndpointURL string
}

// NewS3Store creates an S3Store. AWS credentials are resolved from the
// standard chain (env vars, instance profile, shared config, etc.).
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.EndpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// NewS3StoreFromClient creates an S3Store with a pre-configured S3 client,
// useful for testing against a fake/mocked client.
func NewS3StoreFromClient(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) docKey(docType catalog.DocType, name string) string {
	return s.prefix + string(docType) + "/" + name + ".yaml"
}

func (s *S3Store) instanceKey(name string) string {
	return s.prefix + "stack_instances/" + name + ".yaml"
}

func (s *S3Store) Get(ctx context.Context, docType catalog.DocType, name string) (Document, error) {
	key := s.docKey(docType, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFoundErr(err) {
			return Document{}, stackerrors.NotFound(string(docType), name)
		}
		return Document{}, stackerrors.Transient(fmt.Errorf("fetching s3://%s/%s: %w", s.bucket, key, err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Document{}, fmt.Errorf("reading s3://%s/%s body: %w", s.bucket, key, err)
	}

	etag := ""
	if out.ETag != nil {
		etag = *out.ETag
	}
	return Document{Type: docType, Name: name, Body: data, Revision: etag}, nil
}

func (s *S3Store) Write(ctx context.Context, docType catalog.DocType, name string, body []byte, description string) error {
	key := s.docKey(docType, name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(string(body)),
	})
	if err != nil {
		return stackerrors.Transient(fmt.Errorf("writing s3://%s/%s: %w", s.bucket, key, err))
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, docType catalog.DocType) ([]Document, error) {
	prefix := s.prefix + string(docType) + "/"
	var docs []Document
	var continuationToken *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, stackerrors.Transient(fmt.Errorf("listing s3://%s/%s: %w", s.bucket, prefix, err))
		}

		for _, obj := range out.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".yaml") {
				continue
			}
			getOut, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: obj.Key})
			if err != nil {
				slog.Warn("failed to fetch document from S3", "key", *obj.Key, "error", err)
				continue
			}
			data, readErr := io.ReadAll(getOut.Body)
			getOut.Body.Close()
			if readErr != nil {
				slog.Warn("failed to read document body", "key", *obj.Key, "error", readErr)
				continue
			}
			name := strings.TrimSuffix(strings.TrimPrefix(*obj.Key, prefix), ".yaml")
			etag := ""
			if getOut.ETag != nil {
				etag = *getOut.ETag
			}
			docs = append(docs, Document{Type: docType, Name: name, Body: data, Revision: etag})
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return docs, nil
}

func (s *S3Store) GetStackInstance(ctx context.Context, name string) (catalog.StackInstance, error) {
	key := s.instanceKey(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFoundErr(err) {
			return catalog.StackInstance{}, stackerrors.NotFound(string(catalog.DocTypeStackInstance), name)
		}
		return catalog.StackInstance{}, stackerrors.Transient(fmt.Errorf("fetching s3://%s/%s: %w", s.bucket, key, err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return catalog.StackInstance{}, fmt.Errorf("reading s3://%s/%s body: %w", s.bucket, key, err)
	}

	var inst catalog.StackInstance
	if err := decodeYAML(data, &inst); err != nil {
		return catalog.StackInstance{}, fmt.Errorf("decoding stack instance %q: %w", name, err)
	}
	return inst, nil
}

func (s *S3Store) ListStackInstances(ctx context.Context) ([]catalog.StackInstance, error) {
	prefix := s.prefix + "stack_instances/"
	var instances []catalog.StackInstance
	var continuationToken *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, stackerrors.Transient(fmt.Errorf("listing s3://%s/%s: %w", s.bucket, prefix, err))
		}

		for _, obj := range out.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".yaml") {
				continue
			}
			getOut, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: obj.Key})
			if err != nil {
				slog.Warn("failed to fetch stack instance from S3", "key", *obj.Key, "error", err)
				continue
			}
			data, readErr := io.ReadAll(getOut.Body)
			getOut.Body.Close()
			if readErr != nil {
				slog.Warn("failed to read stack instance body", "key", *obj.Key, "error", readErr)
				continue
			}
			var inst catalog.StackInstance
			if err := decodeYAML(data, &inst); err != nil {
				slog.Warn("failed to decode stack instance", "key", *obj.Key, "error", err)
				continue
			}
			instances = append(instances, inst)
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return instances, nil
}

func (s *S3Store) WriteStackInstance(ctx context.Context, instance *catalog.StackInstance) error {
	existing, err := s.GetStackInstance(ctx, instance.Name)
	if err == nil {
		if instance.Version != 0 && instance.Version != existing.Version {
			return stackerrors.Conflict(instance.Name)
		}
		instance.Version = existing.Version + 1
	} else if stackerrors.Is(err, stackerrors.KindNotFound) {
		instance.Version = 1
	} else {
		return err
	}

	data, err := encodeYAML(instance)
	if err != nil {
		return fmt.Errorf("encoding stack instance %q: %w", instance.Name, err)
	}

	key := s.instanceKey(instance.Name)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(string(data)),
	})
	if err != nil {
		return stackerrors.Transient(fmt.Errorf("writing s3://%s/%s: %w", s.bucket, key, err))
	}
	return nil
}

func (s *S3Store) DeleteStackInstance(ctx context.Context, name string) error {
	key := s.instanceKey(name)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return stackerrors.Transient(fmt.Errorf("deleting s3://%s/%s: %w", s.bucket, key, err))
	}
	return nil
}

func (s *S3Store) Close() error { return nil }

func isNotFoundErr(err error) bool {
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}
