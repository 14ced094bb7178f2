// Package s3 implements storage.Storage on Amazon S3 and S3-compatible
// services and registers the "s3" provider.
package s3

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/storage"
	"github.com/kbukum/flowkit/validation"
)

// ProviderID is the registry id of the S3 provider.
const ProviderID = "s3"

// Credential keys read from the node's connection.
const (
	CredAccessKeyID     = "access_key_id"
	CredSecretAccessKey = "secret_access_key"
	CredSessionToken    = "session_token"
)

// Storage implements storage.Storage using Amazon S3 (or S3-compatible services).
type Storage struct {
	client *awss3.Client
	bucket string
}

// NewStorage connects to cfg.Bucket. Without static keys the default AWS
// credential chain is used.
func NewStorage(ctx context.Context, cfg *Config) (*Storage, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, cfg.loadOptions()...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	return &Storage{client: awss3.NewFromConfig(awsCfg, cfg.clientOptions), bucket: cfg.Bucket}, nil
}

// Upload writes data from reader to S3.
func (s *Storage) Upload(ctx context.Context, path string, reader io.Reader, contentType string) error {
	in := &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   reader,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return classify("s3 put "+path, err)
	}
	return nil
}

// Download returns a reader for the S3 object at the given path.
func (s *Storage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, classify("s3 get "+path, err)
	}
	return out.Body, nil
}

// List returns up to MaxKeys objects, following continuation tokens when S3
// returns a short truncated page.
func (s *Storage) List(ctx context.Context, opts storage.ListOptions) ([]storage.FileInfo, error) {
	input := &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(opts.Prefix),
	}
	if opts.StartAfter != "" {
		input.StartAfter = aws.String(opts.StartAfter)
	}

	var files []storage.FileInfo
	for {
		if opts.MaxKeys > 0 {
			input.MaxKeys = aws.Int32(int32(opts.MaxKeys - len(files)))
		}
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, classify("s3 list "+s.bucket, err)
		}
		for _, obj := range out.Contents {
			fi := storage.FileInfo{
				Path: aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				fi.LastModified = *obj.LastModified
			}
			files = append(files, fi)
		}
		if !aws.ToBool(out.IsTruncated) || (opts.MaxKeys > 0 && len(files) >= opts.MaxKeys) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	return files, nil
}

// classify maps SDK errors onto provider error classes. Throttling and
// server faults are transient, rejected keys are UNAUTHORIZED, and other API
// errors are permanent.
func classify(op string, err error) error {
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	var noKey *types.NoSuchKey
	if stderrors.As(err, &noKey) {
		return errors.NotFound("object", op).WithCause(err)
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "Throttling", "RequestTimeout", "ServiceUnavailable", "InternalError":
			return errors.Transient(op, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return errors.Unauthorized(op + ": " + apiErr.ErrorCode()).WithCause(err)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return errors.Transient(op, err)
		}
		return errors.Permanent(op, err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Transient(op, err)
	}
	return errors.ConnectionFailed("s3", err)
}

type params struct {
	storage.ObjectParams `json:",squash"`
	Bucket               string `json:"bucket" validate:"required"`
	Region               string `json:"region"`
	Endpoint             string `json:"endpoint" validate:"omitempty,url"`
	ForcePathStyle       bool   `json:"force_path_style"`
}

// Factory is the provider.Factory for "s3".
func Factory(ctx context.Context, creds provider.Credentials, raw map[string]any) (provider.Provider, error) {
	var p params
	if err := validation.Decode(raw, &p); err != nil {
		return nil, err
	}
	cfg := &Config{
		Bucket:    p.Bucket,
		Region:    p.Region,
		Endpoint:  p.Endpoint,
		PathStyle: p.ForcePathStyle,
		Keys:      keysFrom(creds),
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.InvalidParams(err.Error())
	}
	s, err := NewStorage(ctx, cfg)
	if err != nil {
		return nil, errors.ConnectionFailed("s3", err)
	}
	return storage.NewProvider(ProviderID, s, p.ObjectParams), nil
}

// RegisterProviders adds the S3 provider to reg.
func RegisterProviders(reg *provider.Registry) {
	reg.Register(ProviderID, Factory)
}

// compile-time check
var _ storage.Storage = (*Storage)(nil)
