package s3

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kbukum/flowkit/provider"
)

// DefaultRegion is used when neither params nor the environment name one.
const DefaultRegion = "us-east-1"

// Config locates a bucket. Keys come from connection credentials, never from
// node params.
type Config struct {
	Bucket string
	Region string
	// Endpoint points at an S3-compatible service such as MinIO.
	Endpoint  string
	PathStyle bool
	Keys      StaticKeys
}

// StaticKeys are an access key pair. The zero value falls back to the default
// AWS credential chain.
type StaticKeys struct {
	ID      string
	Secret  string
	Session string
}

func keysFrom(creds provider.Credentials) StaticKeys {
	return StaticKeys{
		ID:      creds.Get(CredAccessKeyID),
		Secret:  creds.Get(CredSecretAccessKey),
		Session: creds.Get(CredSessionToken),
	}
}

func (k StaticKeys) set() bool { return k.ID != "" && k.Secret != "" }

// String never prints the secret.
func (k StaticKeys) String() string {
	if k.ID == "" {
		return "default-chain"
	}
	return k.ID + ":***"
}

// ApplyDefaults sets the region.
func (c *Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if c.Region == "" {
		errs = append(errs, errors.New("region is required"))
	}
	if (c.Keys.ID == "") != (c.Keys.Secret == "") {
		errs = append(errs, fmt.Errorf("credentials %q and %q must be set together", CredAccessKeyID, CredSecretAccessKey))
	}
	if len(errs) > 0 {
		return fmt.Errorf("s3: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) loadOptions() []func(*awsconfig.LoadOptions) error {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.Keys.set() {
		creds := credentials.NewStaticCredentialsProvider(c.Keys.ID, c.Keys.Secret, c.Keys.Session)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}
	return opts
}

func (c *Config) clientOptions(o *awss3.Options) {
	o.UsePathStyle = c.PathStyle
	if c.Endpoint == "" {
		return
	}
	o.BaseEndpoint = aws.String(c.Endpoint)
	// Compatible services rarely accept the newer checksum headers.
	o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
}
