package kafka

import (
	"fmt"
	"time"

	"github.com/kbukum/flowkit/security"
)

// Config is what one provider instance connects with. Factory builds it from
// node params and the connection's credentials.
type Config struct {
	Brokers []string
	TLS     security.TLSConfig
	SASL    SASL
	Writer  WriterConfig

	DialTimeout time.Duration
	// ReadWait bounds how long a partition reader waits for a fetch.
	ReadWait time.Duration
	// IdleTimeout and MetadataTTL tune the writer transport.
	IdleTimeout time.Duration
	MetadataTTL time.Duration
}

// SASL authenticates broker connections. It is off while Username is empty.
type SASL struct {
	Mechanism string // PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512
	Username  string
	Password  string
}

// Enabled reports whether connections authenticate.
func (s SASL) Enabled() bool { return s.Username != "" }

// WriterConfig tunes the sink's kafka-go Writer.
type WriterConfig struct {
	Compression  string // none, gzip, snappy, lz4 or zstd
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	// RequiredAcks is -1 (all in-sync replicas), 0 or 1.
	RequiredAcks int
}

func (c *Config) ApplyDefaults() {
	if c.SASL.Enabled() && c.SASL.Mechanism == "" {
		c.SASL.Mechanism = "PLAIN"
	}
	if c.Writer.Compression == "" {
		c.Writer.Compression = "snappy"
	}
	if c.Writer.BatchSize <= 0 {
		c.Writer.BatchSize = 100
	}
	if c.Writer.BatchTimeout <= 0 {
		c.Writer.BatchTimeout = 50 * time.Millisecond
	}
	if c.Writer.WriteTimeout <= 0 {
		c.Writer.WriteTimeout = 10 * time.Second
	}
	if c.Writer.RequiredAcks == 0 {
		c.Writer.RequiredAcks = -1
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReadWait <= 0 {
		c.ReadWait = 500 * time.Millisecond
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.MetadataTTL <= 0 {
		c.MetadataTTL = 6 * time.Second
	}
}

func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if c.SASL.Enabled() {
		if _, err := c.SASL.mechanism(); err != nil {
			return err
		}
	}
	switch c.Writer.RequiredAcks {
	case -1, 0, 1:
	default:
		return fmt.Errorf("required_acks must be -1, 0 or 1 (got %d)", c.Writer.RequiredAcks)
	}
	if _, err := compressionCodec(c.Writer.Compression); err != nil {
		return err
	}
	return c.TLS.Validate()
}
