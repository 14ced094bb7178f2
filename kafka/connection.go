package kafka

import (
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// newDialer returns the dialer behind partition lookups and readers.
func newDialer(cfg Config) (*kafkago.Dialer, error) {
	d := &kafkago.Dialer{Timeout: cfg.DialTimeout, DualStack: true}
	tc, err := cfg.TLS.Build()
	if err != nil {
		return nil, err
	}
	d.TLS = tc
	if cfg.SASL.Enabled() {
		if d.SASLMechanism, err = cfg.SASL.mechanism(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// newTransport returns the writer's transport. It shares the dialer's TLS
// and SASL settings.
func newTransport(cfg Config) (*kafkago.Transport, error) {
	t := &kafkago.Transport{
		DialTimeout: cfg.DialTimeout,
		IdleTimeout: cfg.IdleTimeout,
		MetadataTTL: cfg.MetadataTTL,
	}
	tc, err := cfg.TLS.Build()
	if err != nil {
		return nil, err
	}
	t.TLS = tc
	if cfg.SASL.Enabled() {
		if t.SASL, err = cfg.SASL.mechanism(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (s SASL) mechanism() (sasl.Mechanism, error) {
	switch s.Mechanism {
	case "PLAIN":
		return plain.Mechanism{Username: s.Username, Password: s.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, s.Username, s.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, s.Username, s.Password)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", s.Mechanism)
	}
}

func compressionCodec(name string) (kafkago.Compression, error) {
	switch name {
	case "none", "":
		return 0, nil
	case "gzip":
		return kafkago.Gzip, nil
	case "snappy":
		return kafkago.Snappy, nil
	case "lz4":
		return kafkago.Lz4, nil
	case "zstd":
		return kafkago.Zstd, nil
	default:
		return 0, fmt.Errorf("unsupported compression %q", name)
	}
}
