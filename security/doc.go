// Package security builds client TLS settings for the network-backed stores
// and providers (kafka brokers, redis).
//
//	tlsCfg := security.TLSConfig{Enabled: true, CAFile: "/etc/flowkit/ca.pem"}
//	tc, err := tlsCfg.Build() // nil when Enabled is false
package security
