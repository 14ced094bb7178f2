// Package kafka provides the "kafka" provider: a source that reads a topic's
// partitions up to their high watermarks and a sink backed by a kafka-go
// Writer.
//
// Source cursors record the next offset of every partition read so far, in
// the form "0:42,1:17". A run resumed from such a cursor continues each
// partition where it stopped.
//
// Node params:
//
//	provider: kafka
//	params:
//	  brokers: ["localhost:9092"]
//	  topic: events
//	  partitions: [0, 1]     # optional, all partitions by default
//	  format: json           # json, text or bytes
//	  key_field: user_id     # sink only, message key taken from a payload field
//	  sasl_mechanism: PLAIN  # used when the connection carries a username
//	  tls: {enabled: true, ca_file: /etc/ssl/kafka-ca.pem}
//
// Connection credentials may carry "username" and "password".
package kafka
