// Package storage turns an object store into a flowkit source and sink.
//
// Backends implement Storage; NewProvider wraps one as a provider that lists
// objects in key order and emits one item per object. The object key is the
// item cursor, so a resumed read continues after the last checkpointed key.
//
// # Backends
//
//   - storage/s3: Amazon S3 and S3-compatible storage (provider id "s3")
//   - storage/local: a local directory (provider id "fs")
//
// # Params
//
// Both providers accept the common object params next to their own:
//
//	params:
//	  prefix: "incoming/"
//	  format: bytes          # bytes, text or json
//	  page_size: 500
//	  max_object_size: 104857600
//	  key_field: id          # sink only
//	  extension: ".json"     # sink only, for generated keys
package storage
