// Package credentials resolves the connection references named by source and
// sink nodes into decrypted provider.Credentials.
//
// Sealed stores ciphertexts produced by Seal and decrypts them with
// ChaCha20-Poly1305 at compile time; the reference is bound as additional
// data, so a ciphertext copied under another reference fails to open.
//
//	sealed, _ := credentials.Seal(key, "warehouse", map[string]string{"dsn": dsn})
//	r, _ := credentials.NewSealed(key, map[string]string{"warehouse": sealed})
//	creds, err := r.Resolve(ctx, "warehouse")
//
// Static serves plaintext values and is meant for tests and local runs.
package credentials
