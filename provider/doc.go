// Package provider defines how workflows reach external systems.
//
// A provider is created by a Factory from decrypted Credentials and the
// node's params, and implements Source, Sink, or both:
//
//	reg := provider.NewRegistry()
//	mem := provider.NewMemory()
//	reg.Register("memory", mem.Factory)
//	reg.Register("jsonl", provider.JSONLinesFactory)
//
//	factory, err := reg.Resolve("memory")
//	p, err := factory(ctx, creds, params)
//	src := p.(provider.Source)
//	it, err := src.Read(ctx, resumeCursor)
//
// Sources hand out cursors with every item. A cursor is opaque to everything
// but the provider that issued it; passing it back to Read resumes strictly
// after that item.
//
// Capabilities tell the compiler whether one instance may be shared by
// several nodes (ConcurrencySafe) and which backoff to use for transient
// failures. WithSourceRetry and WithSinkRetry apply that backoff.
//
// Optional lifecycle:
//   - Initializable: providers that verify connectivity after construction
//   - Closeable: providers holding connections or files
package provider
