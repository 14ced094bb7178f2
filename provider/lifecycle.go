package provider

import "context"

// Initializable is implemented by providers that verify connectivity after
// construction (ping a database, check a bucket). The compiler calls Init
// once per instance before the graph is handed to the engine.
type Initializable interface {
	Init(ctx context.Context) error
}

// Closeable is implemented by providers that hold connections or files. The
// compiled graph closes every instance it created exactly once.
type Closeable interface {
	Close(ctx context.Context) error
}

// Init calls p.Init if p is Initializable.
func Init(ctx context.Context, p Provider) error {
	if i, ok := p.(Initializable); ok {
		return i.Init(ctx)
	}
	return nil
}

// Close calls p.Close if p is Closeable.
func Close(ctx context.Context, p Provider) error {
	if c, ok := p.(Closeable); ok {
		return c.Close(ctx)
	}
	return nil
}
