// Package compiler turns a workflow definition into an executable graph.
//
// Compile validates the definition, resolves cache slots into direct edges,
// binds every node to a provider instance, transform, or predicate, and
// orders the nodes topologically. Every error it returns is a definition
// error; nothing it reports is worth retrying.
//
//	g, err := compiler.Compile(ctx, wf, compiler.Options{
//		Providers:   providers,
//		Processors:  processor.NewBuiltinRegistry(),
//		Credentials: resolver,
//	})
//	if err != nil {
//		return err
//	}
//	defer g.Close(ctx)
package compiler
