// Package generator wires the content agents into the blog workflow graph
// and runs it for one request at a time.
//
// A Generator is safe for concurrent use. Each run gets its own agents, a
// usage meter over the shared chat provider, and a run id that keys its
// checkpoints and events.
//
//	gen, err := generator.New(chat,
//		generator.WithSearcher(searchClient),
//		generator.WithOutputDir("./output"),
//	)
//	out, err := gen.Generate(ctx, generator.Request{Topic: "Redis caching"})
package generator
