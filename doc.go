// Package unillm provides a single interface over multiple LLM
// providers, with alias-based model selection, availability-aware
// routing with fallback, retry with exponential backoff, tool calling,
// streaming, and multi-turn chat sessions.
//
// A minimal request:
//
//	client, err := unillm.New(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	resp, err := client.Ask(ctx, "Summarize this file", unillm.WithModel("@fast"))
//
// For one-off use the package-level entry points run against a
// process-wide default client, built on first use and replaceable at
// any time with Configure:
//
//	if err := unillm.Configure(unillm.WithDefaultModel("@best")); err != nil {
//		log.Fatal(err)
//	}
//	resp, err := unillm.Ask(ctx, "one-off question")
//
// Model references are either concrete model IDs or @aliases such as
// @fast, @best, @cheap, @coding and @local; aliases resolve against the
// built-in catalog plus any configured extras. When the preferred
// backend is down or failing, the request falls back through the
// configured backend order, substituting each provider's closest
// equivalent model.
//
// Streaming:
//
//	stream := client.Stream(ctx, "Write a haiku")
//	for {
//		chunk, err := stream.Recv()
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		fmt.Print(chunk.Content)
//	}
//
// Failures carry types from package aierrors; classify them with
// errors.As rather than string matching.
package unillm
