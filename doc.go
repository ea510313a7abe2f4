// Package longform generates long-form technical articles by driving a fixed
// graph of content steps over a shared, typed document state.
//
// The root package holds the provider-neutral vocabulary used everywhere else:
//
//   - [ChatProvider]: send a conversation, receive a complete or streamed reply
//   - [ImageProvider]: render an image from a text prompt
//   - [Error]: categorized errors that drive retry decisions
//
// The moving parts live in sub-packages:
//
//   - [github.com/spetersoncode/longform/state]: the shared document state
//   - [github.com/spetersoncode/longform/workflow]: graph, router and bounded loops
//   - [github.com/spetersoncode/longform/store]: checkpoint storage
//   - [github.com/spetersoncode/longform/task]: task progress and event broadcasting
//   - [github.com/spetersoncode/longform/agents]: the content-generation steps
//   - [github.com/spetersoncode/longform/generator]: a ready-to-run blog generator
//   - [github.com/spetersoncode/longform/pipeline]: the streamed transformation pipeline
//
// # Basic Usage
//
//	chat := openai.New(os.Getenv("OPENAI_API_KEY"))
//	gen := generator.New(chat)
//
//	result, err := gen.Generate(ctx, generator.Request{
//	    Topic:       "Redis caching strategies",
//	    ArticleType: state.ArticleTutorial,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.State.FinalMarkdown)
package longform
