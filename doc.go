// Package mica is the agent engine behind an idea-workspace application.
//
// Each idea is a logical conversation plus the domain state the agent can
// edit: notes, documents, a concept graph, and the source of a small
// generated web app. The engine drives an agent CLI subprocess through
// rounds of thinking and tool use, normalizes the provider's streaming
// wire protocol into a stable internal event stream, and reconstructs
// conversation history with the exact ordering and pairing the provider
// requires on replay. Cancellation, bounded retry, and a bounded
// self-correction loop (driven by runtime error reports from the external
// preview) are layered on top.
//
// # Quick Start
//
//	st := sqlite.New("mica.db")
//	if err := st.Init(ctx); err != nil {
//		// handle
//	}
//	reg := mica.NewRegistry(
//		document.New(st, ""),
//		graph.New(st),
//		note.New(st),
//	)
//	eng := mica.NewEngine(runner.New("mica-agent"), st,
//		mica.WithTools(reg),
//		mica.WithSystemPrompt("You develop ideas with the user."),
//	)
//
//	events, err := eng.StartExchange(ctx, ideaID, "sketch an outline")
//	for ev := range events {
//		// render ev
//	}
//
// # Core Interfaces
//
// The root package defines the contracts the subpackages implement:
//
//   - [SessionRunner]: one agent subprocess invocation per round (runner)
//   - [Store]: ideas, notes, documents, graph, snapshots, session ids
//     (store/sqlite, store/postgres)
//   - [Tool]: pluggable capability routed to the agent
//     (tools/document, tools/graph, tools/research, tools/note)
//   - [Tracer]: span boundaries for exchanges, rounds, and tool calls
//     (observer)
//
// See cmd/micad for the complete wired service.
package mica
