package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for exchange observability spans and metrics.
var (
	AttrIdeaID         = attribute.Key("idea.id")
	AttrExchangeStatus = attribute.Key("exchange.status")

	AttrSessionResumed = attribute.Key("agent.session_resumed")
	AttrStopReason     = attribute.Key("agent.stop_reason")
	AttrStreamEvents   = attribute.Key("agent.stream_events")
	AttrTokensInput    = attribute.Key("agent.tokens.input")
	AttrTokensOutput   = attribute.Key("agent.tokens.output")

	AttrToolCount = attribute.Key("agent.tool_count")

	AttrToolName         = attribute.Key("tool.name")
	AttrToolStatus       = attribute.Key("tool.status")
	AttrToolResultLength = attribute.Key("tool.result_length")
)
