package engine

import "chatrelay/models"

// ResponseSink is the Engine's view of the client connection. The gateway
// package implements it over gin's ResponseWriter; tests can implement it
// over a buffer. Generalizes the teacher's direct c.JSON/c.Writer calls in
// ChatCompletionsHandler/processStreamingResponse into one seam.
type ResponseSink interface {
	// WriteJSON writes a complete non-streaming body with the given status.
	WriteJSON(status int, body []byte)

	// BeginStream flushes SSE headers. Called at most once, only after the
	// first upstream line has been read (or the upstream body ended), so an
	// upstream read error before the first byte still produces a clean JSON
	// error instead of an empty stream.
	BeginStream(status int, upstreamHeaders map[string][]string)

	// WriteChunk forwards one raw line from the upstream stream, flushing
	// immediately. Returns an error if the client connection is gone.
	WriteChunk(line []byte) error

	// EndStream marks normal stream completion.
	EndStream()

	// WriteError emits the OpenAI-style error envelope. If a stream has
	// already begun, it degrades to an SSE-safe form instead of writing a
	// second status line; otherwise it writes a plain JSON error body.
	WriteError(status int, resp models.ErrorResponse)

	// StreamStarted reports whether BeginStream has already been called.
	StreamStarted() bool
}
