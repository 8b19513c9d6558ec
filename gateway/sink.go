// Package gateway terminates the client HTTP connection: bearer auth (via
// middleware), body-size limits, socket timeouts, and disconnect-signal
// wiring into the Request Engine. Generalizes the teacher's
// ChatCompletionsHandler SSE setup and sendErrorResponse JSON/SSE duality.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"chatrelay/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// ginSink implements engine.ResponseSink over a gin.Context.
type ginSink struct {
	c             *gin.Context
	streamStarted bool
}

func newGinSink(c *gin.Context) *ginSink {
	return &ginSink{c: c}
}

func (s *ginSink) WriteJSON(status int, body []byte) {
	s.c.Data(status, "application/json; charset=utf-8", body)
}

func (s *ginSink) BeginStream(status int, upstreamHeaders map[string][]string) {
	s.streamStarted = true
	w := s.c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(status)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *ginSink) WriteChunk(line []byte) error {
	w := s.c.Writer
	if _, err := w.Write(line); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (s *ginSink) EndStream() {}

func (s *ginSink) StreamStarted() bool {
	return s.streamStarted
}

// WriteError emits the OpenAI-style error envelope. Once a stream has
// begun, headers and status are already committed, so the error degrades
// to an SSE data event instead of a fresh JSON response — mirroring the
// teacher's sendErrorResponse's stream-vs-JSON duality.
func (s *ginSink) WriteError(status int, resp models.ErrorResponse) {
	if s.streamStarted {
		b, err := json.Marshal(resp)
		if err != nil {
			return
		}
		w := s.c.Writer
		fmt.Fprintf(w, "%s%s\n\n", models.SSEDataPrefix, b)
		// Terminate the stream explicitly, mirroring the teacher's
		// sendErrorResponse: a client reading line-by-line should not be
		// left waiting on a [DONE] that will never arrive.
		fmt.Fprintf(w, "%s%s\n\n", models.SSEDataPrefix, models.SSEDonePayload)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		return
	}
	s.c.JSON(status, resp)
}
