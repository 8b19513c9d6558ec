package gateway

import (
	"errors"
	"io"
	"net/http"

	"chatrelay/engine"
	"chatrelay/models"

	"github.com/gin-gonic/gin"
)

// maxRequestBodyBytes bounds the inbound chat-completion payload, mirroring
// the teacher's ChatCompletionsHandler http.MaxBytesReader guard.
const maxRequestBodyBytes = 100 << 20 // 100MB

// Gateway wires the client-facing HTTP surface onto a Request Engine.
type Gateway struct {
	engine *engine.Engine
}

func NewGateway(eng *engine.Engine) *Gateway {
	return &Gateway{engine: eng}
}

// RegisterRoutes attaches the client proxy surface under group. The caller
// decides whether middleware.VerifyBearer() is applied to group.
func (g *Gateway) RegisterRoutes(group gin.IRoutes) {
	group.POST("/chat/completions", g.ChatCompletions)
	group.GET("/health", g.Health)
}

// ChatCompletions is the sole client-facing operation: it forwards the
// request body to the Request Engine and lets the engine drive the
// credential loop, streaming, and error envelopes. It never inspects the
// request beyond the streaming flag the engine itself extracts.
func (g *Gateway) ChatCompletions(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodyBytes)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		if isMaxBytesError(err) {
			if Log != nil {
				Log.Warnf("gateway: failed reading request body: %v", err)
			}
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "request body exceeds the allowed size",
				Type:    models.ErrTypePayloadTooLarge,
			}})
			return
		}
		// The client most likely aborted mid-upload or hit a read timeout;
		// this is not logged, and the error is written anyway in case the
		// connection can still take it.
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "request body could not be read: " + err.Error(),
			Type:    models.ErrTypeRequestAborted,
		}})
		return
	}

	if len(body) == 0 || !looksLikeJSONObject(body) {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "request body must be a JSON object",
			Type:    models.ErrTypeInvalidJSON,
		}})
		return
	}

	ctx := c.Request.Context()
	disconnected := func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	sink := newGinSink(c)
	g.engine.Forward(ctx, body, sink, disconnected)
}

// Health answers the load balancer / operator probe with the current
// IP-blocked state, per spec.md §6.
func (g *Gateway) Health(c *gin.Context) {
	c.JSON(http.StatusOK, g.engine.HealthSnapshot())
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func looksLikeJSONObject(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
