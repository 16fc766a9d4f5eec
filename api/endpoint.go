package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geopods/podflow/internal/cache"
	"github.com/geopods/podflow/internal/graphdef"
	"github.com/geopods/podflow/internal/metrics"
)

// Endpoint holds the per-request collaborators every handler needs: the
// Builder that turns a request's graph.Definition into a live graph.Node
// tree, the §6 cache (nil disables caching; a cache size of zero turns
// caching off entirely), and an optional Metrics instance for cache
// hit/miss counters.
type Endpoint struct {
	Builder *graphdef.Builder
	Cache   *cache.Cache
	Metrics *metrics.Metrics
}

func prepareRequestLogging(ctx *gin.Context, request interface{}) {
	requestJSON, _ := json.Marshal(request)
	ctx.Set("request", string(requestJSON))
}

// Health godoc
// @Summary  Report liveness
// @Produce  plain
// @Success  200 {string} string "I am up and running"
// @Router   /  [get]
func (e *Endpoint) Health(ctx *gin.Context) {
	ctx.String(http.StatusOK, "I am up and running")
}

func parsePostRequest(ctx *gin.Context, request interface{}) error {
	return ctx.ShouldBindJSON(request)
}

// GraphPost godoc
// @Summary  Validate a node graph definition and report what it advertises
// @Tags     graph
// @Param    body  body  GraphRequest  True  "Request parameters"
// @Accept   application/json
// @Produce  json
// @Success  200 {object} GraphResponse
// @Failure  400 {object} map[string]string "Request is invalid"
// @Router   /graph  [post]
func (e *Endpoint) GraphPost(ctx *gin.Context) {
	var request GraphRequest
	if err := parsePostRequest(ctx, &request); err != nil {
		abortOnError(ctx, &invalidRequest{err})
		return
	}
	prepareRequestLogging(ctx, request)

	node, err := e.Builder.Build(request.Graph)
	if abortOnError(ctx, err) {
		return
	}

	found, err := node.FindCoordinates(ctx.Request.Context())
	if abortOnError(ctx, err) {
		return
	}

	resp := GraphResponse{Coordinates: make([]json.RawMessage, len(found))}
	for i, cs := range found {
		encoded, err := graphdef.EncodeCoordinates(cs)
		if abortOnError(ctx, err) {
			return
		}
		resp.Coordinates[i] = encoded
	}
	ctx.JSON(http.StatusOK, resp)
}

// EvalPost godoc
// @Summary  Evaluate a node graph over a set of request coordinates
// @Tags     eval
// @Param    body  body  EvalRequest  True  "Request parameters"
// @Accept   application/json
// @Produce  multipart/mixed
// @Success  200 {object} EvalMetadata "(metadata part; a raw float32 buffer part follows)"
// @Failure  400 {object} map[string]string "Request is invalid"
// @Failure  502 {object} map[string]string "An upstream source was unavailable"
// @Router   /eval  [post]
func (e *Endpoint) EvalPost(ctx *gin.Context) {
	var request EvalRequest
	if err := parsePostRequest(ctx, &request); err != nil {
		abortOnError(ctx, &invalidRequest{err})
		return
	}
	prepareRequestLogging(ctx, request)

	requestCoords, err := graphdef.DecodeCoordinates(request.Coordinates)
	if abortOnError(ctx, err) {
		return
	}

	defJSON, err := graphdef.Encode(request.Graph)
	if abortOnError(ctx, err) {
		return
	}
	canonicalCoordsJSON, err := graphdef.EncodeCoordinates(requestCoords)
	if abortOnError(ctx, err) {
		return
	}
	fingerprint := cache.Fingerprint(defJSON, canonicalCoordsJSON)

	if e.Cache != nil {
		if entry, err := e.Cache.Get(fingerprint); err == nil && entry.Kind == cache.KindUnitsArray {
			ctx.Set("cache-hit", true)
			e.observeCache("hit")
			abortOnError(ctx, writeResponse(ctx, entry.Array))
			return
		}
		e.observeCache("miss")
	}

	node, err := e.Builder.Build(request.Graph)
	if abortOnError(ctx, err) {
		return
	}

	start := time.Now()
	result, err := node.Eval(ctx.Request.Context(), requestCoords, nil)
	if abortOnError(ctx, err) {
		return
	}
	_ = start // reserved for a per-eval duration metric once a stable label set is chosen

	if e.Cache != nil {
		e.Cache.Put(fingerprint, cache.Entry{Kind: cache.KindUnitsArray, Array: result}, true)
	}

	abortOnError(ctx, writeResponse(ctx, result))
}

func (e *Endpoint) observeCache(outcome string) {
	if e.Metrics != nil {
		e.Metrics.ObserveCacheOutcome(outcome)
	}
}

// invalidRequest wraps a JSON-bind failure so httpStatusCode maps malformed
// request bodies to 400 through its own case, without internal/errs needing
// to know about gin's own bind errors.
type invalidRequest struct{ err error }

func (e *invalidRequest) Error() string { return e.err.Error() }
