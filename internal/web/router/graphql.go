package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/mirkwood-lang/mirkwood/internal/executor"
	webcontext "github.com/mirkwood-lang/mirkwood/internal/web/context"
)

// MaxBodyBytes caps a GraphQL request body
const MaxBodyBytes = 1 << 20

// errEmptyQuery is returned for a body without a query
var errEmptyQuery = errors.New("request has no query")

type graphqlHandler struct {
	exec   Executor
	logger *zap.Logger
}

// ServeHTTP decodes {"query", "operationName", "variables"} and writes the
// result. Field and document errors still answer 200; only a body that is
// not a GraphQL request answers 400.
func (h *graphqlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		h.logger.Debug("bad graphql request",
			zap.String("request_id", webcontext.GetRequestID(r.Context())),
			zap.Error(err))
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.exec.Execute(r.Context(), req)
	writeJSON(w, http.StatusOK, res)
}

func decodeRequest(r *http.Request) (executor.Request, error) {
	var req executor.Request

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return req, fmt.Errorf("unsupported content type %q", ct)
		}
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Query == "" {
		return req, errEmptyQuery
	}
	return req, nil
}

func writeErrors(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"errors": []map[string]string{{"message": message}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
