package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	webcontext "github.com/mirkwood-lang/mirkwood/internal/web/context"
)

// Recovery turns a panic in the handler into a 500 with a GraphQL shaped
// body: {"errors":[{"message":"internal server error"}]}
func Recovery(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					logger.Error("panic recovered",
						zap.String("request_id", webcontext.GetRequestID(r.Context())),
						zap.String("panic", fmt.Sprint(p)),
						zap.Stack("stack"))
					writeInternalError(w)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func writeInternalError(w http.ResponseWriter) {
	body, _ := json.Marshal(map[string]interface{}{
		"errors": []map[string]string{{"message": "internal server error"}},
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(body)
}
