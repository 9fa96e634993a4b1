package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/saga-coordinator/api/responses"
	pkgerrors "github.com/angelmondragon/saga-coordinator/pkg/errors"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so net/http can abort the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					writePanic(w, r, logg, rec)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writePanic(w http.ResponseWriter, r *http.Request, logg *logger.Logger, rec any) {
	ctx := r.Context()
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"panic": fmt.Sprint(rec), "path": r.URL.Path})
	}
	err := pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("panic: %v", rec), "handler panicked")
	responses.WriteError(ctx, logg, w, err)
}
