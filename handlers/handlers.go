package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/upb/yapi/utils"
)

var candidateMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// NotFound renders unmatched routes as a 404 envelope
func NotFound(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteNotFound(w, r)
}

// MethodNotAllowed renders a 405 envelope listing the methods the path accepts
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	allowed := AllowedMethods(r)
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	_ = utils.WriteError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed",
		"The requested method is not allowed for this resource.", map[string]interface{}{"allowed": allowed})
}

// AllowedMethods asks the router for the methods that match the request path
func AllowedMethods(r *http.Request) []string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return nil
	}

	path := rctx.RoutePath
	if path == "" {
		path = r.URL.Path
	}

	var allowed []string
	for _, method := range candidateMethods {
		if rctx.Routes.Match(chi.NewRouteContext(), method, path) {
			allowed = append(allowed, method)
		}
	}
	return allowed
}
