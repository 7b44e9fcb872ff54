package handler

import (
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/sakif/chronicle/internal/apperror"
)

// Methods dispatches a single path on the request method. Any method
// without an entry gets a 405 with an Allow header listing the others.
//
//	r.Handle("/entries", handler.Methods{
//	    http.MethodGet:  entries.HandleList,
//	    http.MethodPost: entries.HandleCreate,
//	})
//
// Mount it after authentication so an anonymous request to a protected
// path is a 401 whatever its method.
type Methods map[string]http.HandlerFunc

func (m Methods) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := m[r.Method]; ok {
		h(w, r)
		return
	}
	w.Header().Set("Allow", m.allow())
	WriteError(w, r, apperror.MethodNotAllowed())
}

func (m Methods) allow() string {
	return strings.Join(slices.Sorted(maps.Keys(m)), ", ")
}
