// Package guard implements composable request authorization stages and the
// chain that evaluates them in order.
package guard

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tracechain/tracechain/internal/auth"
	"github.com/tracechain/tracechain/internal/security"
)

// Request is the transport-independent view of an inbound request that
// stages decide on.
type Request struct {
	Principal  *auth.Principal
	Method     string
	Path       string
	URL        string
	SourceIP   string
	UserAgent  string
	Header     http.Header
	Params     map[string]string
	ReceivedAt time.Time
}

// Param returns the named route parameter.
func (r *Request) Param(name string) string {
	if r == nil || r.Params == nil {
		return ""
	}
	return r.Params[name]
}

// NewRequest snapshots r, including chi route parameters and the principal
// attached by the authentication middleware.
func NewRequest(r *http.Request) *Request {
	req := &Request{
		Method:     r.Method,
		SourceIP:   security.ClientIP(r),
		UserAgent:  r.UserAgent(),
		Header:     r.Header,
		Params:     make(map[string]string),
		ReceivedAt: time.Now(),
	}
	if r.URL != nil {
		req.Path = r.URL.Path
		req.URL = r.URL.RequestURI()
	}
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		req.Principal = principal
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if i < len(rctx.URLParams.Values) {
				req.Params[key] = rctx.URLParams.Values[i]
			}
		}
	}
	return req
}

func (r *Request) requestInfo() security.RequestInfo {
	info := security.RequestInfo{
		SourceIP:  r.SourceIP,
		UserAgent: r.UserAgent,
		Endpoint:  r.Path,
		Method:    r.Method,
	}
	if r.Principal != nil {
		info.UserID = r.Principal.ID
	}
	return info
}
