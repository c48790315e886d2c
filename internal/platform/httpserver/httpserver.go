// Package httpserver builds the signet API server. Timeouts are derived from
// the longest handler budget so a slow document generation is cut off by its
// own context before the connection's write deadline fires.
package httpserver

import (
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 5 * time.Second
	// Request bodies are small JSON documents; variables are capped well
	// below a megabyte.
	readTimeout     = 15 * time.Second
	idleTimeout     = 60 * time.Second
	minWriteTimeout = 30 * time.Second
	// writeSlack covers audit and event publishing after the handler budget.
	writeSlack = 5 * time.Second
)

// New builds the server. handlerBudget is the longest deadline a handler
// applies to its own work; zero keeps the default write timeout.
func New(addr string, handler http.Handler, handlerBudget time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      WriteTimeout(handlerBudget),
		IdleTimeout:       idleTimeout,
	}
}

// WriteTimeout leaves room for writing the response after the handler budget
// is spent.
func WriteTimeout(handlerBudget time.Duration) time.Duration {
	return max(minWriteTimeout, handlerBudget+writeSlack)
}
