// Package requestid mints the X-Request-Id values attached to every
// request the service handles.
package requestid

import "github.com/google/uuid"

// New returns a fresh request id in the same uuid format the domain ids
// use, so request ids grep cleanly next to run and artifact ids in logs.
func New() string {
	return uuid.NewString()
}
