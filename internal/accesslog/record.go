// Package accesslog parses reverse-proxy access log lines into records.
//
// DESIGN: Two line shapes are accepted:
//   - the combined format followed by key:value extras for the upstream
//     fields (pool, release, upstream_status, upstream_addr, request_time,
//     upstream_response_time), which is what the proxy writes by default
//   - one JSON object per line, for log_format escape=json deployments
//
// Parsing is total: a line that does not yield a usable record returns
// ErrMalformed and the caller skips it. The parser never terminates the
// stream; diagnostic counting happens upstream.
package accesslog

import (
	"errors"
	"time"
)

// ErrMalformed is returned for lines that cannot be turned into a Record.
var ErrMalformed = errors.New("accesslog: malformed line")

// TimeLayout is the proxy's $time_local layout.
const TimeLayout = "02/Jan/2006:15:04:05 -0700"

// Record is one parsed request. Immutable once constructed.
type Record struct {
	Time         time.Time // request timestamp from the log line
	Client       string    // remote address
	Method       string    // HTTP method, empty when the request line is unusable
	Path         string    // request path, empty when the request line is unusable
	Status       int       // effective status code (final upstream status, or the proxy's own)
	BytesSent    int64     // body bytes sent
	Upstream     string    // upstream address that served the request, "-" when none
	Pool         string    // upstream pool identifier, "-" when unknown
	Release      string    // release identifier, "-" when unknown
	RequestTime  float64   // total request time in seconds
	UpstreamTime float64   // upstream response time in seconds, 0 when none
}

// HasPool reports whether the record carries a known pool identifier.
func (r Record) HasPool() bool {
	return r.Pool != "" && r.Pool != "-"
}

// IsServerError reports whether the effective status is a 5xx.
func (r Record) IsServerError() bool {
	return r.Status >= 500 && r.Status < 600
}
