// Package accesslog - parse.go turns raw lines into Records.
package accesslog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// prefixRE matches the head of a combined-format line:
// remote_addr, remote_user, time_local, request, status, body_bytes_sent.
var prefixRE = regexp.MustCompile(
	`^(\S+) \S+ (\S+) \[([^\]]+)\] "([^"]*)" (\d{3}) (\d+|-)`)

// extrasRE matches the key:value fields the proxy appends after the
// combined part. Searched, not anchored, so referer/user-agent and any
// custom fields between the two sections do not matter. upstream_status,
// upstream_addr and upstream_response_time are list-valued on retried
// requests ("502, 200"), so they use lazy captures instead of \S+.
var extrasRE = regexp.MustCompile(
	`pool:(\S+)\s+release:(\S+)\s+upstream_status:(.+?)\s+upstream_addr:(.+?)\s+request_time:(\S+)\s+upstream_response_time:(.+?)\s*$`)

// Parse converts one raw log line into a Record. Lines that do not match
// either accepted shape return an error wrapping ErrMalformed; callers skip
// them and keep consuming.
func Parse(line string) (Record, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Record{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	if trimmed[0] == '{' {
		return parseJSON(trimmed)
	}
	return parseCombined(trimmed)
}

// parseCombined handles the combined format with key:value extras.
func parseCombined(line string) (Record, error) {
	prefix := prefixRE.FindStringSubmatch(line)
	if prefix == nil {
		return Record{}, fmt.Errorf("%w: no combined prefix", ErrMalformed)
	}
	extras := extrasRE.FindStringSubmatch(line)
	if extras == nil {
		return Record{}, fmt.Errorf("%w: missing upstream fields", ErrMalformed)
	}

	ts, err := time.Parse(TimeLayout, prefix[3])
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, prefix[3])
	}

	// The prefix status is guaranteed numeric by the pattern.
	proxyStatus, _ := strconv.Atoi(prefix[5])

	method, path := splitRequestLine(prefix[4])

	rec := Record{
		Time:         ts,
		Client:       prefix[1],
		Method:       method,
		Path:         path,
		Status:       resolveStatus(extras[3], proxyStatus),
		BytesSent:    parseBytes(prefix[6]),
		Upstream:     stringOrDash(lastListEntry(extras[4])),
		Pool:         extras[1],
		Release:      extras[2],
		RequestTime:  parseSeconds(extras[5]),
		UpstreamTime: parseSeconds(extras[6]),
	}
	return rec, nil
}

// parseJSON handles one-object-per-line logs. JSON fields are
// self-describing, so absent optional fields default to "-" instead of
// failing the whole line; only an unresolvable status is fatal.
func parseJSON(line string) (Record, error) {
	if !gjson.Valid(line) {
		return Record{}, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}

	proxyStatus := int(gjson.Get(line, "status").Int())
	status := resolveStatus(gjson.Get(line, "upstream_status").String(), proxyStatus)
	if status == 0 {
		return Record{}, fmt.Errorf("%w: no usable status", ErrMalformed)
	}

	method := gjson.Get(line, "method").String()
	path := gjson.Get(line, "uri").String()
	if method == "" && path == "" {
		method, path = splitRequestLine(gjson.Get(line, "request").String())
	}

	var ts time.Time
	if raw := gjson.Get(line, "time_iso8601").String(); raw != "" {
		ts, _ = time.Parse(time.RFC3339, raw)
	}

	rec := Record{
		Time:         ts,
		Client:       stringOrDash(gjson.Get(line, "remote_addr").String()),
		Method:       method,
		Path:         path,
		Status:       status,
		BytesSent:    gjson.Get(line, "body_bytes_sent").Int(),
		Upstream:     stringOrDash(lastListEntry(gjson.Get(line, "upstream_addr").String())),
		Pool:         stringOrDash(gjson.Get(line, "pool").String()),
		Release:      stringOrDash(gjson.Get(line, "release").String()),
		RequestTime:  gjson.Get(line, "request_time").Float(),
		UpstreamTime: parseSeconds(gjson.Get(line, "upstream_response_time").String()),
	}
	return rec, nil
}

// resolveStatus picks the effective status code. $upstream_status may be a
// retry list ("502, 200" or "502 : 200"); the final entry is the upstream
// that actually produced the response, so it wins when numeric. Otherwise
// the proxy's own status applies (upstream "-" means no upstream was
// involved at all).
func resolveStatus(upstream string, proxyStatus int) int {
	if last := lastListEntry(upstream); last != "" {
		if code, err := strconv.Atoi(last); err == nil {
			return code
		}
	}
	return proxyStatus
}

// lastListEntry returns the final entry of a list-valued proxy variable.
// Retried requests separate entries with commas and internal redirects join
// groups with " : "; the last entry always describes the response the client
// actually received.
func lastListEntry(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// splitRequestLine splits `$request` ("GET /path HTTP/1.1") into method and
// path. Garbage request lines (scanners, truncated requests) yield empty
// values rather than an error.
func splitRequestLine(request string) (method, path string) {
	parts := strings.Fields(request)
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func parseBytes(s string) int64 {
	if s == "-" {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// parseSeconds parses a seconds value that may itself be a retry list or "-".
func parseSeconds(s string) float64 {
	last := lastListEntry(s)
	if last == "" || last == "-" {
		return 0
	}
	v, _ := strconv.ParseFloat(last, 64)
	return v
}

func stringOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
