package proxy

import (
	"net/url"
	"strings"
)

// ResolvePath turns an inbound request path into the path the backend
// sees. It strips apiPrefix when the path begins with it segment-wise,
// then strips serviceName when it is the first remaining segment.
// Matching is by whole segment, so "orders" never matches inside
// "orders-v2" and "/api/v1" never matches "/api/v10". Segments are
// compared percent-decoded, as the router matched them, while the
// remainder keeps its escaped form. Empty segments are
// dropped, which keeps "//" out of the result; a trailing slash on a
// non-empty remainder is kept. The result always starts with "/".
func ResolvePath(apiPrefix, serviceName, rawPath string) string {
	rawPath = strings.TrimSpace(rawPath)
	segments := splitSegments(rawPath)

	if prefix := splitSegments(apiPrefix); hasSegmentPrefix(segments, prefix) {
		segments = segments[len(prefix):]
	}
	if len(segments) > 0 && segmentIs(segments[0], serviceName) {
		segments = segments[1:]
	}

	if len(segments) == 0 {
		return "/"
	}

	out := "/" + strings.Join(segments, "/")
	if strings.HasSuffix(rawPath, "/") {
		out += "/"
	}
	return out
}

// TargetURL joins base with backendPath, dropping trailing slashes from
// the base path, and appends rawQuery byte for byte.
func TargetURL(base *url.URL, backendPath, rawQuery string) string {
	origin := *base
	origin.Path = ""
	origin.RawPath = ""
	origin.RawQuery = ""
	origin.ForceQuery = false
	origin.Fragment = ""
	origin.RawFragment = ""

	var sb strings.Builder
	sb.WriteString(origin.String())
	sb.WriteString(strings.TrimRight(base.EscapedPath(), "/"))
	sb.WriteString(backendPath)
	if rawQuery != "" {
		sb.WriteByte('?')
		sb.WriteString(rawQuery)
	}
	return sb.String()
}

func splitSegments(p string) []string {
	parts := strings.Split(p, "/")
	segments := parts[:0]
	for _, s := range parts {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func hasSegmentPrefix(segments, prefix []string) bool {
	if len(prefix) > len(segments) {
		return false
	}
	for i := range prefix {
		if !segmentIs(segments[i], prefix[i]) {
			return false
		}
	}
	return true
}

// segmentIs reports whether the escaped segment seg decodes to want.
func segmentIs(seg, want string) bool {
	if seg == want {
		return true
	}
	decoded, err := url.PathUnescape(seg)
	return err == nil && decoded == want
}
