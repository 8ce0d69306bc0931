package audio

import (
	"net/url"
	"strings"
)

// DefaultBaseURL is prefixed to relative source references.
const DefaultBaseURL = "/audio"

// ValidSource reports whether ref points at a supported audio file.
func ValidSource(ref string) bool {
	return ref != "" && CodecFromSource(ref) != ""
}

// ResolveSource turns a catalog source reference into something an output
// can open. Absolute URLs and rooted paths are returned unchanged; bare
// names are joined onto base.
func ResolveSource(base, ref string) string {
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ref
	}
	if strings.HasPrefix(ref, "/") {
		return ref
	}
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + ref
}
