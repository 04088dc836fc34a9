package http

import (
	"net/url"
	"path"
	"strings"
	"unicode/utf8"
)

// Target is a request target resolved against a virtual root.
type Target struct {
	// Path is relative to the root, without a leading slash, and never
	// contains ".." segments. The root itself is "".
	Path string
	// Query is the raw query string with unsafe bytes percent-encoded.
	Query string
}

// ParseTarget percent-decodes the path of a request target and collapses its
// dot segments so the result can never reach above the root.
func ParseTarget(raw string) (Target, error) {
	raw, _, _ = strings.Cut(raw, "#")
	rawPath, rawQuery, _ := strings.Cut(raw, "?")

	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return Target{}, newParseError(ErrInvalidTarget, 0, "%q: %v", rawPath, err)
	}
	if !utf8.ValidString(decoded) {
		return Target{}, newParseError(ErrInvalidTarget, 0, "%q is not valid UTF-8", rawPath)
	}
	if strings.IndexByte(decoded, 0) >= 0 {
		return Target{}, newParseError(ErrInvalidTarget, 0, "%q contains NUL", rawPath)
	}
	decoded = strings.ReplaceAll(decoded, "\\", "/")

	// Cleaning a rooted path drops any ".." that would climb past "/".
	cleaned := path.Clean("/" + decoded)

	return Target{
		Path:  strings.TrimPrefix(cleaned, "/"),
		Query: encodeQuery(rawQuery),
	}, nil
}

const upperhex = "0123456789ABCDEF"

// encodeQuery percent-encodes the bytes a URL query may not carry literally.
// Existing escapes are left alone.
func encodeQuery(query string) string {
	var sb strings.Builder
	sb.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if shouldEscapeQuery(c) {
			sb.WriteByte('%')
			sb.WriteByte(upperhex[c>>4])
			sb.WriteByte(upperhex[c&15])
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func shouldEscapeQuery(c byte) bool {
	if c <= 0x20 || c >= 0x7f {
		return true
	}
	switch c {
	case '"', '#', '\'', '<', '>':
		return true
	}
	return false
}
