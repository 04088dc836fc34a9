package http

import (
	"net/textproto"
	"sort"
	"strings"
	"unicode"
)

// Fields holds header fields keyed by lower-cased name. A name that occurs more
// than once in a message keeps only its last value; lookups such as
// content-length rely on fields being single valued.
type Fields map[string]string

func (fields Fields) Get(name string) (string, bool) {
	value, ok := fields[strings.ToLower(name)]
	return value, ok
}

func (fields Fields) Set(name, value string) {
	fields[strings.ToLower(name)] = value
}

// HasToken reports whether the comma separated field value contains token,
// compared case-insensitively.
func (fields Fields) HasToken(name, token string) bool {
	value, ok := fields.Get(name)
	if !ok {
		return false
	}
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// Names returns the field names in sorted order.
func (fields Fields) Names() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseField parses a single "name:value" field line. The name is returned
// lower-cased and the value trimmed of surrounding whitespace.
func ParseField(line string) (string, string, error) {
	name, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", newParseError(ErrMalformed, 0, "field line %q has no colon", line)
	}
	if name == "" {
		return "", "", newParseError(ErrMalformed, 0, "field line %q has an empty name", line)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return "", "", newParseError(ErrMalformed, 0, "field name %q contains whitespace", name)
	}
	value = strings.TrimSpace(value)
	if strings.ContainsAny(value, "\r\n\x00") {
		return "", "", newParseError(ErrMalformed, 0, "field %q has a control character in its value", name)
	}
	return strings.ToLower(name), value, nil
}

func canonicalName(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}
