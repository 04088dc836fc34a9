package http

import (
	"strconv"
	"strings"

	"github.com/shapestone/shape-core/pkg/tokenizer"
)

const (
	tokenSP   = "SP"
	tokenWord = "Word"
)

// StartLine is the first line of a message: a *RequestLine or a *StatusLine.
type StartLine interface {
	String() string
	startLine()
}

type RequestLine struct {
	Method  Method
	Target  string
	Version Version
}

func (line *RequestLine) startLine() {}

func (line *RequestLine) String() string {
	return line.Method.String() + " " + line.Target + " " + line.Version.String()
}

type StatusLine struct {
	Version Version
	Status  Status
}

func (line *StatusLine) startLine() {}

func (line *StatusLine) String() string {
	return line.Version.String() + " " + strconv.Itoa(line.Status.Code()) + " " + line.Status.Reason()
}

// ParseStartLine parses a start line without its line terminator. Lines that
// begin with "HTTP" are status lines, everything else is a request line.
func ParseStartLine(line string) (StartLine, error) {
	if strings.HasPrefix(line, "HTTP") {
		return parseStatusLine(line)
	}
	return parseRequestLine(line)
}

func parseRequestLine(line string) (*RequestLine, error) {
	parts, err := splitStartLine(line)
	if err != nil {
		return nil, err
	}
	if len(parts) != 3 {
		return nil, newParseError(ErrMalformed, 1, "request line has %d tokens", len(parts))
	}
	for _, part := range parts {
		if part == "" {
			return nil, newParseError(ErrMalformed, 1, "empty token in request line %q", line)
		}
	}

	method, err := ParseMethod(parts[0])
	if err != nil {
		return nil, newParseError(err, 1, "%q", parts[0])
	}
	version, err := ParseVersion(parts[2])
	if err != nil {
		return nil, newParseError(err, 1, "%q", parts[2])
	}

	return &RequestLine{Method: method, Target: parts[1], Version: version}, nil
}

func parseStatusLine(line string) (*StatusLine, error) {
	parts, err := splitStartLine(line)
	if err != nil {
		return nil, err
	}
	// The reason phrase may be empty or contain spaces, but the space in
	// front of it is mandatory.
	if len(parts) < 3 {
		return nil, newParseError(ErrMalformed, 1, "status line has %d tokens", len(parts))
	}

	version, err := ParseVersion(parts[0])
	if err != nil {
		return nil, newParseError(err, 1, "%q", parts[0])
	}
	if len(parts[1]) != 3 {
		return nil, newParseError(ErrMalformed, 1, "status code %q is not three digits", parts[1])
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, newParseError(ErrMalformed, 1, "status code %q", parts[1])
	}
	status, err := ParseStatus(code)
	if err != nil {
		return nil, newParseError(err, 1, "%d", code)
	}

	return &StatusLine{Version: version, Status: status}, nil
}

// splitStartLine splits a start line on single spaces, the way strings.Split
// would: consecutive spaces yield empty parts, which callers reject.
func splitStartLine(line string) ([]string, error) {
	tok := tokenizer.NewTokenizerWithoutWhitespace(spMatcher(), wordMatcher())
	tok.Initialize(line)

	tokens, eos := tok.Tokenize()
	if !eos {
		return nil, newParseError(ErrMalformed, 1, "could not tokenize start line %q", line)
	}

	parts := []string{""}
	for _, token := range tokens {
		if token.Kind() == tokenSP {
			parts = append(parts, "")
			continue
		}
		parts[len(parts)-1] += token.ValueString()
	}
	return parts, nil
}

func spMatcher() tokenizer.Matcher {
	return func(stream tokenizer.Stream) *tokenizer.Token {
		r, ok := stream.PeekChar()
		if !ok || r != ' ' {
			return nil
		}
		stream.NextChar()
		return tokenizer.NewToken(tokenSP, []rune{' '})
	}
}

// wordMatcher takes everything up to the next space. CR and LF are never part
// of a start line; leaving them unmatched makes Tokenize stop short.
func wordMatcher() tokenizer.Matcher {
	return func(stream tokenizer.Stream) *tokenizer.Token {
		var value []rune
		for {
			r, ok := stream.PeekChar()
			if !ok || r == ' ' || r == '\r' || r == '\n' {
				break
			}
			stream.NextChar()
			value = append(value, r)
		}
		if len(value) == 0 {
			return nil
		}
		return tokenizer.NewToken(tokenWord, value)
	}
}
