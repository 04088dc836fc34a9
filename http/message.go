package http

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
)

const (
	crlf = "\r\n"

	// HeaderTerminator ends every header block.
	HeaderTerminator = "\r\n\r\n"
)

type Header struct {
	StartLine StartLine
	Fields    Fields
}

// ParseHeader parses a header block: a start line followed by field lines.
// Blank lines are skipped, so the block may or may not still carry its
// terminating empty line.
func ParseHeader(block string) (*Header, error) {
	var (
		startLine StartLine
		fields    = Fields{}
	)

	for i, line := range strings.Split(block, crlf) {
		if line == "" {
			continue
		}
		if strings.ContainsAny(line, "\r\n") {
			return nil, newParseError(ErrMalformed, i+1, "bare line terminator")
		}

		if startLine == nil {
			sl, err := ParseStartLine(line)
			if err != nil {
				return nil, atLine(err, i+1)
			}
			startLine = sl
			continue
		}

		name, value, err := ParseField(line)
		if err != nil {
			return nil, atLine(err, i+1)
		}
		fields[name] = value
	}

	if startLine == nil {
		return nil, newParseError(ErrMalformed, 0, "empty header block")
	}

	return &Header{StartLine: startLine, Fields: fields}, nil
}

func atLine(err error, line int) error {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		parseErr.Line = line
	}
	return err
}

func (header *Header) IsRequest() bool {
	_, ok := header.StartLine.(*RequestLine)
	return ok
}

func (header *Header) RequestLine() (*RequestLine, bool) {
	line, ok := header.StartLine.(*RequestLine)
	return line, ok
}

func (header *Header) StatusLine() (*StatusLine, bool) {
	line, ok := header.StartLine.(*StatusLine)
	return line, ok
}

// IsPersistent reports whether a request asks for the connection to stay open.
// HTTP/1.1 defaults to persistent unless "connection" lists close; HTTP/1.0
// defaults to non-persistent unless it lists keep-alive. Responses are never
// persistent by themselves.
func (header *Header) IsPersistent() bool {
	line, ok := header.RequestLine()
	if !ok {
		return false
	}

	switch line.Version {
	case Version11:
		return !header.Fields.HasToken("connection", "close")
	case Version10:
		return header.Fields.HasToken("connection", "keep-alive")
	}
	return false
}

// ContentLength returns the declared body length. ok is false when the header
// has no content-length field.
func (header *Header) ContentLength() (length int64, ok bool, err error) {
	value, ok := header.Fields.Get("content-length")
	if !ok {
		return 0, false, nil
	}
	length, err = strconv.ParseInt(value, 10, 64)
	if err != nil || length < 0 || strings.HasPrefix(value, "+") {
		return 0, true, ErrInvalidContentLength
	}
	return length, true, nil
}

func (header *Header) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.WriteString(header.StartLine.String())
	buf.WriteString(crlf)
	for _, name := range header.Fields.Names() {
		buf.WriteString(canonicalName(name))
		buf.WriteString(": ")
		buf.WriteString(header.Fields[name])
		buf.WriteString(crlf)
	}
	buf.WriteString(crlf)
	return buf.WriteTo(w)
}

func (header *Header) String() string {
	var sb strings.Builder
	header.WriteTo(&sb)
	return sb.String()
}

// Message is a header plus an optional body. A nil Body means the message has
// no body.
type Message struct {
	Header Header
	Body   []byte
}

func (message *Message) WriteTo(w io.Writer) (int64, error) {
	n, err := message.Header.WriteTo(w)
	if err != nil || len(message.Body) == 0 {
		return n, err
	}
	m, err := w.Write(message.Body)
	return n + int64(m), err
}

func (message *Message) Bytes() []byte {
	var buf bytes.Buffer
	message.WriteTo(&buf)
	return buf.Bytes()
}

// NewResponse builds an HTTP/1.1 response carrying body. Content-Length always
// reports len(body); the body itself is attached only when includeBody is set,
// which is how HEAD responses are produced.
func NewResponse(status Status, body []byte, includeBody bool) *Message {
	fields := Fields{}
	fields.Set("content-length", strconv.Itoa(len(body)))

	message := &Message{
		Header: Header{
			StartLine: &StatusLine{Version: Version11, Status: status},
			Fields:    fields,
		},
	}
	if includeBody {
		message.Body = body
	}
	return message
}

// Status returns the status of a response message, or 0 for a request.
func (message *Message) Status() Status {
	if line, ok := message.Header.StatusLine(); ok {
		return line.Status
	}
	return 0
}
