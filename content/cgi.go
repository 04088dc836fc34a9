package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/freekieb7/helios/http"
)

var (
	ErrCGI       = errors.New("content: cgi script failed")
	ErrCGIOutput = errors.New("content: malformed cgi output")
)

// Script is one request handed to an interpreter.
type Script struct {
	// Filename is the absolute host path of the script.
	Filename    string
	Method      http.Method
	Version     http.Version
	Query       string
	ContentType string
	// Body is nil when the request carried none.
	Body []byte
}

// Output is what a script produced, split into header and body.
type Output struct {
	Status http.Status
	Fields http.Fields
	Body   []byte
}

type Interpreter interface {
	Run(ctx context.Context, script Script) (*Output, error)
}

// Process runs scripts through an external CGI binary such as php-cgi.
type Process struct {
	Binary     string
	ServerName string
	// Timeout kills the process when it runs longer. Zero means no limit
	// besides the request context.
	Timeout time.Duration
}

func (process *Process) Run(ctx context.Context, script Script) (*Output, error) {
	if process.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, process.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, process.Binary)
	cmd.Env = process.environ(script)
	cmd.Dir = filepath.Dir(script.Filename)
	if script.Body != nil {
		cmd.Stdin = bytes.NewReader(script.Body)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// A killed interpreter may leave children holding its output open.
	cmd.WaitDelay = time.Second

	stdout, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%w)", err, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %w: %s", ErrCGI, script.Filename, err, strings.TrimSpace(stderr.String()))
	}

	return ParseOutput(stdout)
}

func (process *Process) environ(script Script) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"REDIRECT_STATUS=200",
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_NAME=" + process.ServerName,
		"SERVER_SOFTWARE=" + process.ServerName,
		"SERVER_PROTOCOL=" + script.Version.String(),
		"SCRIPT_FILENAME=" + script.Filename,
		"REQUEST_METHOD=" + script.Method.String(),
		"QUERY_STRING=" + script.Query,
	}
	if script.Body != nil {
		contentType := script.ContentType
		if contentType == "" {
			contentType = "application/x-www-form-urlencoded"
		}
		env = append(env,
			"CONTENT_TYPE="+contentType,
			"CONTENT_LENGTH="+strconv.Itoa(len(script.Body)))
	}
	return env
}

// ParseOutput splits CGI output at the first empty line. A Status field sets
// the response status, everything else is passed on as a response field.
func ParseOutput(stdout []byte) (*Output, error) {
	header, body, ok := cutHeader(stdout)
	if !ok {
		return nil, fmt.Errorf("%w: no end of header", ErrCGIOutput)
	}

	output := &Output{Status: http.StatusOK, Fields: http.Fields{}, Body: body}
	for _, line := range strings.Split(string(header), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		name, value, err := http.ParseField(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCGIOutput, err)
		}

		switch name {
		case "status":
			code, _, _ := strings.Cut(value, " ")
			n, err := strconv.Atoi(code)
			if err != nil {
				return nil, fmt.Errorf("%w: status %q", ErrCGIOutput, value)
			}
			status, err := http.ParseStatus(n)
			if err != nil {
				return nil, fmt.Errorf("%w: status %q: %w", ErrCGIOutput, value, err)
			}
			output.Status = status
		case "content-length", "connection":
			// framing belongs to the server
		default:
			output.Fields[name] = value
		}
	}

	return output, nil
}

// cutHeader finds the first empty line, whether lines end in CRLF or LF.
func cutHeader(stdout []byte) (header, body []byte, ok bool) {
	crlf := bytes.Index(stdout, []byte("\r\n\r\n"))
	lf := bytes.Index(stdout, []byte("\n\n"))

	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return stdout[:crlf], stdout[crlf+4:], true
	case lf >= 0:
		return stdout[:lf], stdout[lf+2:], true
	}
	return nil, nil, false
}
