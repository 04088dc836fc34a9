package content

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/freekieb7/helios/http"
	"github.com/freekieb7/helios/test"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		status http.Status
		fields http.Fields
		body   string
	}{
		{
			name:   "crlf",
			stdout: "Content-Type: text/html\r\nX-Powered-By: PHP/8.3\r\n\r\n<p>hi</p>",
			status: http.StatusOK,
			fields: http.Fields{"content-type": "text/html", "x-powered-by": "PHP/8.3"},
			body:   "<p>hi</p>",
		},
		{
			name:   "lf",
			stdout: "Content-type: text/plain\n\nplain\n\nbody",
			status: http.StatusOK,
			fields: http.Fields{"content-type": "text/plain"},
			body:   "plain\n\nbody",
		},
		{
			name:   "status",
			stdout: "Status: 404 Not Found\r\nContent-Type: text/html\r\n\r\nmissing",
			status: http.StatusNotFound,
			fields: http.Fields{"content-type": "text/html"},
			body:   "missing",
		},
		{
			name:   "redirect",
			stdout: "Status: 302 Found\r\nLocation: /login.php\r\nContent-type: text/html; charset=UTF-8\r\n\r\n",
			status: http.Status(302),
			fields: http.Fields{"location": "/login.php", "content-type": "text/html; charset=UTF-8"},
			body:   "",
		},
		{
			name:   "created",
			stdout: "Status: 201\r\n\r\n{}",
			status: http.Status(201),
			fields: http.Fields{},
			body:   "{}",
		},
		{
			name:   "framing dropped",
			stdout: "Content-Length: 999\r\nConnection: close\r\n\r\nok",
			status: http.StatusOK,
			fields: http.Fields{},
			body:   "ok",
		},
		{
			name:   "empty body",
			stdout: "Location: /elsewhere\r\n\r\n",
			status: http.StatusOK,
			fields: http.Fields{"location": "/elsewhere"},
			body:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := ParseOutput([]byte(tt.stdout))
			if !test.NoError(t, err) {
				return
			}
			test.Equal(t, output.Status, tt.status)
			test.Equal(t, string(output.Body), tt.body)
			test.Equal(t, len(output.Fields), len(tt.fields))
			for name, value := range tt.fields {
				got, _ := output.Fields.Get(name)
				test.Equal(t, got, value)
			}
		})
	}
}

func TestParseOutputErrors(t *testing.T) {
	for _, stdout := range []string{
		"<p>no header at all</p>",
		"Status: abc\r\n\r\n",
		"Status: 299 Whatever\r\n\r\n",
		"no colon here\r\n\r\nbody",
	} {
		_, err := ParseOutput([]byte(stdout))
		test.ErrorIs(t, err, ErrCGIOutput)
	}
}

// writeScript creates an executable shell script standing in for php-cgi.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	name := filepath.Join(t.TempDir(), "fake-cgi")
	if err := os.WriteFile(name, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestProcessRun(t *testing.T) {
	binary := writeScript(t, `printf 'Content-Type: text/plain\r\n\r\n'
printf '%s|%s|%s|%s|%s|' "$REQUEST_METHOD" "$QUERY_STRING" "$SCRIPT_FILENAME" "$CONTENT_TYPE" "$CONTENT_LENGTH"
cat
`)
	process := &Process{Binary: binary, ServerName: "Helios/13.37"}

	dir := t.TempDir()
	output, err := process.Run(context.Background(), Script{
		Filename: filepath.Join(dir, "index.php"),
		Method:   http.MethodPost,
		Version:  http.Version11,
		Query:    "a=1",
		Body:     []byte("name=hi"),
	})
	if !test.NoError(t, err) {
		return
	}

	test.Equal(t, output.Status, http.StatusOK)
	contentType, _ := output.Fields.Get("content-type")
	test.Equal(t, contentType, "text/plain")
	want := strings.Join([]string{"POST", "a=1", filepath.Join(dir, "index.php"), "application/x-www-form-urlencoded", "7", "name=hi"}, "|")
	test.Equal(t, string(output.Body), want)
}

func TestProcessRunFailure(t *testing.T) {
	binary := writeScript(t, "echo 'PHP Parse error' >&2\nexit 255\n")
	process := &Process{Binary: binary}

	_, err := process.Run(context.Background(), Script{Filename: filepath.Join(t.TempDir(), "index.php"), Method: http.MethodGet})
	if test.ErrorIs(t, err, ErrCGI) {
		test.Contains(t, err.Error(), "PHP Parse error")
	}
}

func TestProcessRunTimeout(t *testing.T) {
	binary := writeScript(t, "sleep 5\n")
	process := &Process{Binary: binary, Timeout: 50 * time.Millisecond}

	start := time.Now()
	_, err := process.Run(context.Background(), Script{Filename: filepath.Join(t.TempDir(), "index.php"), Method: http.MethodGet})
	test.ErrorIs(t, err, ErrCGI)
	test.True(t, time.Since(start) < 3*time.Second, "the script should be killed at the timeout")
}
