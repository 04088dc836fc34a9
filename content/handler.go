package content

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"path"
	"strconv"
	"time"

	"github.com/freekieb7/helios/config"
	"github.com/freekieb7/helios/filesystem"
	"github.com/freekieb7/helios/http"
)

// DateFormat is the IMF-fixdate layout of the Date field.
const DateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

const unknownError = "Unknown error occurred."

// indexFiles are tried in order when a target names a directory.
var indexFiles = []string{"index.php", "index.html"}

// Handler serves files below <server_root>/public, runs .php files through an
// Interpreter and renders error pages from <server_root>/errors.
type Handler struct {
	serverName  string
	public      filesystem.Filesystem
	errorPages  filesystem.Filesystem
	interpreter Interpreter
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithInterpreter(interpreter Interpreter) Option {
	return func(h *Handler) {
		h.interpreter = interpreter
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

func New(cfg config.Config, opts ...Option) (*Handler, error) {
	h := &Handler{
		serverName: cfg.ServerName,
		interpreter: &Process{
			Binary:     cfg.CGIBinary,
			ServerName: cfg.ServerName,
			Timeout:    cfg.CGITimeout,
		},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	public, err := filesystem.NewRootedFileSystem(cfg.PublicDir())
	if err != nil {
		return nil, err
	}
	h.public = public

	// Without error pages every error gets the generic text.
	errorPages, err := filesystem.NewRootedFileSystem(cfg.ErrorsDir())
	if err != nil {
		h.logger.Warn("error pages unavailable", "dir", cfg.ErrorsDir(), "error", err)
	} else {
		h.errorPages = errorPages
	}

	return h, nil
}

func (h *Handler) Close() error {
	err := h.public.Close()
	if h.errorPages != nil {
		err = errors.Join(err, h.errorPages.Close())
	}
	return err
}

func (h *Handler) ServeMessage(ctx context.Context, req *http.Message, includeBody bool) (*http.Message, error) {
	line, ok := req.Header.RequestLine()
	if !ok {
		return h.page(ctx, http.StatusBadRequest, includeBody), nil
	}

	target, err := http.ParseTarget(line.Target)
	if err != nil {
		return h.page(ctx, http.StatusBadRequest, includeBody), nil
	}

	name, found, err := h.resolve(target.Path)
	if err != nil {
		h.logger.WarnContext(ctx, "refusing target", "target", line.Target, "error", err)
		return h.page(ctx, http.StatusForbidden, includeBody), nil
	}
	if !found {
		return h.page(ctx, http.StatusNotFound, includeBody), nil
	}

	if path.Ext(name) == ".php" {
		return h.runScript(ctx, req, line, name, target.Query, includeBody)
	}

	body, err := h.public.ReadFile(name)
	if err != nil {
		return nil, err
	}

	res := h.response(http.StatusOK, body, includeBody)
	res.Header.Fields.Set("content-type", contentType(name))
	return res, nil
}

// resolve maps a target path onto an existing file, trying the index files
// for directories.
func (h *Handler) resolve(name string) (string, bool, error) {
	isDir, err := h.public.IsDirectory(name)
	if err != nil {
		return "", false, err
	}
	if !isDir {
		isFile, err := h.public.IsFile(name)
		return name, isFile, err
	}

	for _, index := range indexFiles {
		candidate := path.Join(name, index)
		isFile, err := h.public.IsFile(candidate)
		if err != nil {
			return "", false, err
		}
		if isFile {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

func (h *Handler) runScript(ctx context.Context, req *http.Message, line *http.RequestLine, name, query string, includeBody bool) (*http.Message, error) {
	filename, err := h.public.GetAbsolutePath(name)
	if err != nil {
		return nil, err
	}

	script := Script{
		Filename: filename,
		Method:   line.Method,
		Version:  line.Version,
		Query:    query,
		Body:     req.Body,
	}
	script.ContentType, _ = req.Header.Fields.Get("content-type")

	output, err := h.interpreter.Run(ctx, script)
	if err != nil {
		return nil, err
	}

	res := h.response(output.Status, output.Body, includeBody)
	for field, value := range output.Fields {
		res.Header.Fields.Set(field, value)
	}
	if _, ok := res.Header.Fields.Get("content-type"); !ok {
		res.Header.Fields.Set("content-type", "text/html; charset=utf-8")
	}
	return res, nil
}

// ErrorMessage renders <code>.html from the error page directory, or a
// generic text when there is no such page.
func (h *Handler) ErrorMessage(ctx context.Context, status http.Status) *http.Message {
	if h.errorPages != nil {
		body, err := h.errorPages.ReadFile(strconv.Itoa(status.Code()) + ".html")
		if err == nil {
			res := h.response(status, body, true)
			res.Header.Fields.Set("content-type", "text/html; charset=utf-8")
			return res
		}
		if !errors.Is(err, filesystem.ErrFileNotFound) {
			h.logger.WarnContext(ctx, "reading error page failed", "status", status.Code(), "error", err)
		}
	}

	res := h.response(status, []byte(unknownError), true)
	res.Header.Fields.Set("content-type", "text/plain; charset=utf-8")
	return res
}

func (h *Handler) page(ctx context.Context, status http.Status, includeBody bool) *http.Message {
	res := h.ErrorMessage(ctx, status)
	if !includeBody {
		res.Body = nil
	}
	return res
}

// response adds the fields every response carries.
func (h *Handler) response(status http.Status, body []byte, includeBody bool) *http.Message {
	res := http.NewResponse(status, body, includeBody)
	res.Header.Fields.Set("server", h.serverName)
	res.Header.Fields.Set("date", h.now().UTC().Format(DateFormat))
	res.Header.Fields.Set("connection", "keep-alive")
	return res
}

func contentType(name string) string {
	if contentType := mime.TypeByExtension(path.Ext(name)); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}
