package http

import "strconv"

// Status is a response status code. Only the codes registered in RFC 9110
// and its companions exist; any other integer is rejected by ParseStatus.
type Status uint16

// The statuses the server produces itself. Handlers and CGI scripts may answer
// with any other registered code.
const (
	StatusOK Status = 200 // RFC 9110, 15.3.1

	StatusBadRequest              Status = 400 // RFC 9110, 15.5.1
	StatusForbidden               Status = 403 // RFC 9110, 15.5.4
	StatusNotFound                Status = 404 // RFC 9110, 15.5.5
	StatusRequestTimeout          Status = 408 // RFC 9110, 15.5.9
	StatusContentTooLarge         Status = 413 // RFC 9110, 15.5.14
	StatusInternalServerError     Status = 500 // RFC 9110, 15.6.1
	StatusNotImplemented          Status = 501 // RFC 9110, 15.6.2
	StatusServiceUnavailable      Status = 503 // RFC 9110, 15.6.4
	StatusHTTPVersionNotSupported Status = 505 // RFC 9110, 15.6.6
)

var statusReasons = map[Status]string{
	100: "Continue",
	101: "Switching Protocols",
	103: "Early Hints", // RFC 8297

	200: "OK",
	201: "Created",
	202: "Accepted",
	203: "Non-Authoritative Information",
	204: "No Content",
	205: "Reset Content",
	206: "Partial Content",

	300: "Multiple Choices",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	305: "Use Proxy",
	307: "Temporary Redirect",
	308: "Permanent Redirect",

	400: "Bad Request",
	401: "Unauthorized",
	402: "Payment Required",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	406: "Not Acceptable",
	407: "Proxy Authentication Required",
	408: "Request Timeout",
	409: "Conflict",
	410: "Gone",
	411: "Length Required",
	412: "Precondition Failed",
	413: "Content Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	416: "Range Not Satisfiable",
	417: "Expectation Failed",
	421: "Misdirected Request",
	422: "Unprocessable Content",
	425: "Too Early",                       // RFC 8470
	426: "Upgrade Required",                // RFC 9110, 15.5.22
	428: "Precondition Required",           // RFC 6585
	429: "Too Many Requests",               // RFC 6585
	431: "Request Header Fields Too Large", // RFC 6585
	451: "Unavailable For Legal Reasons",   // RFC 7725

	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
	511: "Network Authentication Required", // RFC 6585
}

// ParseStatus maps a numeric code to its Status.
func ParseStatus(code int) (Status, error) {
	status := Status(code)
	if code < 100 || code > 999 {
		return 0, ErrUnsupportedStatusCode
	}
	if _, ok := statusReasons[status]; !ok {
		return 0, ErrUnsupportedStatusCode
	}
	return status, nil
}

func (status Status) Code() int {
	return int(status)
}

// Reason returns the canonical reason phrase, or "" for an unknown code.
func (status Status) Reason() string {
	return statusReasons[status]
}

func (status Status) String() string {
	return strconv.Itoa(int(status)) + " " + status.Reason()
}
