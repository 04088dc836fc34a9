package http

// Method is a request method. The set is closed: adding a method means adding
// a constant here and a case to every switch over Method.
type Method uint8

const (
	MethodGet Method = iota + 1
	MethodHead
	MethodPost
)

func ParseMethod(s string) (Method, error) {
	switch s {
	case "GET":
		return MethodGet, nil
	case "HEAD":
		return MethodHead, nil
	case "POST":
		return MethodPost, nil
	}
	return 0, ErrUnsupportedMethod
}

func (method Method) String() string {
	switch method {
	case MethodGet:
		return "GET"
	case MethodHead:
		return "HEAD"
	case MethodPost:
		return "POST"
	}
	return "UNKNOWN"
}

// Version is the protocol version of a message.
type Version uint8

const (
	Version10 Version = iota + 1
	Version11
)

func ParseVersion(s string) (Version, error) {
	switch s {
	case "HTTP/1.0":
		return Version10, nil
	case "HTTP/1.1":
		return Version11, nil
	}
	return 0, ErrUnsupportedVersion
}

func (version Version) String() string {
	switch version {
	case Version10:
		return "HTTP/1.0"
	case Version11:
		return "HTTP/1.1"
	}
	return "HTTP/?"
}
