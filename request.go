package spindle

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Tag is an opaque routing key. Every request carries exactly one Tag, and
// the router maps each registered Tag to exactly one handler chain.
type Tag string

// Request describes a single fetch to perform. Requests are immutable after
// creation; follow-ups and retries are new values built with Child and
// NextAttempt.
type Request struct {
	ID      string
	URL     string
	Tag     Tag
	Depth   int
	Attempt int
	Meta    map[string]string
}

// NewRequest builds a root request with a fresh ID and zero depth.
func NewRequest(url string, tag Tag) *Request {
	return &Request{
		ID:   uuid.NewString(),
		URL:  url,
		Tag:  tag,
		Meta: map[string]string{},
	}
}

// Child derives a follow-up request discovered while handling r. The child
// gets a fresh ID, depth incremented by one, and a copy of r's metadata.
func (r *Request) Child(url string, tag Tag) *Request {
	return &Request{
		ID:    uuid.NewString(),
		URL:   url,
		Tag:   tag,
		Depth: r.Depth + 1,
		Meta:  copyMeta(r.Meta),
	}
}

// NextAttempt returns a copy of r with the attempt counter incremented.
// The ID is preserved so retries remain the same logical request.
func (r *Request) NextAttempt() *Request {
	next := *r
	next.Attempt = r.Attempt + 1
	next.Meta = copyMeta(r.Meta)
	return &next
}

// WithMeta returns a copy of r carrying an additional metadata entry.
func (r *Request) WithMeta(key, value string) *Request {
	next := *r
	next.Meta = copyMeta(r.Meta)
	next.Meta[key] = value
	return &next
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Response is the backend-produced result of resolving one request. A non-2xx
// status is not an error; handlers inspect Status themselves.
type Response struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
}
