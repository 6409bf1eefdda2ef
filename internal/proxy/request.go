package proxy

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ProxyRequest is one inbound call as the engine sees it. It is owned by a
// single Forward call and never shared.
type ProxyRequest struct {
	ServiceName string
	// Path is the full inbound path in escaped form, prefix included.
	Path   string
	Method string
	Header http.Header
	// RawQuery is forwarded unmodified; Query is a parsed view of it.
	RawQuery string
	Query    url.Values
	Body     []byte
}

// ProxyResponse is a fully buffered backend response.
type ProxyResponse struct {
	StatusCode  int
	Header      http.Header
	Body        []byte
	ContentType string
}

// NewProxyRequest reads r's body completely and captures what Forward
// needs. maxBody <= 0 means unlimited; a larger body returns an error
// wrapping ErrBodyTooLarge.
func NewProxyRequest(r *http.Request, serviceName string, maxBody int64) (*ProxyRequest, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		var err error
		body, err = io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		if maxBody > 0 && int64(len(body)) > maxBody {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxBody)
		}
	}

	query, _ := url.ParseQuery(r.URL.RawQuery)

	return &ProxyRequest{
		ServiceName: serviceName,
		Path:        r.URL.EscapedPath(),
		Method:      r.Method,
		Header:      r.Header.Clone(),
		RawQuery:    r.URL.RawQuery,
		Query:       query,
		Body:        body,
	}, nil
}
