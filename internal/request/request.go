// Package request assembles a built parameter set into the HTTP request the
// collector expects.
package request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"beacon-relay/internal/codec"
	"beacon-relay/internal/params"
)

// MaxGETQueryLength is the longest query string sent with GET; longer ones
// go in a POST body, as recent browser clients do.
const MaxGETQueryLength = 2036

const (
	postPathPrefix  = "/p"
	postContentType = "text/plain"
)

type Assembler struct {
	Host string
	Path string
}

// Payload is a fully assembled beacon. It is transport agnostic; see
// NewHTTPRequest and Dump.
type Payload struct {
	Method       string
	Host         string
	Path         string
	Query        string
	UserAgent    string
	ForwardedFor string
}

// Assemble encodes set and picks the request method by query length.
// userAgent and forwardedFor may be empty.
func (a Assembler) Assemble(set *params.Set, userAgent, forwardedFor string) *Payload {
	query := codec.ConvertToURIComponentEncoding(set.Encode())

	p := &Payload{
		Method:       http.MethodGet,
		Host:         a.Host,
		Path:         a.Path,
		Query:        query,
		UserAgent:    stripNewlines(userAgent),
		ForwardedFor: stripNewlines(forwardedFor),
	}
	if len(query) > MaxGETQueryLength {
		p.Method = http.MethodPost
		p.Path = postPathPrefix + a.Path
	}
	return p
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func (p *Payload) IsPost() bool { return p.Method == http.MethodPost }

// RequestURI is the request target: path and query for GET, path only for
// POST.
func (p *Payload) RequestURI() string {
	if p.IsPost() {
		return p.Path
	}
	return p.Path + "?" + p.Query
}

// Body is the POST body, empty for GET.
func (p *Payload) Body() string {
	if p.IsPost() {
		return p.Query
	}
	return ""
}

func (p *Payload) Header() http.Header {
	h := http.Header{}
	if p.UserAgent != "" {
		h.Set("User-Agent", p.UserAgent)
	}
	if p.ForwardedFor != "" {
		h.Set("X-Forwarded-For", p.ForwardedFor)
	}
	if p.IsPost() {
		h.Set("Content-Type", postContentType)
	}
	return h
}

// NewHTTPRequest converts the payload into a request against
// scheme://Host.
func (p *Payload) NewHTTPRequest(ctx context.Context, scheme string) (*http.Request, error) {
	target := scheme + "://" + p.Host + p.RequestURI()
	var body io.Reader
	if p.IsPost() {
		body = strings.NewReader(p.Body())
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("new beacon request: %w", err)
	}
	req.Header = p.Header()
	req.Close = true
	return req, nil
}

// Dump renders the payload as raw HTTP/1.0 text. It is what the logging
// callback receives.
func (p *Payload) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s HTTP/1.0\r\n", p.Method, p.RequestURI())
	fmt.Fprintf(&sb, "Host: %s\r\n", p.Host)
	if p.UserAgent != "" {
		fmt.Fprintf(&sb, "User-Agent: %s\r\n", p.UserAgent)
	}
	if p.ForwardedFor != "" {
		fmt.Fprintf(&sb, "X-Forwarded-For: %s\r\n", p.ForwardedFor)
	}
	if p.IsPost() {
		fmt.Fprintf(&sb, "Content-Type: %s\r\n", postContentType)
		sb.WriteString("Content-Length: " + strconv.Itoa(len(p.Query)) + "\r\n")
	}
	sb.WriteString("Connection: close\r\n\r\n")
	sb.WriteString(p.Body())
	return sb.String()
}
