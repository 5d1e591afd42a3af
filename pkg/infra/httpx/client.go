package httpx

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	DefaultTimeout         = 5 * time.Second
	DefaultMaxConnsPerHost = 64
)

// Client abstracts the outbound HTTP transport so delivery code can be
// exercised against fakes. *http.Client satisfies it as well.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	Timeout         time.Duration
	MaxConnsPerHost int
	UserAgent       string
}

type Option func(*Options)

func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) { o.Timeout = timeout }
}

func WithMaxConnsPerHost(n int) Option {
	return func(o *Options) { o.MaxConnsPerHost = n }
}

func WithUserAgent(userAgent string) Option {
	return func(o *Options) { o.UserAgent = userAgent }
}

// FastHTTPClient adapts fasthttp to the net/http request and response types
// the rest of the code speaks.
type FastHTTPClient struct {
	client    *fasthttp.Client
	userAgent string
}

func NewFastHTTPClient(opts ...Option) Client {
	options := &Options{
		Timeout:         DefaultTimeout,
		MaxConnsPerHost: DefaultMaxConnsPerHost,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &FastHTTPClient{
		client: &fasthttp.Client{
			MaxConnsPerHost: options.MaxConnsPerHost,
			ReadTimeout:     options.Timeout,
			WriteTimeout:    options.Timeout,
		},
		userAgent: options.UserAgent,
	}
}

func (c *FastHTTPClient) Do(req *http.Request) (*http.Response, error) {
	fastReq := fasthttp.AcquireRequest()
	fastResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(fastReq)
	defer fasthttp.ReleaseResponse(fastResp)

	fastReq.SetRequestURI(req.URL.String())
	fastReq.Header.SetMethod(req.Method)
	for key, values := range req.Header {
		for _, value := range values {
			fastReq.Header.Add(key, value)
		}
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		fastReq.Header.Set("User-Agent", c.userAgent)
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		fastReq.SetBodyRaw(body)
	}

	// fasthttp has no native context support; the request context's deadline
	// is applied here instead.
	var err error
	if deadline, ok := req.Context().Deadline(); ok {
		err = c.client.DoDeadline(fastReq, fastResp, deadline)
	} else {
		err = c.client.Do(fastReq, fastResp)
	}
	if err != nil {
		return nil, err
	}

	// fastResp's buffers are pooled; copy everything out before release.
	body := make([]byte, len(fastResp.Body()))
	copy(body, fastResp.Body())

	headers := make(http.Header)
	fastResp.Header.VisitAll(func(key, value []byte) {
		headers.Add(string(key), string(value))
	})

	statusCode := fastResp.StatusCode()
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		StatusCode:    statusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        headers,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}
