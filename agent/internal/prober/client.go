package prober

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// UserAgent is sent with every probe request.
const UserAgent = "apibadges-agent/1.0"

// Response is the part of an HTTP answer a probe cares about.
type Response struct {
	StatusCode int
	Elapsed    time.Duration
}

// NetworkClient issues one request and reports its status and duration. It
// returns an error only when no HTTP response was received.
type NetworkClient interface {
	Request(ctx context.Context, url string, timeout time.Duration) (Response, error)
}

// RestyClient is the production NetworkClient.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient returns a client that does not follow more than 5 redirects.
func NewRestyClient() *RestyClient {
	c := resty.New().
		SetHeader("User-Agent", UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &RestyClient{client: c}
}

// Request issues a GET and discards the body.
func (r *RestyClient) Request(ctx context.Context, url string, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	elapsed := time.Since(start)
	if err != nil {
		return Response{}, err
	}
	if body := resp.RawBody(); body != nil {
		body.Close()
	}
	return Response{StatusCode: resp.StatusCode(), Elapsed: elapsed}, nil
}

// compile-time check
var _ NetworkClient = (*RestyClient)(nil)

// isSuccess reports whether code is a 2xx status.
func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
