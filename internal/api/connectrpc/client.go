package connectrpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote FilterService.
type Client struct {
	extract *connect.Client[ExtractRequest, ExtractResponse]
	filter  *connect.Client[FilterRequest, FilterResponse]
}

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{
		connect.WithCodec(Codec()),
		connect.WithInterceptors(NewTraceInterceptor()),
	}, opts...)
	base := strings.TrimRight(baseURL, "/")
	return &Client{
		extract: connect.NewClient[ExtractRequest, ExtractResponse](httpClient, base+ExtractProcedure, opts...),
		filter:  connect.NewClient[FilterRequest, FilterResponse](httpClient, base+FilterProcedure, opts...),
	}
}

// Extract calls Extract.
func (c *Client) Extract(ctx context.Context, req *ExtractRequest) (*ExtractResponse, error) {
	res, err := c.extract.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Filter calls Filter.
func (c *Client) Filter(ctx context.Context, req *FilterRequest) (*FilterResponse, error) {
	res, err := c.filter.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
