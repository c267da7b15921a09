package eip1193

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCProvider forwards requests to a wallet that exposes its provider over
// JSON-RPC, e.g. a desktop wallet daemon listening on 127.0.0.1:1248.
type RPCProvider struct {
	url    string
	client *rpc.Client
}

func Dial(ctx context.Context, url string) (*RPCProvider, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("eip1193: missing provider url")
	}
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial provider %s", url)
	}
	return &RPCProvider{url: url, client: c}, nil
}

// FromClient wraps an already dialed client. The caller keeps ownership of c.
func FromClient(c *rpc.Client) *RPCProvider {
	return &RPCProvider{client: c}
}

func (p *RPCProvider) URL() string { return p.url }

func (p *RPCProvider) Request(ctx context.Context, method string, params []any, out any) error {
	var err error
	if out == nil {
		var discard any
		err = p.client.CallContext(ctx, &discard, method, params...)
	} else {
		err = p.client.CallContext(ctx, out, method, params...)
	}
	if err == nil {
		return nil
	}
	if pe, ok := AsProviderError(err); ok {
		return pe
	}
	return errors.Wrapf(err, "%s", method)
}

func (p *RPCProvider) Close() {
	p.client.Close()
}
