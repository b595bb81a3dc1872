package extender

import (
	"net/url"

	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/kerr"
)

// NewFromURI builds the Extender matching uri's scheme (spec's original
// net_uri.h uri-dispatch idea, §D.3): "file://" serves pre-fetched
// calendar-chain fixtures from the path component, "http://"/"https://"
// reach a live extending service at uri. No other scheme is supported.
func NewFromURI(uri string, reg *hashing.Registry, opts ...Option) (Extender, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, kerr.Wrap(kerr.Argument, "parsing extender URI", err)
	}
	switch u.Scheme {
	case "file":
		return NewFileExtender(u.Path, reg), nil
	case "http", "https":
		return NewHTTPExtender(uri, reg, opts...), nil
	default:
		return nil, kerr.New(kerr.Argument, "unsupported extender URI scheme: "+u.Scheme)
	}
}
