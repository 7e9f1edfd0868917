package reddit

import (
	"net/http"
	"net/url"
	"time"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

// NewHTTPClient builds an HTTP client for one bound (credential, proxy)
// pair. A nil proxy yields a direct client. Each rotation gets a fresh
// transport so connections never leak across proxies.
func NewHTTPClient(proxy *domain.ProxyEndpoint, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if proxy == nil {
		return client, nil
	}

	proxyURL, err := proxyURL(*proxy)
	if err != nil {
		return nil, err
	}
	client.Transport = &http.Transport{
		Proxy:               http.ProxyURL(proxyURL),
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return client, nil
}

func proxyURL(p domain.ProxyEndpoint) (*url.URL, error) {
	scheme := p.Protocol
	if scheme == "" {
		scheme = "http"
	}
	u := &url.URL{
		Scheme: scheme,
		Host:   p.Addr(),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u, nil
}
