package llm

import (
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
)

// proxyFunc returns the transport proxy for provider requests. An empty
// proxy URL falls back to HTTP_PROXY / HTTPS_PROXY / NO_PROXY.
func proxyFunc(proxyURL string) (func(*http.Request) (*url.URL, error), error) {
	if proxyURL == "" {
		return http.ProxyFromEnvironment, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid LLM proxy URL %q", proxyURL)
	}
	return http.ProxyURL(u), nil
}

// newHTTPClient builds the client shared by the HTTP-based providers
func newHTTPClient(config Config, fallback int) (*http.Client, error) {
	proxy, err := proxyFunc(config.Proxy)
	if err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = fallback
	}

	return &http.Client{
		Timeout:   secondsToDuration(timeout),
		Transport: &http.Transport{Proxy: proxy},
	}, nil
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
