// 包 fetch 封装抓取订阅用的 HTTP 客户端：代理、超时、失败重试
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

const defaultUserAgent = "FinsureHubBot/1.0 (+https://finsurehub.info)"

type Client struct {
	http      *http.Client
	retry     int
	userAgent string
}

type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	Retry      int
	UserAgent  string
}

func New(opts Options) (*Client, error) {
	var httpProxy, httpsProxy *url.URL
	if opts.ProxyHTTP != "" {
		u, err := url.Parse(opts.ProxyHTTP)
		if err != nil {
			return nil, fmt.Errorf("parse http proxy: %w", err)
		}
		httpProxy = u
	}
	if opts.ProxyHTTPS != "" {
		u, err := url.Parse(opts.ProxyHTTPS)
		if err != nil {
			return nil, fmt.Errorf("parse https proxy: %w", err)
		}
		httpsProxy = u
	}

	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" && httpsProxy != nil {
				return httpsProxy, nil
			}
			if req.URL.Scheme == "http" && httpProxy != nil {
				return httpProxy, nil
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Retry < 0 {
		opts.Retry = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Client{
		http:      &http.Client{Transport: transport, Timeout: opts.Timeout},
		retry:     opts.Retry,
		userAgent: opts.UserAgent,
	}, nil
}

// Get 非 2xx 或网络错误时按线性退避重试，调用方负责关闭 Body
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	for i := 0; i <= c.retry; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

		resp, err := c.http.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if err == nil {
			lastErr = fmt.Errorf("http status: %s", resp.Status)
			resp.Body.Close()
		} else {
			lastErr = err
		}
		if i == c.retry {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 300 * time.Millisecond):
		}
	}
	return nil, lastErr
}

// HTTPClient 暴露底层 *http.Client，供 colly 等需要共享传输配置的组件使用
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) UserAgent() string {
	return c.userAgent
}
