// Package rss 负责抓取订阅源原始内容并解析为 gofeed 文档。
package rss

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"
)

const (
	defaultFetchTimeout = 20 * time.Second
	defaultUserAgent    = "podnotify/1.0"
	maxBodySize         = 16 << 20 // 单个订阅源最大 16MB
)

// xmlDeclEncoding 匹配 XML 声明中的 encoding 属性
var xmlDeclEncoding = regexp.MustCompile(`^(\s*<\?xml[^>]*?encoding=)["'][^"']*["']`)

// FetchError 抓取失败。StatusCode 为 0 表示请求未得到响应。
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("抓取 %s 失败: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("抓取 %s 失败: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher 负责抓取订阅源并解析。不做重试，超时由 http.Client 控制。
type Fetcher struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
}

// NewFetcher 创建订阅源抓取器。timeout 或 userAgent 为零值时使用默认值。
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		parser:    parser,
		userAgent: userAgent,
	}
}

// Fetch 抓取订阅源原始内容，并按 Content-Type 转码为 UTF-8。
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return toUTF8(raw, resp.Header.Get("Content-Type")), nil
}

// toUTF8 在响应头声明了非 UTF-8 字符集（如 GBK、ISO-8859-1）时转码，
// 并同步改写 XML 声明，避免解析器再次解码。未声明时交给解析器按 XML 声明处理。
func toUTF8(raw []byte, contentType string) []byte {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return raw
	}
	enc, name := charset.Lookup(params["charset"])
	if enc == nil || name == "utf-8" {
		return raw
	}
	decoded, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(raw)))
	if err != nil {
		return raw
	}
	return xmlDeclEncoding.ReplaceAll(decoded, []byte(`${1}"UTF-8"`))
}

// Parse 将原始内容解析为 gofeed 文档。
func (f *Fetcher) Parse(raw []byte) (*gofeed.Feed, error) {
	feed, err := f.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("无法解析订阅源: %w", err)
	}
	return feed, nil
}
