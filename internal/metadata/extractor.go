// Package metadata scrapes title, description and type hints from remote pages.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/metrics"
)

// DefaultMediaType is reported when a page carries no og:type.
const DefaultMediaType = "website"

const defaultTimeout = 15 * time.Second

// ErrFetchFailed wraps every failure to fetch or parse a page.
var ErrFetchFailed = errors.New("metadata: fetch failed")

// Metadata is the best-effort description of a page.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	MediaType   string `json:"mediaType"`
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Extractor fetches pages with a Colly collector.
type Extractor struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	if cfg.Transport != nil {
		c.WithTransport(cfg.Transport)
	} else {
		c.WithTransport(newHTTPTransport())
	}
	c.SetRequestTimeout(cfg.Timeout)

	return &Extractor{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Extract fetches rawURL and reads its metadata. The URL is not validated
// beforehand; malformed input surfaces as ErrFetchFailed.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Metadata, error) {
	var (
		result   Metadata
		parsed   bool
		fetchErr error
	)

	collector := e.baseCollector.Clone()
	if e.cfg.UserAgent != "" {
		collector.UserAgent = e.cfg.UserAgent
	}
	collector.OnHTML("html", func(element *colly.HTMLElement) {
		if parsed {
			return
		}
		result = FromSelection(element.DOM)
		parsed = true
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := e.run(ctx, collector, rawURL, &fetchErr); err != nil {
		metrics.ObserveMetadataFetch("failure")
		e.logger.Warn("metadata extraction failed", zap.String("url", rawURL), zap.Error(err))
		return Metadata{}, err
	}
	if !parsed {
		metrics.ObserveMetadataFetch("failure")
		err := fmt.Errorf("%w: response is not an html document", ErrFetchFailed)
		e.logger.Warn("metadata extraction failed", zap.String("url", rawURL), zap.Error(err))
		return Metadata{}, err
	}

	metrics.ObserveMetadataFetch("success")
	return result, nil
}

func (e *Extractor) run(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrFetchFailed, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("%w: %w", ErrFetchFailed, *fetchErr)
		}
		return nil
	}
}

// FromSelection reads Open Graph tags from a parsed document, falling back to
// the <title> element, the description meta tag and DefaultMediaType.
func FromSelection(document *goquery.Selection) Metadata {
	title := metaContent(document, `meta[property="og:title"]`)
	if title == "" {
		title = strings.TrimSpace(document.Find("title").First().Text())
	}

	description := metaContent(document, `meta[property="og:description"]`)
	if description == "" {
		description = metaContent(document, `meta[name="description"]`)
	}

	mediaType := metaContent(document, `meta[property="og:type"]`)
	if mediaType == "" {
		mediaType = DefaultMediaType
	}

	return Metadata{
		Title:       title,
		Description: description,
		MediaType:   mediaType,
	}
}

func metaContent(document *goquery.Selection, selector string) string {
	content, _ := document.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
	}
}
