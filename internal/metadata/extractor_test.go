package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const openGraphPage = `<!doctype html>
<html><head>
<title>Fallback title</title>
<meta property="og:title" content="Open Graph title">
<meta property="og:description" content="Open Graph description">
<meta name="description" content="Plain description">
<meta property="og:type" content="article">
</head><body></body></html>`

const plainPage = `<!doctype html>
<html><head><title> Plain page </title></head><body><p>hi</p></body></html>`

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/og", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(openGraphPage))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(plainPage))
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFromSelectionPrefersOpenGraph(t *testing.T) {
	document, err := goquery.NewDocumentFromReader(strings.NewReader(openGraphPage))
	require.NoError(t, err)

	got := FromSelection(document.Selection)
	require.Equal(t, Metadata{
		Title:       "Open Graph title",
		Description: "Open Graph description",
		MediaType:   "article",
	}, got)
}

func TestFromSelectionFallsBackToDescriptionTag(t *testing.T) {
	page := `<html><head><meta name="description" content="Plain description"></head></html>`
	document, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	got := FromSelection(document.Selection)
	require.Equal(t, "", got.Title)
	require.Equal(t, "Plain description", got.Description)
	require.Equal(t, DefaultMediaType, got.MediaType)
}

func TestExtractOpenGraphPage(t *testing.T) {
	server := newPageServer(t)
	extractor := New(Config{UserAgent: "test-agent", Timeout: time.Second}, nil)

	got, err := extractor.Extract(context.Background(), server.URL+"/og")
	require.NoError(t, err)
	require.Equal(t, "Open Graph title", got.Title)
	require.Equal(t, "Open Graph description", got.Description)
	require.Equal(t, "article", got.MediaType)
}

func TestExtractWithoutOpenGraphFallsBack(t *testing.T) {
	server := newPageServer(t)
	extractor := New(Config{Timeout: time.Second}, nil)

	got, err := extractor.Extract(context.Background(), server.URL+"/plain")
	require.NoError(t, err)
	require.Equal(t, Metadata{Title: "Plain page", Description: "", MediaType: "website"}, got)
}

func TestExtractUnreachableURLFails(t *testing.T) {
	server := newPageServer(t)
	unreachable := server.URL
	server.Close()
	extractor := New(Config{Timeout: time.Second}, nil)

	_, err := extractor.Extract(context.Background(), unreachable+"/og")
	require.ErrorIs(t, err, ErrFetchFailed)
}

func TestExtractMalformedURLFails(t *testing.T) {
	extractor := New(Config{Timeout: time.Second}, nil)

	_, err := extractor.Extract(context.Background(), "::not a url::")
	require.ErrorIs(t, err, ErrFetchFailed)
}

func TestExtractNonHTMLFails(t *testing.T) {
	server := newPageServer(t)
	extractor := New(Config{Timeout: time.Second}, nil)

	_, err := extractor.Extract(context.Background(), server.URL+"/json")
	require.ErrorIs(t, err, ErrFetchFailed)
}

func TestExtractHonoursContextCancellation(t *testing.T) {
	server := newPageServer(t)
	extractor := New(Config{Timeout: 5 * time.Second}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := extractor.Extract(ctx, server.URL+"/slow")
	require.ErrorIs(t, err, ErrFetchFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
