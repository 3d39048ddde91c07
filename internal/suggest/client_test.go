package suggest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/keyword-radar/internal/models"
	"github.com/DeafMist/keyword-radar/internal/suggest"
)

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		wantErr bool
	}{
		{name: "firefox client", body: `["ai generate",["ai generate logo","ai generate text"]]`, want: []string{"ai generate logo", "ai generate text"}},
		{name: "extra elements", body: `["q",["a","b"],[],{"google:suggesttype":["QUERY","QUERY"]}]`, want: []string{"a", "b"}},
		{name: "nested entries", body: `[["q"],[["ai logo",0,[512]],["ai text",0]]]`, want: []string{"ai logo", "ai text"}},
		{name: "xssi prefix", body: ")]}'\n[\"q\",[\"ai art\"]]", want: []string{"ai art"}},
		{name: "skips non strings and blanks", body: `["q",["  ai art ",42,null,"",{"x":1}]]`, want: []string{"ai art"}},
		{name: "no suggestions", body: `["q",[]]`, want: []string{}},
		{name: "empty body", body: "  ", wantErr: true},
		{name: "html block page", body: "<html>unusual traffic</html>", wantErr: true},
		{name: "too short", body: `["q"]`, wantErr: true},
		{name: "list is object", body: `["q",{"a":1}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := suggest.ParseSuggestions([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestClientURL(t *testing.T) {
	client, err := suggest.NewClient("https://suggest.example/complete/search?ds=yt", "chrome", "zh-CN")
	require.NoError(t, err)

	u, err := url.Parse(client.URL("ai 写作 & more"))
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "ai 写作 & more", q.Get("q"))
	require.Equal(t, "chrome", q.Get("client"))
	require.Equal(t, "zh-CN", q.Get("hl"))
	require.Equal(t, "yt", q.Get("ds"))
	require.Equal(t, "/complete/search", u.Path)
}

func TestNewClientRejectsBadEndpoint(t *testing.T) {
	_, err := suggest.NewClient("ftp://example.com", "", "")
	require.Error(t, err)
	_, err = suggest.NewClient("://bad", "", "")
	require.Error(t, err)
}

func TestFetchClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		timeout  time.Duration
		kind     models.FailureKind
		sentinel error
	}{
		{
			name:     "status",
			handler:  func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			kind:     models.FailureStatus,
			sentinel: suggest.ErrEndpointProtocol,
		},
		{
			name:     "malformed",
			handler:  func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("not json")) },
			kind:     models.FailureMalformed,
			sentinel: suggest.ErrEndpointProtocol,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout:  50 * time.Millisecond,
			kind:     models.FailureTimeout,
			sentinel: suggest.ErrTransientNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client, err := suggest.NewClient(srv.URL, "", "")
			require.NoError(t, err)
			rotator, err := suggest.NewProxyRotator(nil)
			require.NoError(t, err)

			timeout := tt.timeout
			if timeout == 0 {
				timeout = time.Second
			}
			_, err = client.Fetch(context.Background(), rotator.Next(), "q", http.Header{}, timeout)
			require.Error(t, err)
			require.ErrorIs(t, err, tt.sentinel)

			var attemptErr *suggest.AttemptError
			require.True(t, errors.As(err, &attemptErr))
			require.Equal(t, tt.kind, attemptErr.Kind)
			require.True(t, attemptErr.Retryable())
		})
	}
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client, err := suggest.NewClient(endpoint, "", "")
	require.NoError(t, err)
	rotator, err := suggest.NewProxyRotator(nil)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), rotator.Next(), "q", http.Header{}, time.Second)
	require.ErrorIs(t, err, suggest.ErrTransientNetwork)
}

func TestFetchSendsHeaders(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`["q",["x"]]`))
	}))
	defer srv.Close()

	client, err := suggest.NewClient(srv.URL, "", "")
	require.NoError(t, err)
	rotator, err := suggest.NewProxyRotator(nil)
	require.NoError(t, err)

	header := suggest.NewHeaderPool([]string{"radar-test/1.0"}).Next()
	got, err := client.Fetch(context.Background(), rotator.Next(), "q", header, time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, got)
	require.Equal(t, "radar-test/1.0", gotUA)
}
