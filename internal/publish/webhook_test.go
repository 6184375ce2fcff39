package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testRequest() *Request {
	return &Request{
		ContentItemID: 1,
		VersionNo:     1,
		Channel:       "web",
		Title:         "headline",
		Body:          "body",
	}
}

func TestWebhookPublishSuccess(t *testing.T) {
	var got Request
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"post-42"}`))
	}))
	t.Cleanup(srv.Close)

	p := NewWebhookPublisher("web", srv.URL, "secret")
	res, err := p.AttemptPublish(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "post-42", res.ExternalPostID)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "headline", got.Title)
}

func TestWebhookPublishSuccessWithoutID(t *testing.T) {
	srv := webhookServer(t, http.StatusOK, `not json`)

	p := NewWebhookPublisher("web", srv.URL, "")
	res, err := p.AttemptPublish(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, res.ExternalPostID)
}

func TestWebhookPublishClassifiesFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantKind    ErrorKind
		wantAuth    bool
		wantLimited bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantKind: KindTransient, wantAuth: true},
		{name: "forbidden", status: http.StatusForbidden, wantKind: KindTransient, wantAuth: true},
		{name: "rate limited", status: http.StatusTooManyRequests, wantKind: KindTransient, wantLimited: true},
		{name: "bad request", status: http.StatusBadRequest, wantKind: KindPermanent},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, wantKind: KindPermanent},
		{name: "server error", status: http.StatusInternalServerError, wantKind: KindTransient},
		{name: "bad gateway", status: http.StatusBadGateway, wantKind: KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := webhookServer(t, tt.status, "")
			p := NewWebhookPublisher("web", srv.URL, "")

			_, err := p.AttemptPublish(context.Background(), testRequest())
			require.Error(t, err)

			perr := AsError(err)
			assert.Equal(t, tt.wantKind, perr.Kind)
			assert.Equal(t, tt.wantAuth, perr.AuthError)
			assert.Equal(t, tt.wantLimited, perr.RateLimited)
		})
	}
}

func TestWebhookPublishTransportError(t *testing.T) {
	srv := webhookServer(t, http.StatusOK, "")
	url := srv.URL
	srv.Close()

	p := NewWebhookPublisher("web", url, "")
	_, err := p.AttemptPublish(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, KindTransient, AsError(err).Kind)
	assert.True(t, AsError(err).Retryable())
}
