package bot

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ghabxph/happy-on-slack/internal/config"
)

type fakeHealth struct {
	err error
}

func (f fakeHealth) Health(context.Context) error { return f.err }

func testConfig() *config.Config {
	return &config.Config{
		SlackBotUserID:  testBotID,
		BotDisplayName:  "Happy",
		GeminiModel:     "gemini-test",
		EventsPath:      "/api/slack/events",
		HealthCheckPath: "/health",
		ServerPort:      8080,
	}
}

func newTestService(t *testing.T, cfg *config.Config) (*Service, *testHandler) {
	th := newTestHandler(t, nil)
	svc := New(cfg, zaptest.NewLogger(t), Dependencies{
		Handler: th.EventHandler,
		Seen:    th.seen,
	})
	return svc, th
}

func serve(svc *Service, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	svc.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSlackEvents_GetIsAlive(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	rec := serve(svc, httptest.NewRequest(http.MethodGet, "/api/slack/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Happy is alive! 🎉", body["message"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestSlackEvents_MethodNotAllowed(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	rec := serve(svc, httptest.NewRequest(http.MethodPut, "/api/slack/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSlackEvents_URLVerification(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/slack/events",
		bytes.NewBufferString(`{"type":"url_verification","challenge":"xyz"}`))
	rec := serve(svc, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"challenge":"xyz"}`, rec.Body.String())
}

func TestSlackEvents_RetryShortCircuits(t *testing.T) {
	svc, th := newTestService(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/slack/events",
		bytes.NewReader(mentionBody(t, "EvR", "U1", "<@UBOT> hi", "1.0", "")))
	req.Header.Set("X-Slack-Retry-Num", "1")
	req.Header.Set("X-Slack-Retry-Reason", "http_timeout")
	rec := serve(svc, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"message":"Retry ignored"}`, rec.Body.String())
	assert.Equal(t, 0, th.messenger.calls())
	assert.Equal(t, 0, th.generator.calls)
	assert.False(t, th.seen.Seen("EvR"), "retries are not even marked")
}

func TestSlackEvents_MentionReplies(t *testing.T) {
	svc, th := newTestService(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/slack/events",
		bytes.NewReader(mentionBody(t, "EvM", "U1", "<@UBOT> hi", "1.0", "")))
	rec := serve(svc, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	require.Len(t, th.messenger.posts, 1)
	assert.Equal(t, "1.0", th.messenger.posts[0].threadTS)
}

func TestSlackEvents_DuplicateDelivery(t *testing.T) {
	svc, th := newTestService(t, testConfig())
	body := mentionBody(t, "EvD", "U1", "<@UBOT> hi", "1.0", "")

	serve(svc, httptest.NewRequest(http.MethodPost, "/api/slack/events", bytes.NewReader(body)))
	rec := serve(svc, httptest.NewRequest(http.MethodPost, "/api/slack/events", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"message":"Duplicate ignored"}`, rec.Body.String())
	assert.Len(t, th.messenger.posts, 1)
}

func TestSlackEvents_HandlerErrorIs500(t *testing.T) {
	svc, th := newTestService(t, testConfig())
	th.generator.err = errors.New("upstream unavailable")

	req := httptest.NewRequest(http.MethodPost, "/api/slack/events",
		bytes.NewReader(mentionBody(t, "EvE", "U1", "<@UBOT> hi", "1.0", "")))
	rec := serve(svc, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestSlackEvents_MalformedJSONIs500(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	rec := serve(svc, httptest.NewRequest(http.MethodPost, "/api/slack/events", bytes.NewBufferString("nope")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func signedRequest(t *testing.T, secret string, body []byte, ts time.Time) *http.Request {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", stamp, body)

	req := httptest.NewRequest(http.MethodPost, "/api/slack/events", bytes.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", stamp)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestSlackEvents_SignatureVerification(t *testing.T) {
	cfg := testConfig()
	cfg.SlackSigningSecret = "shhh"
	svc, th := newTestService(t, cfg)

	t.Run("valid signature", func(t *testing.T) {
		body := []byte(`{"type":"url_verification","challenge":"signed"}`)
		rec := serve(svc, signedRequest(t, "shhh", body, time.Now()))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"challenge":"signed"}`, rec.Body.String())
	})

	t.Run("wrong secret", func(t *testing.T) {
		body := mentionBody(t, "EvS", "U1", "<@UBOT> hi", "1.0", "")
		rec := serve(svc, signedRequest(t, "guess", body, time.Now()))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 0, th.generator.calls)
	})

	t.Run("missing headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/slack/events",
			bytes.NewBufferString(`{"type":"url_verification","challenge":"x"}`))
		rec := serve(svc, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		body := []byte(`{"type":"url_verification","challenge":"old"}`)
		rec := serve(svc, signedRequest(t, "shhh", body, time.Now().Add(-time.Hour)))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy without database", func(t *testing.T) {
		svc, th := newTestService(t, testConfig())
		th.seen.Mark("Ev1")

		rec := serve(svc, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, testBotID, body["bot_user_id"])
		assert.EqualValues(t, 1, body["tracked_events"])
		assert.NotContains(t, body, "database")
	})

	t.Run("degraded database", func(t *testing.T) {
		th := newTestHandler(t, nil)
		svc := New(testConfig(), zaptest.NewLogger(t), Dependencies{
			Handler:  th.EventHandler,
			Seen:     th.seen,
			Database: fakeHealth{err: errors.New("connection refused")},
		})

		rec := serve(svc, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "connection refused", body["database"])
	})
}

func TestVersion(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	rec := serve(svc, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Happy", body["bot_name"])
	assert.Equal(t, "gemini-test", body["model"])
	assert.Contains(t, body, "version")
}

func TestHome(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	rec := serve(svc, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "@Happy")
	assert.Contains(t, rec.Body.String(), `href="/api/slack/events"`)

	assert.Equal(t, http.StatusNotFound, serve(svc, httptest.NewRequest(http.MethodGet, "/nope", nil)).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(svc, httptest.NewRequest(http.MethodPost, "/", nil)).Code)
}

type fakeIdentity struct {
	id  string
	err error
}

func (f fakeIdentity) BotUserID(context.Context) (string, error) { return f.id, f.err }

type fakeNotifier struct {
	called chan string
}

func (f fakeNotifier) NotifyStartup(_ context.Context, v string) error {
	f.called <- v
	return nil
}

func TestServiceStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.SlackBotUserID = ""
	cfg.ServerHost = "127.0.0.1"
	cfg.ServerPort = 0

	th := newTestHandler(t, nil)
	notifier := fakeNotifier{called: make(chan string, 1)}
	svc := New(cfg, zaptest.NewLogger(t), Dependencies{
		Handler:  th.EventHandler,
		Seen:     th.seen,
		Identity: fakeIdentity{id: "UAUTH"},
		Notifier: notifier,
	})

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, "UAUTH", th.cfg.BotUserID)

	select {
	case <-notifier.called:
	case <-time.After(time.Second):
		t.Fatal("startup notification not sent")
	}

	svc.Stop()
}

func TestServiceStart_IdentityFailureIsNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.SlackBotUserID = ""
	cfg.ServerHost = "127.0.0.1"
	cfg.ServerPort = 0

	th := newTestHandler(t, nil)
	svc := New(cfg, zaptest.NewLogger(t), Dependencies{
		Handler:  th.EventHandler,
		Seen:     th.seen,
		Identity: fakeIdentity{err: errors.New("invalid_auth")},
	})

	require.NoError(t, svc.Start(context.Background()))
	assert.Empty(t, th.cfg.BotUserID)
	svc.Stop()
}

func TestSlackEvents_ChannelCreatedIsOK(t *testing.T) {
	svc, th := newTestService(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/slack/events",
		bytes.NewBufferString(`{"type":"event_callback","event_id":"EvC","event":{"type":"channel_created","channel":{"id":"C9"}}}`))
	rec := serve(svc, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, 0, th.messenger.calls())
}
