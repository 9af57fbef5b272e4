package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"botfleet/internal/db"
	"botfleet/internal/domain"
	"botfleet/internal/gateway"
	"botfleet/internal/migrate"
	"botfleet/internal/notify"
	"botfleet/internal/repo"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL     string
	Gateway gateway.Gateway
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	notifier := notify.New(repo.Repo{DB: conn}, nil, 0, log.New(io.Discard, "", 0))
	gw := gateway.New(conn, notifier)
	handler, err := New(Config{
		Gateway:  gw,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testJWTSecret, Logger: log.New(io.Discard, "", 0)},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Gateway: gw,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			notifier.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func seedBotToken(t *testing.T, gw gateway.Gateway) (domain.Bot, domain.APIToken) {
	t.Helper()
	ctx := context.Background()
	bot, err := gw.CreateBot(ctx, gateway.BotCreateOptions{Name: "wire-bot", Type: "monitor"})
	if err != nil {
		t.Fatalf("create bot: %v", err)
	}
	token, err := gw.Repo.IssueToken(ctx, bot.ID, "wire")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return bot, token
}

func adminJWT(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestPingAndHealthNeedNoCredential(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/bot/ping", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ping status %d: %s", res.StatusCode, data)
	}
	var ping struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &ping); err != nil {
		t.Fatalf("unmarshal ping: %v", err)
	}
	if !ping.Success || ping.Message != "pong" {
		t.Fatalf("ping body = %s", data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, data)
	}
}

func TestHeartbeatAcceptsAllCredentialCarriers(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	bot, token := seedBotToken(t, srv.Gateway)

	cases := []struct {
		name    string
		body    map[string]any
		headers map[string]string
	}{
		{"bearer header", map[string]any{"activity": "a"}, map[string]string{"Authorization": "Bearer " + token.Token}},
		{"x-bot-token header", map[string]any{"activity": "b"}, map[string]string{"X-Bot-Token": token.Token}},
		{"body field", map[string]any{"authorization": token.Token, "activity": "c"}, nil},
	}
	for _, tc := range cases {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/bot/heartbeat", tc.body, tc.headers)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d: %s", tc.name, res.StatusCode, data)
		}
		var ack struct {
			Success bool  `json:"success"`
			BotID   int64 `json:"botId"`
		}
		if err := json.Unmarshal(data, &ack); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if !ack.Success || ack.BotID != bot.ID {
			t.Fatalf("%s: ack = %s", tc.name, data)
		}
	}

	got, err := srv.Gateway.Repo.GetBot(context.Background(), bot.ID)
	if err != nil {
		t.Fatalf("get bot: %v", err)
	}
	if got.TotalOperations != 3 {
		t.Fatalf("operations = %d, want 3", got.TotalOperations)
	}
}

func TestRevokedTokenRESTVersusRPC(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, token := seedBotToken(t, srv.Gateway)
	if err := srv.Gateway.Repo.RevokeToken(context.Background(), token.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// REST rejects at the transport.
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/bot/heartbeat", map[string]any{
		"authorization": token.Token,
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("rest status %d: %s", res.StatusCode, data)
	}
	var restAck struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &restAck); err != nil {
		t.Fatalf("unmarshal rest: %v", err)
	}
	if restAck.Success || restAck.Error == "" {
		t.Fatalf("rest body = %s", data)
	}

	// RPC carries the denial in the result.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/rpc/bot.heartbeat", map[string]any{
		"authorization": token.Token,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rpc status %d: %s", res.StatusCode, data)
	}
	var rpcRes struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &rpcRes); err != nil {
		t.Fatalf("unmarshal rpc: %v", err)
	}
	if rpcRes.Success || rpcRes.Error == "" {
		t.Fatalf("rpc body = %s", data)
	}
}

func TestRPCHeartbeatMatchesREST(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	bot, token := seedBotToken(t, srv.Gateway)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/rpc/bot.heartbeat", map[string]any{
		"authorization": token.Token,
		"activity":      "rpc path",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rpc status %d: %s", res.StatusCode, data)
	}
	var ack struct {
		Success bool  `json:"success"`
		BotID   int64 `json:"botId"`
	}
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ack.Success || ack.BotID != bot.ID {
		t.Fatalf("rpc ack = %s", data)
	}
}

func TestRESTMediaValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, token := seedBotToken(t, srv.Gateway)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/bot/media", map[string]any{
		"authorization": token.Token,
		"sourceUrl":     "not a url",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/bot/media", map[string]any{
		"authorization": token.Token,
		"sourceUrl":     "https://example.com/v.mp4",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var out struct {
		Success bool             `json:"success"`
		Media   domain.MediaItem `json:"media"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Media.Status != "pending" {
		t.Fatalf("media = %+v", out.Media)
	}
}

func TestAdminRequiresJWT(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	bot, _ := seedBotToken(t, srv.Gateway)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/admin/bots", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no credential status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/admin/bots", nil, map[string]string{
		"Authorization": "Bearer not-a-jwt",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage credential status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/admin/bots", nil, map[string]string{
		"Authorization": "Bearer " + adminJWT(t),
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("signed credential status %d: %s", res.StatusCode, data)
	}
	var bots []domain.Bot
	if err := json.Unmarshal(data, &bots); err != nil {
		t.Fatalf("unmarshal bots: %v", err)
	}
	if len(bots) != 1 || bots[0].ID != bot.ID {
		t.Fatalf("bots = %+v", bots)
	}
}

func TestAdminStatusChangeRaisesNotification(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	bot, _ := seedBotToken(t, srv.Gateway)
	auth := map[string]string{"Authorization": "Bearer " + adminJWT(t)}

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/admin/bots/"+strconv.FormatInt(bot.ID, 10)+"/status", map[string]any{
		"status": "offline",
	}, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/admin/notifications", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list notifications status %d: %s", res.StatusCode, data)
	}
	var feed []domain.Notification
	if err := json.Unmarshal(data, &feed); err != nil {
		t.Fatalf("unmarshal feed: %v", err)
	}
	if len(feed) != 1 || feed[0].Type != domain.NotifyBotDown {
		t.Fatalf("feed = %+v", feed)
	}
}
