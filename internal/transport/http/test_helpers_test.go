package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relayhub/internal/auth"
	"github.com/vovakirdan/relayhub/internal/config"
	"github.com/vovakirdan/relayhub/internal/core"
	"github.com/vovakirdan/relayhub/internal/metrics"
	"github.com/vovakirdan/relayhub/internal/payout"
	"github.com/vovakirdan/relayhub/internal/proof/prooftest"
	"github.com/vovakirdan/relayhub/internal/store/sqlite"
)

const testStartTime uint64 = 1_000

type testServer struct {
	*httptest.Server
	hub   *core.Hub
	clock *core.ManualClock
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	registry := prometheus.NewRegistry()
	clock := core.NewManualClock(testStartTime)

	hub, err := core.NewHub(core.Deps{
		Store:      st,
		Verifier:   prooftest.Placeholder{},
		Transferer: payout.NewLedger(&logger),
		Clock:      clock,
		Metrics:    metrics.NewCollector(registry),
		Logger:     &logger,
	})
	if err != nil {
		t.Fatalf("create hub: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.RateLimitPerMinute = 0
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "relayhub-test",
		Audience: "relayhub-test",
		TTL:      time.Hour,
	})

	server := NewServer(hub, authService, &cfg, registry, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, hub: hub, clock: clock}
}

// account is a caller with its own key and bearer token.
type account struct {
	key   *ecdsa.PrivateKey
	addr  common.Address
	token string
}

func newAccount(t *testing.T) *account {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &account{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (a *account) sign(t *testing.T, message string) string {
	t.Helper()

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), a.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return hexutil.Encode(sig)
}

// login runs the nonce/sign/login exchange and stores the token on a.
func (ts *testServer) login(t *testing.T, a *account) {
	t.Helper()

	var nonce NonceResponse
	resp := ts.do(t, stdhttp.MethodPost, "/api/auth/nonce", "", NonceRequest{Address: a.addr.Hex()})
	expectStatus(t, resp, stdhttp.StatusOK)
	decode(t, resp, &nonce)

	var out AuthResponse
	resp = ts.do(t, stdhttp.MethodPost, "/api/auth/login", "", LoginRequest{
		Address:   a.addr.Hex(),
		Signature: a.sign(t, nonce.Message),
	})
	expectStatus(t, resp, stdhttp.StatusOK)
	decode(t, resp, &out)
	if out.Token == "" {
		t.Fatal("expected token")
	}
	a.token = out.Token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := stdhttp.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) as(t *testing.T, a *account, path string, body any) *stdhttp.Response {
	t.Helper()
	return ts.do(t, stdhttp.MethodPost, path, a.token, body)
}

func (ts *testServer) get(t *testing.T, path string, out any) {
	t.Helper()

	resp := ts.do(t, stdhttp.MethodGet, path, "", nil)
	expectStatus(t, resp, stdhttp.StatusOK)
	decode(t, resp, out)
}

func expectStatus(t *testing.T, resp *stdhttp.Response, want int) {
	t.Helper()

	if resp.StatusCode != want {
		var body ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		t.Fatalf("%s %s: status %d, want %d (error %q code %q)",
			resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body.Error, body.Code)
	}
}

func expectError(t *testing.T, resp *stdhttp.Response, status int, code string) {
	t.Helper()

	if resp.StatusCode != status {
		t.Fatalf("%s: status %d, want %d", resp.Request.URL.Path, resp.StatusCode, status)
	}
	var body ErrorResponse
	decode(t, resp, &body)
	if body.Code != code {
		t.Fatalf("%s: code %q, want %q", resp.Request.URL.Path, body.Code, code)
	}
}

func decode(t *testing.T, resp *stdhttp.Response, out any) {
	t.Helper()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func validProof() string {
	return hexutil.Encode(prooftest.Valid())
}
