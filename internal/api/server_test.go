package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"AegisVault/internal/auth"
	"AegisVault/internal/custody"
	"AegisVault/internal/model"
	"AegisVault/internal/pricefeed"
	"AegisVault/internal/recorder"
	"AegisVault/internal/vault"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	mallory = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

type fixture struct {
	t       *testing.T
	handler http.Handler
	vault   *vault.Vault
	jwt     auth.JWT
	now     *time.Time
}

type staticJournal struct{ entries []recorder.JournalEntry }

func (j staticJournal) RecordObservation(*model.Observation) error { return nil }
func (j staticJournal) Recent(limit int) ([]recorder.JournalEntry, error) {
	if limit < len(j.entries) {
		return j.entries[:limit], nil
	}
	return j.entries, nil
}
func (j staticJournal) Close() error { return nil }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	book := custody.NewBook(false)
	opts := vault.DefaultOptions(owner)
	opts.Custodian = book
	now := time.Unix(1700000000, 0)
	opts.Clock = func() time.Time { return now }
	v, err := vault.New(context.Background(), opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	feed, _ := pricefeed.NewStaticFeed("ETH", "2500")
	j := auth.JWT{Secret: []byte("0123456789abcdef0123"), TokenTTL: time.Hour, Issuer: "aegis-vault"}

	obs := model.NewObservation(model.ObservationDeposit, time.Unix(1700000000, 0))
	srv := NewServer(Deps{
		Vault:   v,
		Custody: book,
		Journal: staticJournal{entries: []recorder.JournalEntry{{ID: 1, Observation: obs}}},
		Valuer:  pricefeed.NewValuer(feed, nil),
		JWT:     j,
	})
	return &fixture{t: t, handler: srv.Handler(), vault: v, jwt: j, now: &now}
}

func (f *fixture) token(addr common.Address, role string) string {
	tok, _, err := f.jwt.Sign(auth.Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{Subject: addr.Hex()}})
	if err != nil {
		f.t.Fatal(err)
	}
	return tok
}

func (f *fixture) do(method, path, token string, body any) (int, envelope) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			f.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		f.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func errCode(env envelope) any { return env.Meta["error"] }

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(http.MethodGet, "/healthz", "", nil)
	if code != http.StatusOK {
		t.Fatalf("healthz = %d", code)
	}
	code, _ = f.do(http.MethodGet, "/v1/vault", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated vault = %d", code)
	}
}

func TestServer_DepositWithdraw(t *testing.T) {
	f := newFixture(t)
	ownerTok := f.token(owner, auth.RoleUser)
	aliceTok := f.token(alice, auth.RoleUser)

	code, env := f.do(http.MethodPost, "/v1/deposit", aliceTok, amountRequest{Amount: "100"})
	if code != http.StatusUnprocessableEntity || errCode(env) != "TransferFailed" {
		t.Fatalf("unfunded deposit = %d %v", code, env.Meta)
	}

	code, env = f.do(http.MethodPost, "/v1/admin/credit", aliceTok, creditRequest{Address: alice.Hex(), Amount: "1000"})
	if code != http.StatusForbidden || errCode(env) != "Unauthorized" {
		t.Fatalf("credit by non-owner = %d %v", code, env.Meta)
	}
	code, _ = f.do(http.MethodPost, "/v1/admin/credit", ownerTok, creditRequest{Address: alice.Hex(), Amount: "1000"})
	if code != http.StatusOK {
		t.Fatalf("credit = %d", code)
	}

	code, env = f.do(http.MethodPost, "/v1/deposit", aliceTok, amountRequest{Amount: "400"})
	if code != http.StatusOK {
		t.Fatalf("deposit = %d %s", code, env.Message)
	}
	var dep struct {
		SharesMinted string `json:"sharesMinted"`
	}
	_ = json.Unmarshal(env.Data, &dep)
	if dep.SharesMinted != "400" {
		t.Errorf("sharesMinted = %q", dep.SharesMinted)
	}

	code, env = f.do(http.MethodPost, "/v1/deposit", aliceTok, amountRequest{Amount: "abc"})
	if code != http.StatusBadRequest || errCode(env) != "InvalidAmount" {
		t.Errorf("bad amount = %d %v", code, env.Meta)
	}
	code, env = f.do(http.MethodPost, "/v1/deposit", aliceTok, amountRequest{Amount: "0"})
	if code != http.StatusBadRequest || errCode(env) != "InvalidAmount" {
		t.Errorf("zero deposit = %d %v", code, env.Meta)
	}
	code, env = f.do(http.MethodPost, "/v1/withdraw", aliceTok, amountRequest{Amount: "401"})
	if code != http.StatusConflict || errCode(env) != "InsufficientShares" {
		t.Errorf("overdraw = %d %v", code, env.Meta)
	}
	code, _ = f.do(http.MethodPost, "/v1/withdraw", aliceTok, amountRequest{Amount: "150"})
	if code != http.StatusOK {
		t.Errorf("withdraw = %d", code)
	}
	if got := f.vault.SharesOf(alice).Int64(); got != 250 {
		t.Errorf("shares = %d, want 250", got)
	}

	code, env = f.do(http.MethodGet, "/v1/vault", aliceTok, nil)
	if code != http.StatusOK {
		t.Fatalf("vault = %d", code)
	}
	var summary map[string]any
	_ = json.Unmarshal(env.Data, &summary)
	if summary["totalAssets"] != "250" || summary["navPerShare"] != "1000000" {
		t.Errorf("vault summary = %v", summary)
	}
	if _, ok := summary["valueUSD"]; !ok {
		t.Error("expected USD valuation")
	}
}

func TestServer_InsightRoundTrip(t *testing.T) {
	f := newFixture(t)
	aliceTok := f.token(alice, auth.RoleUser)
	oracleTok := f.token(owner, auth.RoleOracle)

	code, env := f.do(http.MethodPost, "/v1/insights", aliceTok, insightRequest{AssetType: "Real Estate", RiskProfile: "Moderate"})
	if code != http.StatusAccepted {
		t.Fatalf("request insight = %d %s", code, env.Message)
	}
	var req model.PendingRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		t.Fatal(err)
	}

	code, env = f.do(http.MethodPost, "/v1/insights", aliceTok, nil)
	if code != http.StatusConflict || errCode(env) != "AlreadyPending" {
		t.Errorf("second request = %d %v", code, env.Meta)
	}

	code, _ = f.do(http.MethodGet, "/v1/insights/requests/"+req.RequestID, aliceTok, nil)
	if code != http.StatusOK {
		t.Errorf("status = %d", code)
	}

	callback := `{"requestId":"` + req.RequestID + `","recommendation":"BUY","confidence":87,"riskLevel":"LOW","reasoning":"Strong fundamentals"}`
	code, _ = f.do(http.MethodPost, "/v1/oracle/callback", aliceTok, callback)
	if code != http.StatusForbidden {
		t.Errorf("callback by user = %d", code)
	}
	code, env = f.do(http.MethodPost, "/v1/oracle/callback", oracleTok, `{"requestId":"`+req.RequestID+`","recommendation":"BUY","confidence":"87","riskLevel":"LOW"}`)
	if code != http.StatusBadRequest || errCode(env) != "MalformedResponse" {
		t.Errorf("malformed callback = %d %v", code, env.Meta)
	}
	code, _ = f.do(http.MethodPost, "/v1/oracle/callback", oracleTok, callback)
	if code != http.StatusOK {
		t.Fatalf("callback = %d", code)
	}
	code, env = f.do(http.MethodPost, "/v1/oracle/callback", oracleTok, callback)
	if code != http.StatusNotFound || errCode(env) != "UnknownRequest" {
		t.Errorf("duplicate callback = %d %v", code, env.Meta)
	}

	acct := f.vault.Account(alice)
	if acct.Pending() || acct.Insight.Recommendation != model.RecommendationBuy || acct.Insight.Confidence != 87 {
		t.Errorf("account after callback = %+v", acct)
	}

	code, env = f.do(http.MethodPost, "/v1/insights/requests/unknown/expire", aliceTok, nil)
	if code != http.StatusOK {
		t.Errorf("expire unknown = %d", code)
	}
	var exp struct {
		Expired bool `json:"expired"`
	}
	_ = json.Unmarshal(env.Data, &exp)
	if exp.Expired {
		t.Error("unknown request should not report expired")
	}
}

func TestServer_ExpireRequestByThirdParty(t *testing.T) {
	f := newFixture(t)
	aliceTok := f.token(alice, auth.RoleUser)
	malloryTok := f.token(mallory, auth.RoleUser)

	code, env := f.do(http.MethodPost, "/v1/insights", aliceTok, nil)
	if code != http.StatusAccepted {
		t.Fatalf("request insight = %d %s", code, env.Message)
	}
	var req model.PendingRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		t.Fatal(err)
	}
	*f.now = f.now.Add(2 * time.Second)

	expire := func(tok string) bool {
		t.Helper()
		code, env := f.do(http.MethodPost, "/v1/insights/requests/"+req.RequestID+"/expire", tok, `{"timeoutSeconds":0}`)
		if code != http.StatusOK {
			t.Fatalf("expire = %d %s", code, env.Message)
		}
		var out struct {
			Expired bool `json:"expired"`
		}
		_ = json.Unmarshal(env.Data, &out)
		return out.Expired
	}

	if expire(malloryTok) {
		t.Error("third party expired a fresh request")
	}
	if !f.vault.Account(alice).Pending() {
		t.Fatal("alice should still be pending")
	}

	*f.now = f.now.Add(16 * time.Minute)
	if !expire(malloryTok) {
		t.Error("third party should expire a request past the configured timeout")
	}
}

func TestServer_ExpireRequestByAccount(t *testing.T) {
	f := newFixture(t)
	aliceTok := f.token(alice, auth.RoleUser)

	code, env := f.do(http.MethodPost, "/v1/insights", aliceTok, nil)
	if code != http.StatusAccepted {
		t.Fatalf("request insight = %d %s", code, env.Message)
	}
	var req model.PendingRequest
	_ = json.Unmarshal(env.Data, &req)
	*f.now = f.now.Add(2 * time.Second)

	code, env = f.do(http.MethodPost, "/v1/insights/requests/"+req.RequestID+"/expire", aliceTok, `{"timeoutSeconds":1}`)
	if code != http.StatusOK {
		t.Fatalf("expire = %d %s", code, env.Message)
	}
	if f.vault.Account(alice).Pending() {
		t.Error("account should be able to cancel its own stale request")
	}
}

func TestServer_AdminAndUpkeep(t *testing.T) {
	f := newFixture(t)
	ownerTok := f.token(owner, auth.RoleUser)
	aliceTok := f.token(alice, auth.RoleUser)

	code, env := f.do(http.MethodPost, "/v1/admin/pause", aliceTok, pauseRequest{Reason: "nope"})
	if code != http.StatusForbidden || errCode(env) != "Unauthorized" {
		t.Errorf("pause by user = %d %v", code, env.Meta)
	}
	code, _ = f.do(http.MethodPost, "/v1/admin/pause", ownerTok, pauseRequest{Reason: "incident"})
	if code != http.StatusOK {
		t.Fatalf("pause = %d", code)
	}
	code, env = f.do(http.MethodPost, "/v1/insights", aliceTok, nil)
	if code != http.StatusConflict || errCode(env) != "Paused" {
		t.Errorf("insight while paused = %d %v", code, env.Meta)
	}
	code, _ = f.do(http.MethodPost, "/v1/admin/resume", ownerTok, nil)
	if code != http.StatusOK {
		t.Errorf("resume = %d", code)
	}

	code, env = f.do(http.MethodPut, "/v1/upkeep/interval", ownerTok, intervalRequest{Seconds: 60})
	if code != http.StatusBadRequest || errCode(env) != "IntervalTooShort" {
		t.Errorf("short interval = %d %v", code, env.Meta)
	}
	code, _ = f.do(http.MethodPut, "/v1/upkeep/interval", ownerTok, intervalRequest{Seconds: 7200})
	if code != http.StatusOK {
		t.Errorf("set interval = %d", code)
	}
	if got := f.vault.UpkeepState().AnalysisInterval; got != 7200 {
		t.Errorf("interval = %d", got)
	}

	code, env = f.do(http.MethodPost, "/v1/upkeep/perform", aliceTok, nil)
	if code != http.StatusConflict || errCode(env) != "TooSoon" {
		t.Errorf("perform too soon = %d %v", code, env.Meta)
	}

	code, _ = f.do(http.MethodPost, "/v1/models", ownerTok, addModelRequest{Version: "v2.0", Accuracy: 91})
	if code != http.StatusOK {
		t.Errorf("add model = %d", code)
	}
	code, env = f.do(http.MethodGet, "/v1/models/active", aliceTok, nil)
	var active model.AdvisoryModel
	_ = json.Unmarshal(env.Data, &active)
	if code != http.StatusOK || active.Version != "v2.0" || active.ID != 2 {
		t.Errorf("active model = %d %+v", code, active)
	}

	code, env = f.do(http.MethodPost, "/v1/admin/owner", ownerTok, ownerRequest{Owner: "not-an-address"})
	if code != http.StatusBadRequest || errCode(env) != "InvalidAddress" {
		t.Errorf("bad owner = %d %v", code, env.Meta)
	}
	code, _ = f.do(http.MethodPost, "/v1/admin/owner", ownerTok, ownerRequest{Owner: alice.Hex()})
	if code != http.StatusOK || f.vault.Owner() != alice {
		t.Errorf("transfer ownership = %d owner %s", code, f.vault.Owner().Hex())
	}
}

func TestServer_Observations(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(http.MethodGet, "/v1/observations?limit=10", f.token(alice, auth.RoleUser), nil)
	if code != http.StatusOK {
		t.Fatalf("observations = %d", code)
	}
	var entries []recorder.JournalEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != 1 {
		t.Errorf("entries = %+v", entries)
	}
}
