package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"AegisVault/internal/model"
	"AegisVault/internal/pricefeed"
	"AegisVault/internal/vault"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type stubAdvisor struct {
	payload string
	err     error
	calls   int
}

func (s *stubAdvisor) Name() string { return "stub" }

func (s *stubAdvisor) Advise(_ context.Context, _ Request) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.payload), nil
}

type recordingPublisher struct {
	mu  sync.Mutex
	obs []model.Observation
}

func (p *recordingPublisher) Publish(o model.Observation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.obs = append(p.obs, o)
}

func (p *recordingPublisher) count(kind model.ObservationKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, o := range p.obs {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

func newVault(t *testing.T) (*vault.Vault, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	opts := vault.DefaultOptions(owner)
	opts.Publisher = pub
	v, err := vault.New(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return v, pub
}

func fastOptions() DispatcherOptions {
	return DispatcherOptions{RatePerMinute: 60000, Timeout: time.Second, Workers: 1}
}

func TestDispatch_DeliversInsight(t *testing.T) {
	ctx := context.Background()
	v, _ := newVault(t)
	req, err := v.RequestInsight(ctx, alice, "Real Estate", "Moderate")
	if err != nil {
		t.Fatal(err)
	}

	adv := &stubAdvisor{payload: `{"recommendation":"BUY","confidence":87,"riskLevel":"LOW","reasoning":"Strong fundamentals","suggestedAction":"Accumulate"}`}
	d := NewDispatcher(v, adv, fastOptions(), nil)
	if err := d.Dispatch(ctx, req.RequestID, "0"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	acct := v.Account(alice)
	if acct.Pending() {
		t.Error("request should be closed")
	}
	if acct.Insight.Recommendation != model.RecommendationBuy || acct.Insight.Confidence != 87 {
		t.Errorf("insight = %+v", acct.Insight)
	}
}

func TestDispatch_FailuresStayPending(t *testing.T) {
	tests := []struct {
		name string
		adv  *stubAdvisor
	}{
		{"advisor error", &stubAdvisor{err: errors.New("upstream timeout")}},
		{"string confidence", &stubAdvisor{payload: `{"recommendation":"BUY","confidence":"87","riskLevel":"LOW"}`}},
		{"not an object", &stubAdvisor{payload: `["BUY"]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			v, pub := newVault(t)
			req, err := v.RequestInsight(ctx, alice, "Stocks", "Aggressive")
			if err != nil {
				t.Fatal(err)
			}
			d := NewDispatcher(v, tt.adv, fastOptions(), nil)
			if err := d.Dispatch(ctx, req.RequestID, "0"); err == nil {
				t.Fatal("expected dispatch error")
			}
			if _, ok := v.RequestStatus(req.RequestID); !ok {
				t.Error("request should remain pending")
			}
			if pub.count(model.ObservationAIRequestFailed) != 1 {
				t.Error("expected one failure observation")
			}
		})
	}
}

func TestDispatch_SkipsClosedRequest(t *testing.T) {
	v, _ := newVault(t)
	adv := &stubAdvisor{payload: `{}`}
	d := NewDispatcher(v, adv, fastOptions(), nil)
	if err := d.Dispatch(context.Background(), "missing", "0"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if adv.calls != 0 {
		t.Error("advisor should not be called for unknown requests")
	}
}

type failureTarget struct {
	failed []string
}

func (f *failureTarget) RequestStatus(string) (model.PendingRequest, bool) {
	return model.PendingRequest{}, false
}

func (f *failureTarget) SubmitResponse(context.Context, model.OracleResponse) (model.InsightRecord, error) {
	return model.InsightRecord{}, nil
}

func (f *failureTarget) ReportFailure(id, _ string) bool {
	f.failed = append(f.failed, id)
	return true
}

func TestHandle_FiltersAndOverflows(t *testing.T) {
	target := &failureTarget{}
	opts := fastOptions()
	opts.Queue = 1
	d := NewDispatcher(target, &stubAdvisor{}, opts, nil)

	other := model.NewObservation(model.ObservationDeposit, time.Now())
	if err := d.Handle(context.Background(), other); err != nil {
		t.Fatal(err)
	}
	if len(d.jobs) != 0 {
		t.Fatal("non-request observations must be ignored")
	}

	for _, id := range []string{"r1", "r2"} {
		obs := model.NewObservation(model.ObservationAIRequested, time.Now())
		obs.RequestID = id
		if err := d.Handle(context.Background(), obs); err != nil {
			t.Fatal(err)
		}
	}
	if len(d.jobs) != 1 {
		t.Errorf("queue length = %d, want 1", len(d.jobs))
	}
	if len(target.failed) != 1 || target.failed[0] != "r2" {
		t.Errorf("failed = %v, want [r2]", target.failed)
	}
}

func TestDispatcher_RunProcessesQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v, pub := newVault(t)
	req, err := v.RequestInsight(ctx, alice, "Commodities", "Moderate")
	if err != nil {
		t.Fatal(err)
	}
	d := NewDispatcher(v, &stubAdvisor{payload: `{"recommendation":"SELL","confidence":61,"riskLevel":"HIGH"}`}, fastOptions(), nil)
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	obs := model.NewObservation(model.ObservationAIRequested, time.Now())
	obs.RequestID = req.RequestID
	if err := d.Handle(ctx, obs); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pub.count(model.ObservationAIResponseReceived) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("response was not delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if got := v.Account(alice).Insight.Recommendation; got != model.RecommendationSell {
		t.Errorf("recommendation = %s", got)
	}
}

func TestWithRequestID(t *testing.T) {
	out := withRequestID([]byte(`{"recommendation":"HOLD","requestId":"spoofed"}`), "real")
	var fields map[string]string
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatal(err)
	}
	if fields["requestId"] != "real" || fields["recommendation"] != "HOLD" {
		t.Errorf("fields = %v", fields)
	}
	if got := withRequestID([]byte(`[1]`), "x"); string(got) != `[1]` {
		t.Errorf("non-object payload changed: %s", got)
	}
}

func TestEvaluate(t *testing.T) {
	oversold := &model.MarketIndicators{
		CurrentPrice: 4500,
		SMA50:        5000,
		SMA200:       5500,
		RSI14:        20,
		High52w:      6000,
		Low52w:       4400,
		Position52w:  0.06,
		Volatility:   0.005,
	}
	sig := Evaluate(oversold, "Moderate")
	if sig.Recommendation != model.RecommendationBuy {
		t.Errorf("oversold: got %s (score %.3f)", sig.Recommendation, sig.TotalScore)
	}
	if sig.Confidence <= 50 || sig.Confidence > 95 {
		t.Errorf("confidence = %d", sig.Confidence)
	}
	if sig.RiskLevel != model.RiskLow {
		t.Errorf("risk = %s", sig.RiskLevel)
	}

	overbought := &model.MarketIndicators{
		CurrentPrice: 6500,
		SMA50:        6200,
		SMA200:       5500,
		RSI14:        90,
		High52w:      6500,
		Low52w:       5000,
		Position52w:  1.0,
		Volatility:   0.05,
	}
	sig = Evaluate(overbought, "Conservative")
	if sig.Recommendation != model.RecommendationSell {
		t.Errorf("overbought: got %s (score %.3f)", sig.Recommendation, sig.TotalScore)
	}
	if sig.RiskLevel != model.RiskHigh {
		t.Errorf("risk = %s", sig.RiskLevel)
	}

	neutral := &model.MarketIndicators{CurrentPrice: 100, SMA50: 100, SMA200: 100, RSI14: 50, Position52w: 0.5, Volatility: 0.02}
	if sig := Evaluate(neutral, ""); sig.Recommendation != model.RecommendationHold || sig.Confidence >= 60 {
		t.Errorf("neutral: %+v", sig)
	}
}

func TestSignalAdvisor_ProducesParsablePayload(t *testing.T) {
	feed, err := pricefeed.NewStaticFeed("ETH", "2500")
	if err != nil {
		t.Fatal(err)
	}
	raw, err := NewSignalAdvisor(feed, nil).Advise(context.Background(), Request{AssetType: "Real Estate", RiskProfile: "Moderate"})
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	resp, err := vault.ParseResponse(withRequestID(raw, "r1"))
	if err != nil {
		t.Fatalf("parse: %v (%s)", err, raw)
	}
	switch model.Recommendation(resp.Recommendation) {
	case model.RecommendationBuy, model.RecommendationHold, model.RecommendationSell:
	default:
		t.Errorf("recommendation = %q", resp.Recommendation)
	}
	if !strings.Contains(resp.SuggestedAction, "Real Estate") {
		t.Errorf("suggested action = %q", resp.SuggestedAction)
	}
}

func TestSignalAdvisor_FeedFailure(t *testing.T) {
	feed := &pricefeed.StaticFeed{Err: pricefeed.ErrPriceUnavailable}
	if _, err := NewSignalAdvisor(feed, nil).Advise(context.Background(), Request{}); !errors.Is(err, pricefeed.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestOpenAIAdvisor(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"gpt-4-turbo-preview",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant",` +
			`"content":"{\"recommendation\":\"HOLD\",\"confidence\":64,\"riskLevel\":\"MEDIUM\"}"}}]}`))
	}))
	defer srv.Close()

	adv := NewOpenAIAdvisor("test-key", srv.URL+"/v1/", "gpt-4-turbo-preview")
	raw, err := adv.Advise(context.Background(), Request{AssetType: "Stocks", RiskProfile: "Moderate", Balance: "100", ModelVersion: "v1.0"})
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	resp, err := vault.ParseResponse(withRequestID(raw, "r1"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.Recommendation != "HOLD" || resp.Confidence != 64 {
		t.Errorf("resp = %+v", resp)
	}
	if body["model"] != "gpt-4-turbo-preview" {
		t.Errorf("model = %v", body["model"])
	}
	format, _ := body["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v", body["response_format"])
	}
}
