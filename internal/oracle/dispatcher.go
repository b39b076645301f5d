package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"AegisVault/internal/model"
	"AegisVault/internal/vault"
)

// Target is the vault side of the oracle round trip.
type Target interface {
	RequestStatus(requestID string) (model.PendingRequest, bool)
	SubmitResponse(ctx context.Context, resp model.OracleResponse) (model.InsightRecord, error)
	ReportFailure(requestID, reason string) bool
}

// DispatcherOptions tunes throughput of the advisor calls.
type DispatcherOptions struct {
	RatePerMinute int
	Timeout       time.Duration
	Workers       int
	Queue         int
}

type job struct {
	requestID string
	balance   string
}

// Dispatcher answers AIRequested observations by calling an Advisor and
// feeding its output back into the vault. It is an events sink; advisor
// calls run on worker goroutines so the bus is never held up.
type Dispatcher struct {
	target  Target
	advisor Advisor
	limiter *rate.Limiter
	timeout time.Duration
	workers int
	jobs    chan job
	logger  *zap.Logger
}

func NewDispatcher(target Target, advisor Advisor, opts DispatcherOptions, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 30
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Queue <= 0 {
		opts.Queue = 256
	}
	return &Dispatcher{
		target:  target,
		advisor: advisor,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1),
		timeout: opts.Timeout,
		workers: opts.Workers,
		jobs:    make(chan job, opts.Queue),
		logger:  logger,
	}
}

func (d *Dispatcher) Name() string { return "oracle" }

// Handle enqueues a request for the workers. A full queue is reported as an
// oracle failure; the request stays pending until it expires.
func (d *Dispatcher) Handle(_ context.Context, obs model.Observation) error {
	if obs.Kind != model.ObservationAIRequested {
		return nil
	}
	j := job{requestID: obs.RequestID, balance: obs.Shares.String()}
	select {
	case d.jobs <- j:
	default:
		d.target.ReportFailure(obs.RequestID, "oracle queue full")
	}
	return nil
}

// Run starts the workers and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-d.jobs:
					if err := d.Dispatch(ctx, j.requestID, j.balance); err != nil {
						d.logger.Warn("oracle: dispatch failed",
							zap.String("request_id", j.requestID),
							zap.Error(err))
					}
				}
			}
		}()
	}
	d.logger.Info("oracle: dispatcher started",
		zap.String("advisor", d.advisor.Name()),
		zap.Int("workers", d.workers))
	wg.Wait()
}

// Dispatch runs one advisor round trip for requestID. Advisor and parse
// failures are reported to the vault and returned.
func (d *Dispatcher) Dispatch(ctx context.Context, requestID, balance string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	req, ok := d.target.RequestStatus(requestID)
	if !ok {
		d.logger.Debug("oracle: request no longer pending", zap.String("request_id", requestID))
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	raw, err := d.advisor.Advise(callCtx, Request{
		RequestID:    req.RequestID,
		Account:      req.Account.Hex(),
		AssetType:    req.AssetType,
		RiskProfile:  req.RiskProfile,
		ModelVersion: req.ModelVersion,
		Balance:      balance,
	})
	if err != nil {
		d.target.ReportFailure(requestID, err.Error())
		return err
	}

	resp, err := vault.ParseResponse(withRequestID(raw, requestID))
	if err != nil {
		d.target.ReportFailure(requestID, err.Error())
		return err
	}
	record, err := d.target.SubmitResponse(ctx, resp)
	if errors.Is(err, vault.ErrUnknownRequest) {
		d.logger.Info("oracle: answer arrived after request closed", zap.String("request_id", requestID))
		return nil
	}
	if err != nil {
		return err
	}
	d.logger.Info("oracle: insight delivered",
		zap.String("request_id", requestID),
		zap.String("recommendation", string(record.Recommendation)),
		zap.Uint8("confidence", record.Confidence),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// withRequestID stamps requestId onto an advisor payload. Payloads that are
// not a single JSON object pass through untouched so parsing rejects them.
func withRequestID(raw []byte, requestID string) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return raw
	}
	id, _ := json.Marshal(requestID)
	fields["requestId"] = id
	out, err := json.Marshal(fields)
	if err != nil {
		return raw
	}
	return out
}
