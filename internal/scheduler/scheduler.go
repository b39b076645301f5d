package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"AegisVault/internal/notifier"
	"AegisVault/internal/pricefeed"
	"AegisVault/internal/vault"
)

// Sender delivers operator messages.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Options configures the scheduled jobs.
type Options struct {
	Keeper         common.Address
	AssetType      string
	RiskProfile    string
	RequestTimeout time.Duration
	Symbol         string
	Decimals       int32
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Vault    *vault.Vault
	Valuer   *pricefeed.Valuer
	Notifier Sender
	Opts     Options
	Ctx      context.Context

	logger *zap.Logger
}

// NewScheduler creates a new Scheduler. Notifier may be nil.
func NewScheduler(ctx context.Context, v *vault.Vault, valuer *pricefeed.Valuer, n Sender, opts Options, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Minute
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Vault:    v,
		Valuer:   valuer,
		Notifier: n,
		Opts:     opts,
		Ctx:      ctx,
		logger:   logger,
	}
}

// RegisterAll registers the upkeep, expiry sweep, and daily report tasks.
func (s *Scheduler) RegisterAll(upkeepCron, expiryCron, reportCron string) error {
	if _, err := s.Cron.AddFunc(upkeepCron, s.upkeepTask); err != nil {
		return fmt.Errorf("register upkeep task: %w", err)
	}
	if _, err := s.Cron.AddFunc(expiryCron, s.expiryTask); err != nil {
		return fmt.Errorf("register expiry task: %w", err)
	}
	if reportCron != "" {
		if _, err := s.Cron.AddFunc(reportCron, s.reportTask); err != nil {
			return fmt.Errorf("register report task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunUpkeepNow executes the upkeep task immediately (RUN_ON_START).
func (s *Scheduler) RunUpkeepNow() {
	s.upkeepTask()
}

func (s *Scheduler) upkeepTask() {
	if _, err := s.RunUpkeep(s.Ctx); err != nil {
		s.logger.Error("upkeep failed", zap.Error(err))
	}
}

// RunUpkeep checks the upkeep gate and, when due, performs upkeep and asks
// the oracle for a fresh insight on behalf of the keeper account. It reports
// whether upkeep was performed. A paused vault keeps its analysis window
// until it resumes.
func (s *Scheduler) RunUpkeep(ctx context.Context) (bool, error) {
	if s.Vault.IsPaused() {
		s.logger.Debug("upkeep skipped, vault paused")
		return false, nil
	}
	needed, payload := s.Vault.CheckUpkeep()
	if !needed {
		s.logger.Debug("upkeep not needed", zap.String("total_assets", payload.TotalAssets.String()))
		return false, nil
	}
	if err := s.Vault.PerformUpkeep(ctx, payload); err != nil {
		if errors.Is(err, vault.ErrTooSoon) {
			s.logger.Debug("upkeep lost race", zap.Error(err))
			return false, nil
		}
		return false, fmt.Errorf("perform upkeep: %w", err)
	}

	req, err := s.Vault.RequestInsight(ctx, s.Opts.Keeper, s.Opts.AssetType, s.Opts.RiskProfile)
	switch {
	case errors.Is(err, vault.ErrAlreadyPending):
		s.logger.Info("upkeep performed, keeper request already pending", zap.String("keeper", s.Opts.Keeper.Hex()))
	case err != nil:
		return true, fmt.Errorf("request insight: %w", err)
	default:
		s.logger.Info("upkeep performed, insight requested",
			zap.String("keeper", s.Opts.Keeper.Hex()),
			zap.String("request_id", req.RequestID))
	}
	return true, nil
}

func (s *Scheduler) expiryTask() {
	n, err := s.Vault.ExpireStale(s.Ctx, s.Opts.RequestTimeout)
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired stale requests", zap.Int("count", n))
	}
}

func (s *Scheduler) reportTask() {
	s.trySend(notifier.FormatVaultStatus(s.Status(s.Ctx)))
}

// Status collects the operator view of the vault.
func (s *Scheduler) Status(ctx context.Context) notifier.VaultStatus {
	ledger := s.Vault.Ledger()
	needed, _ := s.Vault.CheckUpkeep()
	status := notifier.VaultStatus{
		Ledger:       ledger,
		NAVPerShare:  s.Vault.NAVPerShare(),
		Pending:      s.Vault.PendingCount(),
		Upkeep:       s.Vault.UpkeepState(),
		UpkeepNeeded: needed,
		Symbol:       s.Opts.Symbol,
		Decimals:     s.Opts.Decimals,
		At:           time.Now(),
	}
	if m, err := s.Vault.ActiveModel(); err == nil {
		status.ActiveModel = &m
	}
	if val, err := s.Valuer.ValueInUSD(ctx, ledger.TotalAssets); err == nil {
		status.ValueUSD = val.USD.StringFixed(2)
	}
	return status
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	var cmd string
	if fields := strings.Fields(command); len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/vault", "/status":
		return notifier.FormatVaultStatus(s.Status(ctx))
	case "/model", "/models":
		return notifier.FormatModels(s.Vault.Models())
	case "/upkeep":
		needed, _ := s.Vault.CheckUpkeep()
		return notifier.FormatUpkeep(s.Vault.UpkeepState(), needed, s.Opts.Symbol, s.Opts.Decimals, time.Now())
	default:
		return "Available commands:\n• /vault - vault status\n• /model - advisory models\n• /upkeep - analysis schedule\n• /help - this message"
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.logger.Error("send notification", zap.Error(err))
	}
}
