package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"AegisVault/internal/auth"
	"AegisVault/internal/model"
	"AegisVault/internal/vault"
)

func (s *Server) health(c *gin.Context) {
	Ok(c, gin.H{"status": "ok", "paused": s.deps.Vault.IsPaused()}, nil)
}

func (s *Server) getVault(c *gin.Context) {
	ledger := s.deps.Vault.Ledger()
	data := gin.H{
		"owner":       ledger.Owner.Hex(),
		"totalAssets": ledger.TotalAssets,
		"totalShares": ledger.TotalShares,
		"paused":      ledger.Paused,
		"pauseReason": ledger.PauseReason,
		"navPerShare": s.deps.Vault.NAVPerShare(),
		"pending":     s.deps.Vault.PendingCount(),
	}
	var meta map[string]any
	if val, err := s.deps.Valuer.ValueInUSD(c.Request.Context(), ledger.TotalAssets); err != nil {
		meta = map[string]any{"priceUnavailable": true}
	} else {
		data["valueUSD"] = val.USD.StringFixed(2)
		data["valueUSDScaled"] = val.Scaled
		data["price"] = val.Price
	}
	Ok(c, data, meta)
}

func (s *Server) getAccount(c *gin.Context) {
	addr, err := parseAddress(c.Param("address"))
	if err != nil {
		domainError(c, err)
		return
	}
	acct := s.deps.Vault.Account(addr)
	data := gin.H{"account": acct}
	if s.deps.Custody != nil {
		data["walletBalance"] = s.deps.Custody.BalanceOf(addr)
	}
	if acct.Pending() {
		if req, ok := s.deps.Vault.RequestStatus(acct.PendingRequest); ok {
			data["request"] = req
		}
	}
	Ok(c, data, nil)
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (s *Server) deposit(c *gin.Context) {
	caller, amount, ok := s.callerAndAmount(c)
	if !ok {
		return
	}
	shares, err := s.deps.Vault.Deposit(c.Request.Context(), caller, amount)
	if err != nil {
		domainError(c, err)
		return
	}
	Ok(c, gin.H{"sharesMinted": shares, "account": s.deps.Vault.Account(caller)}, nil)
}

func (s *Server) withdraw(c *gin.Context) {
	caller, shares, ok := s.callerAndAmount(c)
	if !ok {
		return
	}
	amount, err := s.deps.Vault.Withdraw(c.Request.Context(), caller, shares)
	if err != nil {
		domainError(c, err)
		return
	}
	Ok(c, gin.H{"amountReturned": amount, "account": s.deps.Vault.Account(caller)}, nil)
}

type insightRequest struct {
	AssetType   string `json:"assetType"`
	RiskProfile string `json:"riskProfile"`
}

func (s *Server) requestInsight(c *gin.Context) {
	caller, err := auth.Principal(c)
	if err != nil {
		domainError(c, err)
		return
	}
	var body insightRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	req, err := s.deps.Vault.RequestInsight(c.Request.Context(), caller,
		strings.TrimSpace(body.AssetType), strings.TrimSpace(body.RiskProfile))
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, apiResponse{Code: 0, Message: "accepted", Data: req})
}

func (s *Server) requestStatus(c *gin.Context) {
	req, ok := s.deps.Vault.RequestStatus(c.Param("id"))
	if !ok {
		domainError(c, vault.ErrUnknownRequest)
		return
	}
	Ok(c, req, nil)
}

type expireRequest struct {
	TimeoutSeconds *int64 `json:"timeoutSeconds"`
}

// expireRequest clears a stale request. A caller-supplied timeout shorter
// than the configured one is honored only for the request's own account and
// the owner.
func (s *Server) expireRequest(c *gin.Context) {
	caller, err := auth.Principal(c)
	if err != nil {
		domainError(c, err)
		return
	}
	var body expireRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	timeout := s.deps.RequestTimeout
	if body.TimeoutSeconds != nil {
		if *body.TimeoutSeconds < 0 {
			Error(c, http.StatusBadRequest, "timeoutSeconds must not be negative", nil)
			return
		}
		timeout = time.Duration(*body.TimeoutSeconds) * time.Second
	}
	if timeout < s.deps.RequestTimeout {
		req, ok := s.deps.Vault.RequestStatus(c.Param("id"))
		if ok && req.Account != caller && !s.deps.Vault.IsOwner(caller) {
			timeout = s.deps.RequestTimeout
		}
	}
	expired, err := s.deps.Vault.CancelOrExpire(c.Request.Context(), c.Param("id"), timeout)
	if err != nil {
		domainError(c, err)
		return
	}
	Ok(c, gin.H{"expired": expired}, nil)
}

func (s *Server) oracleCallback(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		Error(c, http.StatusBadRequest, "read body: "+err.Error(), nil)
		return
	}
	resp, err := vault.ParseResponse(raw)
	if err != nil {
		domainError(c, err)
		return
	}
	record, err := s.deps.Vault.SubmitResponse(c.Request.Context(), resp)
	if err != nil {
		domainError(c, err)
		return
	}
	Ok(c, record, nil)
}

func (s *Server) listModels(c *gin.Context) {
	models := s.deps.Vault.Models()
	Ok(c, models, map[string]any{"total": len(models)})
}

func (s *Server) activeModel(c *gin.Context) {
	m, err := s.deps.Vault.ActiveModel()
	if err != nil {
		domainError(c, err)
		return
	}
	Ok(c, m, nil)
}

type addModelRequest struct {
	Version  string `json:"version"`
	Accuracy int    `json:"accuracy"`
}

func (s *Server) addModel(c *gin.Context) {
	caller, err := auth.Principal(c)
	if err != nil {
		domainError(c, err)
		return
	}
	var body addModelRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	m, err := s.deps.Vault.AddModel(c.Request.Context(), caller, body.Version, body.Accuracy)
	if err != nil {
		domainError(c, err)
		return
	}
	Ok(c, m, nil)
}

func (s *Server) getUpkeep(c *gin.Context) {
	needed, payload := s.deps.Vault.CheckUpkeep()
	Ok(c, gin.H{
		"needed":  needed,
		"payload": payload,
		"state":   s.deps.Vault.UpkeepState(),
	}, nil)
}

func (s *Server) performUpkeep(c *gin.Context) {
	var payload model.UpkeepPayload
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	if payload.TotalAssets.IsNil() {
		_, payload = s.deps.Vault.CheckUpkeep()
	}
	if err := s.deps.Vault.PerformUpkeep(c.Request.Context(), payload); err != nil {
		domainError(c, err)
		return
	}
	Ok(c, s.deps.Vault.UpkeepState(), nil)
}

type intervalRequest struct {
	Seconds int64 `json:"seconds"`
}

func (s *Server) setInterval(c *gin.Context) {
	caller, err := auth.Principal(c)
	if err != nil {
		domainError(c, err)
		return
	}
	var body intervalRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	if err := s.deps.Vault.SetAnalysisInterval(c.Request.Context(), caller, time.Duration(body.Seconds)*time.Second); err != nil {
		domainError(c, err)
		return
	}
	Ok(c, s.deps.Vault.UpkeepState(), nil)
}

func (s *Server) setMinTVL(c *gin.Context) {
	caller, amount, ok := s.callerAndAmount(c)
	if !ok {
		return
	}
	if err := s.deps.Vault.SetMinTVL(c.Request.Context(), caller, amount); err != nil {
		domainError(c, err)
		return
	}
	Ok(c, s.deps.Vault.UpkeepState(), nil)
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) pause(c *gin.Context) {
	caller, err := auth.Principal(c)
	if err != nil {
		domainError(c, err)
		return
	}
	var body pauseRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	if err := s.deps.Vault.Pause(c.Request.Context(), caller, body.Reason); err != nil {
		domainError(c, err)
		return
	}
	Ok(c, s.deps.Vault.Ledger(), nil)
}

func (s *Server) resume(c *gin.Context) {
	caller, err := auth.Principal(c)
	if err != nil {
		domainError(c, err)
		return
	}
	if err := s.deps.Vault.Resume(c.Request.Context(), caller); err != nil {
		domainError(c, err)
		return
	}
	Ok(c, s.deps.Vault.Ledger(), nil)
}

type ownerRequest struct {
	Owner string `json:"owner" binding:"required"`
}

func (s *Server) transferOwnership(c *gin.Context) {
	caller, err := auth.Principal(c)
	if err != nil {
		domainError(c, err)
		return
	}
	var body ownerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	next, err := parseAddress(body.Owner)
	if err != nil {
		domainError(c, err)
		return
	}
	if err := s.deps.Vault.TransferOwnership(c.Request.Context(), caller, next); err != nil {
		domainError(c, err)
		return
	}
	Ok(c, gin.H{"owner": next.Hex()}, nil)
}

type creditRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// credit funds a wallet in the in-process custody book. Owner only.
func (s *Server) credit(c *gin.Context) {
	caller, err := auth.Principal(c)
	if err != nil {
		domainError(c, err)
		return
	}
	if err := s.deps.Vault.RequireOwner(caller); err != nil {
		domainError(c, err)
		return
	}
	if s.deps.Custody == nil {
		Error(c, http.StatusNotImplemented, "custody book unavailable", nil)
		return
	}
	var body creditRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	addr, err := parseAddress(body.Address)
	if err != nil {
		domainError(c, err)
		return
	}
	amount, ok := sdkmath.NewIntFromString(body.Amount)
	if !ok || !amount.IsPositive() {
		domainError(c, vault.ErrInvalidAmount)
		return
	}
	if err := s.deps.Custody.Credit(addr, amount); err != nil {
		domainError(c, err)
		return
	}
	Ok(c, gin.H{"address": addr.Hex(), "balance": s.deps.Custody.BalanceOf(addr)}, nil)
}

func (s *Server) observations(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	items, err := s.deps.Journal.Recent(limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "count": len(items)})
}

// callerAndAmount resolves the token principal and an integer amount body.
// It writes the error response itself and reports whether to continue.
func (s *Server) callerAndAmount(c *gin.Context) (common.Address, sdkmath.Int, bool) {
	caller, err := auth.Principal(c)
	if err != nil {
		domainError(c, err)
		return common.Address{}, sdkmath.Int{}, false
	}
	var body amountRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return common.Address{}, sdkmath.Int{}, false
	}
	amount, ok := sdkmath.NewIntFromString(strings.TrimSpace(body.Amount))
	if !ok {
		domainError(c, vault.ErrInvalidAmount)
		return common.Address{}, sdkmath.Int{}, false
	}
	return caller, amount, true
}

func parseAddress(v string) (common.Address, error) {
	v = strings.TrimSpace(v)
	if !common.IsHexAddress(v) {
		return common.Address{}, errInvalidAddress
	}
	addr := common.HexToAddress(v)
	if addr == (common.Address{}) {
		return common.Address{}, errInvalidAddress
	}
	return addr, nil
}

func intQuery(c *gin.Context, key string, def int) int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
