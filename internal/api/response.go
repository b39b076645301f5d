package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"AegisVault/internal/auth"
	"AegisVault/internal/pricefeed"
	"AegisVault/internal/vault"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

var errInvalidAddress = errors.New("invalid address")

// errorTable maps domain errors to a status and a stable code clients can
// switch on.
var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{vault.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
	{vault.ErrPaused, http.StatusConflict, "Paused"},
	{vault.ErrInsufficientShares, http.StatusConflict, "InsufficientShares"},
	{vault.ErrTransferFailed, http.StatusUnprocessableEntity, "TransferFailed"},
	{vault.ErrUnauthorized, http.StatusForbidden, "Unauthorized"},
	{vault.ErrInvalidOwner, http.StatusBadRequest, "InvalidOwner"},
	{vault.ErrAlreadyPending, http.StatusConflict, "AlreadyPending"},
	{vault.ErrUnknownRequest, http.StatusNotFound, "UnknownRequest"},
	{vault.ErrMalformedResponse, http.StatusBadRequest, "MalformedResponse"},
	{vault.ErrTooSoon, http.StatusConflict, "TooSoon"},
	{vault.ErrIntervalTooShort, http.StatusBadRequest, "IntervalTooShort"},
	{vault.ErrIntervalTooLong, http.StatusBadRequest, "IntervalTooLong"},
	{vault.ErrNoActiveModel, http.StatusConflict, "NoActiveModel"},
	{vault.ErrInvalidModel, http.StatusBadRequest, "InvalidModel"},
	{pricefeed.ErrPriceUnavailable, http.StatusServiceUnavailable, "PriceUnavailable"},
	{auth.ErrInvalidPrincipal, http.StatusUnauthorized, "InvalidAddress"},
	{errInvalidAddress, http.StatusBadRequest, "InvalidAddress"},
}

func domainError(c *gin.Context, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			Error(c, e.status, err.Error(), map[string]any{"error": e.code})
			return
		}
	}
	Error(c, http.StatusInternalServerError, err.Error(), nil)
}
