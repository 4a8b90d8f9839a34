package handlers

import (
	"errors"
	"net/http"

	"clearbill/internal/common"
	"clearbill/internal/services"

	"github.com/labstack/echo/v4"
)

// WalletHandlers handles HTTP requests for wallets
type WalletHandlers struct {
	walletService services.WalletServiceInterface
}

// NewWalletHandlers creates a new wallet handlers instance
func NewWalletHandlers(walletService services.WalletServiceInterface) *WalletHandlers {
	return &WalletHandlers{walletService: walletService}
}

// Deposit handles POST /wallet/deposit
func (h *WalletHandlers) Deposit(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	wallet, err := h.walletService.Deposit(ctx, caller, req.Amount)
	if err != nil {
		if errors.Is(err, services.ErrInvalidAmount) {
			return common.SendValidationError(c, "amount", "Deposit amount must be positive")
		}
		return common.SendServerError(c, err.Error())
	}

	return c.JSON(http.StatusOK, wallet)
}

// GetBalance handles GET /wallet
func (h *WalletHandlers) GetBalance(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	wallet, err := h.walletService.GetBalance(ctx, caller)
	if err != nil {
		return common.SendServerError(c, err.Error())
	}

	return c.JSON(http.StatusOK, wallet)
}
