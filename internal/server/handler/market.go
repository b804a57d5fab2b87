package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// MarketService defines the methods the market handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketService interface {
	Fund(ctx context.Context, caller common.Address, funding *big.Int) error
	Trade(ctx context.Context, caller common.Address, outcomeAmounts []*big.Int, collateralLimit *big.Int) (domain.Settlement, error)
	Close(ctx context.Context, caller common.Address) error
	WithdrawFees(ctx context.Context, caller common.Address) (*big.Int, error)
	Snapshot() domain.MarketSnapshot
	ListSettlements(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error)
	CountSettlements(ctx context.Context) (int64, error)
}

// MarketHandler serves the market lifecycle HTTP endpoints.
type MarketHandler struct {
	market MarketService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(market MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		market: market,
		logger: logger,
	}
}

// GetMarket returns the market's current observable state.
// GET /api/market
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.market.Snapshot())
}

type fundRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

// Fund escrows funding collateral and transitions the market to Funded.
// POST /api/market/fund
func (h *MarketHandler) Fund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid funding amount")
		return
	}

	if err := h.market.Fund(r.Context(), caller, amount); err != nil {
		if writeDomainError(w, err) {
			return
		}
		logHandler(h.logger, "fund").ErrorContext(r.Context(), "fund failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "fund failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "funded",
		"amount": amount.String(),
	})
}

type tradeRequest struct {
	Trader          string   `json:"trader"`
	OutcomeAmounts  []string `json:"outcome_amounts"`
	CollateralLimit string   `json:"collateral_limit"`
}

// Trade settles a signed outcome vector for the trader.
// POST /api/market/trades
func (h *MarketHandler) Trade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	trader, ok := parseAddress(req.Trader)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid trader address")
		return
	}
	amounts := make([]*big.Int, len(req.OutcomeAmounts))
	for i, s := range req.OutcomeAmounts {
		a, ok := parseAmount(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid outcome amount")
			return
		}
		amounts[i] = a
	}
	limit, ok := parseAmount(req.CollateralLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid collateral limit")
		return
	}

	settlement, err := h.market.Trade(r.Context(), trader, amounts, limit)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		logHandler(h.logger, "trade").ErrorContext(r.Context(), "trade failed",
			slog.String("trader", trader.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "trade failed")
		return
	}

	writeJSON(w, http.StatusOK, settlement)
}

type closeRequest struct {
	Caller string `json:"caller"`
}

// Close sweeps residual claims to the creator and closes the market.
// POST /api/market/close
func (h *MarketHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.market.Close(r.Context(), caller); err != nil {
		if writeDomainError(w, err) {
			return
		}
		logHandler(h.logger, "close").ErrorContext(r.Context(), "close failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "close failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// WithdrawFees sweeps accrued fees to the creator.
// POST /api/market/fees/withdraw
func (h *MarketHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	swept, err := h.market.WithdrawFees(r.Context(), caller)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		logHandler(h.logger, "withdraw_fees").ErrorContext(r.Context(), "withdraw fees failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "withdraw fees failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "withdrawn",
		"amount": swept.String(),
	})
}

// listSettlementsResponse wraps the list endpoint output with metadata.
type listSettlementsResponse struct {
	Settlements []domain.Settlement `json:"settlements"`
	Total       int64               `json:"total"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
}

// ListSettlements returns settlement history with pagination.
// GET /api/market/settlements?limit=50&offset=0
func (h *MarketHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	settlements, err := h.market.ListSettlements(r.Context(), opts)
	if err != nil {
		logHandler(h.logger, "list_settlements").ErrorContext(r.Context(), "list settlements failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list settlements")
		return
	}

	total, err := h.market.CountSettlements(r.Context())
	if err != nil {
		logHandler(h.logger, "list_settlements").ErrorContext(r.Context(), "count settlements failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count settlements")
		return
	}

	writeJSON(w, http.StatusOK, listSettlementsResponse{
		Settlements: settlements,
		Total:       total,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	})
}
