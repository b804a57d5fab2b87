package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/ledger"
)

// LedgerHandler exposes the in-process ledger for development: a collateral
// faucet, allowance grants, and balance reads. It is only registered when
// server.dev_ledger is enabled.
type LedgerHandler struct {
	collateral *ledger.Token
	outcomes   domain.OutcomeLedger
	market     common.Address
	logger     *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler over the in-process ledgers.
// market is the market's account, the default spender for approvals.
func NewLedgerHandler(collateral *ledger.Token, outcomes domain.OutcomeLedger, market common.Address, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		collateral: collateral,
		outcomes:   outcomes,
		market:     market,
		logger:     logger,
	}
}

type mintRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// Mint credits freshly minted collateral to an account (dev faucet).
// POST /api/ledger/mint
func (h *LedgerHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, ok := parseAddress(req.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || amount.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := h.collateral.Mint(r.Context(), account, amount); err != nil {
		logHandler(h.logger, "ledger_mint").ErrorContext(r.Context(), "mint failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "minted",
		"account": account.Hex(),
		"amount":  amount.String(),
	})
}

type approveRequest struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"` // defaults to the market account
	Amount  string `json:"amount"`
	// Outcome selects an outcome claim token; nil approves collateral.
	Outcome *int `json:"outcome"`
}

// Approve grants the spender (default: the market) an allowance over the
// owner's collateral or an outcome claim.
// POST /api/ledger/approve
func (h *LedgerHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	owner, ok := parseAddress(req.Owner)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	spender := h.market
	if req.Spender != "" {
		spender, ok = parseAddress(req.Spender)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid spender address")
			return
		}
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || amount.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	var tok domain.Token = h.collateral
	if req.Outcome != nil {
		if *req.Outcome < 0 || *req.Outcome >= int(h.outcomes.OutcomeCount()) {
			writeError(w, http.StatusBadRequest, "outcome index out of range")
			return
		}
		tok = h.outcomes.OutcomeToken(uint8(*req.Outcome))
	}

	if err := tok.Approve(r.Context(), owner, spender, amount); err != nil {
		logHandler(h.logger, "ledger_approve").ErrorContext(r.Context(), "approve failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "approved",
		"owner":   owner.Hex(),
		"spender": spender.Hex(),
		"amount":  amount.String(),
	})
}

// balancesResponse reports an account's collateral and claim balances.
type balancesResponse struct {
	Account    string   `json:"account"`
	Collateral string   `json:"collateral"`
	Outcomes   []string `json:"outcomes"`
}

// Balances returns an account's collateral and per-outcome claim balances.
// GET /api/ledger/balances/{address}
func (h *LedgerHandler) Balances(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(pathParam(r, "address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	collateral, err := h.collateral.BalanceOf(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	n := int(h.outcomes.OutcomeCount())
	claims := make([]string, n)
	for i := 0; i < n; i++ {
		bal, err := h.outcomes.OutcomeToken(uint8(i)).BalanceOf(r.Context(), account)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read balance")
			return
		}
		claims[i] = bal.String()
	}

	writeJSON(w, http.StatusOK, balancesResponse{
		Account:    account.Hex(),
		Collateral: collateral.String(),
		Outcomes:   claims,
	})
}
