package handler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/server/handler"
)

type stubService struct {
	fundErr     error
	tradeErr    error
	closeErr    error
	withdrawErr error

	settlement  domain.Settlement
	snapshot    domain.MarketSnapshot
	settlements []domain.Settlement
	swept       *big.Int

	lastOpts domain.ListOpts
}

func (s *stubService) Fund(context.Context, common.Address, *big.Int) error {
	return s.fundErr
}

func (s *stubService) Trade(context.Context, common.Address, []*big.Int, *big.Int) (domain.Settlement, error) {
	if s.tradeErr != nil {
		return domain.Settlement{}, s.tradeErr
	}
	return s.settlement, nil
}

func (s *stubService) Close(context.Context, common.Address) error {
	return s.closeErr
}

func (s *stubService) WithdrawFees(context.Context, common.Address) (*big.Int, error) {
	if s.withdrawErr != nil {
		return nil, s.withdrawErr
	}
	return s.swept, nil
}

func (s *stubService) Snapshot() domain.MarketSnapshot {
	return s.snapshot
}

func (s *stubService) ListSettlements(_ context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	s.lastOpts = opts
	return s.settlements, nil
}

func (s *stubService) CountSettlements(context.Context) (int64, error) {
	return int64(len(s.settlements)), nil
}

func newMux(svc *stubService) *http.ServeMux {
	h := handler.NewMarketHandler(svc, slog.New(slog.DiscardHandler))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/market", h.GetMarket)
	mux.HandleFunc("POST /api/market/fund", h.Fund)
	mux.HandleFunc("POST /api/market/trades", h.Trade)
	mux.HandleFunc("POST /api/market/close", h.Close)
	mux.HandleFunc("POST /api/market/fees/withdraw", h.WithdrawFees)
	mux.HandleFunc("GET /api/market/settlements", h.ListSettlements)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

const caller = "0x00000000000000000000000000000000000000a1"

func TestGetMarket(t *testing.T) {
	svc := &stubService{snapshot: domain.MarketSnapshot{
		Stage:          domain.StageFunded.String(),
		OutcomeCount:   2,
		FundingAmount:  "1000",
		NetOutcomeSold: []string{"100", "0"},
	}}
	rec := doJSON(t, newMux(svc), http.MethodGet, "/api/market", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var snap domain.MarketSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "funded", snap.Stage)
	assert.Equal(t, []string{"100", "0"}, snap.NetOutcomeSold)
}

func TestFund(t *testing.T) {
	svc := &stubService{}
	mux := newMux(svc)

	rec := doJSON(t, mux, http.MethodPost, "/api/market/fund",
		`{"caller":"`+caller+`","amount":"1000"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/market/fund",
		`{"caller":"not-an-address","amount":"1000"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/market/fund", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDomainErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", domain.ErrUnauthorized, http.StatusForbidden},
		{"invalid stage", domain.ErrInvalidStage, http.StatusConflict},
		{"invalid input", domain.ErrInvalidInput, http.StatusBadRequest},
		{"slippage", domain.ErrSlippageExceeded, http.StatusConflict},
		{"transfer failed", domain.ErrTransferFailed, http.StatusUnprocessableEntity},
		{"lock held", domain.ErrLockHeld, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{tradeErr: tt.err}
			rec := doJSON(t, newMux(svc), http.MethodPost, "/api/market/trades",
				`{"trader":"`+caller+`","outcome_amounts":["1","0"]}`)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestTrade(t *testing.T) {
	svc := &stubService{settlement: domain.Settlement{
		ID:             "s-1",
		Trader:         common.HexToAddress(caller),
		OutcomeAmounts: []string{"100", "0"},
		GrossCost:      "50",
		Fee:            "1",
		NetCost:        "51",
		CreatedAt:      time.Now().UTC(),
	}}
	mux := newMux(svc)

	rec := doJSON(t, mux, http.MethodPost, "/api/market/trades",
		`{"trader":"`+caller+`","outcome_amounts":["100","0"],"collateral_limit":"51"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Settlement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "s-1", got.ID)
	assert.Equal(t, "51", got.NetCost)

	rec = doJSON(t, mux, http.MethodPost, "/api/market/trades",
		`{"trader":"`+caller+`","outcome_amounts":["100","oops"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithdrawFees(t *testing.T) {
	svc := &stubService{swept: big.NewInt(7)}
	rec := doJSON(t, newMux(svc), http.MethodPost, "/api/market/fees/withdraw",
		`{"caller":"`+caller+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "7", body["amount"])
}

func TestListSettlements(t *testing.T) {
	svc := &stubService{settlements: []domain.Settlement{{ID: "s-1"}, {ID: "s-2"}}}
	mux := newMux(svc)

	rec := doJSON(t, mux, http.MethodGet, "/api/market/settlements?limit=9999&offset=3", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Limit is clamped to the maximum page size.
	assert.Equal(t, 500, svc.lastOpts.Limit)
	assert.Equal(t, 3, svc.lastOpts.Offset)

	var body struct {
		Settlements []domain.Settlement `json:"settlements"`
		Total       int64               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Settlements, 2)
	assert.Equal(t, int64(2), body.Total)
}
