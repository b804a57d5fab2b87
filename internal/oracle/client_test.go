package oracle

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/cost", r.URL.Path)

		var req costRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"100", "0"}, req.NetOutcomeSold)
		assert.Equal(t, []string{"-100", "0"}, req.OutcomeAmounts)

		json.NewEncoder(w).Encode(costResponse{Cost: "-48"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	cost, err := c.Cost(context.Background(),
		[]*big.Int{big.NewInt(100), big.NewInt(0)},
		[]*big.Int{big.NewInt(-100), big.NewInt(0)},
	)
	require.NoError(t, err)
	assert.Equal(t, "-48", cost.String())
}

func TestCostErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pricing engine down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Cost(context.Background(), []*big.Int{big.NewInt(0)}, []*big.Int{big.NewInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCostBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(costResponse{Cost: "not-a-number"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Cost(context.Background(), []*big.Int{big.NewInt(0)}, []*big.Int{big.NewInt(1)})
	require.Error(t, err)
}

func TestCostUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.Cost(context.Background(), []*big.Int{big.NewInt(0)}, []*big.Int{big.NewInt(1)})
	require.Error(t, err)
}
