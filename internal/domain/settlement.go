package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Settlement is the persisted record of one completed trade: the applied
// outcome vector plus the oracle's gross cost, the protocol fee, and the net
// collateral that changed hands. Amounts are decimal strings (signed).
type Settlement struct {
	ID             string         `json:"id"`
	Trader         common.Address `json:"trader"`
	OutcomeAmounts []string       `json:"outcome_amounts"`
	GrossCost      string         `json:"gross_cost"`
	Fee            string         `json:"fee"`
	NetCost        string         `json:"net_cost"`
	CreatedAt      time.Time      `json:"created_at"`
}
