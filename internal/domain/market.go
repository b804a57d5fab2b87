package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FeeRange is the denominator of the fee rate: a feeRateNumerator of
// 1_000_000 corresponds to 100%.
const FeeRange = 1_000_000

// Stage is the lifecycle phase of the market. It only ever advances
// Created -> Funded -> Closed; it never regresses and never skips.
type Stage uint8

const (
	StageCreated Stage = iota
	StageFunded
	StageClosed
)

// String returns the lowercase stage name used in logs and API responses.
func (s Stage) String() string {
	switch s {
	case StageCreated:
		return "created"
	case StageFunded:
		return "funded"
	case StageClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseStage maps a stage name back to its Stage value.
func ParseStage(s string) (Stage, bool) {
	switch s {
	case "created":
		return StageCreated, true
	case "funded":
		return StageFunded, true
	case "closed":
		return StageClosed, true
	default:
		return 0, false
	}
}

// MarketSnapshot is a read-only copy of the market's observable state, taken
// under the market lock. Amounts are decimal strings so the snapshot survives
// JSON round-trips without precision loss.
type MarketSnapshot struct {
	Creator        common.Address `json:"creator"`
	CreatedAt      time.Time      `json:"created_at"`
	Stage          string         `json:"stage"`
	OutcomeCount   uint8          `json:"outcome_count"`
	FeeRateNum     int64          `json:"fee_rate_numerator"`
	FundingAmount  string         `json:"funding_amount"`
	NetOutcomeSold []string       `json:"net_outcome_sold"`
}

// BigInts converts the snapshot's inventory back to *big.Int values. It
// returns false if any entry fails to parse.
func (s MarketSnapshot) BigInts() ([]*big.Int, bool) {
	out := make([]*big.Int, len(s.NetOutcomeSold))
	for i, v := range s.NetOutcomeSold {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
