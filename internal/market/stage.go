package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// requireStage fails with ErrInvalidStage unless the market is in expected.
// Guards run before any external interaction so a misbehaving collaborator
// can never observe a half-transitioned market.
func (m *Market) requireStage(expected domain.Stage) error {
	if m.stage != expected {
		return fmt.Errorf("market: stage is %s, operation requires %s: %w",
			m.stage, expected, domain.ErrInvalidStage)
	}
	return nil
}

// requireCreator fails with ErrUnauthorized unless caller is the creator.
func (m *Market) requireCreator(caller common.Address) error {
	if caller != m.creator {
		return fmt.Errorf("market: caller %s is not the creator: %w",
			caller.Hex(), domain.ErrUnauthorized)
	}
	return nil
}
