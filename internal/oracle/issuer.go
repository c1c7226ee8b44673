package oracle

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"raffle/internal/engine"
	"raffle/internal/logger"
)

// Issuer only mints request ids. Fulfillment is expected from an external
// oracle service invoking the registry callback.
type Issuer struct{}

func NewIssuer() *Issuer {
	return &Issuer{}
}

// RequestRandomness implements engine.RandomnessSource.
func (*Issuer) RequestRandomness(key engine.Key) (engine.RequestID, error) {
	id := engine.RequestID(uuid.New().String())
	logger.Info("randomness request issued, awaiting external oracle",
		zap.String("raffle", key.Hex()),
		zap.String("request", string(id)),
	)
	return id, nil
}
