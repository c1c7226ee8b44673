// Package oracle provides the randomness source used by the registry. Local
// is an in-process stand-in for the external VRF service: it answers every
// request with a crypto/rand value after a configurable delay, delivered
// through the same callback path a real oracle would use.
package oracle

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"raffle/internal/engine"
	"raffle/internal/logger"
)

// Fulfiller is the inbound half of the oracle protocol.
type Fulfiller interface {
	FulfillRandomness(caller engine.Address, id engine.RequestID, randomValue *big.Int) (engine.Key, error)
}

type Local struct {
	principal engine.Address
	delay     time.Duration

	mu        sync.Mutex
	fulfiller Fulfiller
}

var maxRandom = new(big.Int).Lsh(big.NewInt(1), 256)

func NewLocal(principal engine.Address, delay time.Duration) *Local {
	return &Local{principal: principal, delay: delay}
}

// Bind attaches the callback target. Set once at wiring time, before any
// request can be issued.
func (o *Local) Bind(f Fulfiller) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fulfiller = f
}

// RequestRandomness implements engine.RandomnessSource.
func (o *Local) RequestRandomness(key engine.Key) (engine.RequestID, error) {
	o.mu.Lock()
	fulfiller := o.fulfiller
	o.mu.Unlock()
	if fulfiller == nil {
		return "", fmt.Errorf("local oracle: no fulfiller bound")
	}

	id := engine.RequestID(uuid.New().String())
	logger.Debug("randomness requested",
		zap.String("raffle", key.Hex()),
		zap.String("request", string(id)),
	)

	go func() {
		if o.delay > 0 {
			time.Sleep(o.delay)
		}
		value, err := rand.Int(rand.Reader, maxRandom)
		if err != nil {
			logger.Error("draw random value", zap.Error(err))
			return
		}
		if _, err := fulfiller.FulfillRandomness(o.principal, id, value); err != nil {
			logger.Error("deliver randomness",
				zap.String("request", string(id)),
				zap.Error(err),
			)
		}
	}()
	return id, nil
}
