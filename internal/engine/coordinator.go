package engine

import "fmt"

// randomnessCoordinator tracks the per-raffle request state machine
// NoRequest -> Pending -> Fulfilled. At most one request may be outstanding
// per raffle, and each request is consumed exactly once; duplicate callbacks
// for a fulfilled request are detected so the caller can treat them as
// no-ops. All methods run under the registry's mutex.
type randomnessCoordinator struct {
	source       RandomnessSource
	pendingByID  map[RequestID]Key
	pendingByKey map[Key]RequestID
	fulfilled    map[RequestID]Key
}

func newRandomnessCoordinator(source RandomnessSource) *randomnessCoordinator {
	return &randomnessCoordinator{
		source:       source,
		pendingByID:  make(map[RequestID]Key),
		pendingByKey: make(map[Key]RequestID),
		fulfilled:    make(map[RequestID]Key),
	}
}

// request issues a randomness request for a raffle that just finished.
func (c *randomnessCoordinator) request(key Key) (RequestID, error) {
	if id, ok := c.pendingByKey[key]; ok {
		return id, fmt.Errorf("raffle %s: %w", key.Hex(), ErrRequestAlreadyPending)
	}
	id, err := c.source.RequestRandomness(key)
	if err != nil {
		return "", fmt.Errorf("request randomness for %s: %w", key.Hex(), err)
	}
	c.pendingByID[id] = key
	c.pendingByKey[key] = id
	return id, nil
}

// consume resolves a callback's request id. The second return is true when
// the request was already fulfilled (redelivery by the oracle transport).
func (c *randomnessCoordinator) consume(id RequestID) (Key, bool, error) {
	if key, ok := c.fulfilled[id]; ok {
		return key, true, nil
	}
	key, ok := c.pendingByID[id]
	if !ok {
		return Key{}, false, fmt.Errorf("request %s: %w", id, ErrUnknownRequest)
	}
	delete(c.pendingByID, id)
	delete(c.pendingByKey, key)
	c.fulfilled[id] = key
	return key, false, nil
}
