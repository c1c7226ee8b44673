package storage

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"raffle/internal/engine"
	"raffle/internal/logger"
)

// Recorder implements engine.Emitter by journaling every event to storage.
type Recorder struct {
	store Storage
}

func NewRecorder(store Storage) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Emit(e engine.Event) {
	payload, err := json.Marshal(eventPayload(e))
	if err != nil {
		logger.Error("marshal event payload", zap.String("event", e.EventName()), zap.Error(err))
		return
	}
	record := &EventRecord{
		Kind:      e.EventName(),
		RaffleKey: e.RaffleKey().Hex(),
		Payload:   string(payload),
	}
	if err := r.store.AppendEvent(record); err != nil {
		logger.Error("journal event", zap.String("event", e.EventName()), zap.Error(err))
	}
}

// eventPayload flattens an event into JSON-friendly fields: keys as hex,
// amounts as decimal strings.
func eventPayload(e engine.Event) map[string]any {
	switch ev := e.(type) {
	case engine.RaffleCreated:
		return map[string]any{
			"raffleType":        ev.RaffleType.String(),
			"creator":           string(ev.Creator),
			"collateralAddress": string(ev.CollateralAddress),
			"collateralParam":   ev.CollateralParam.String(),
			"endTime":           ev.EndTime.Unix(),
			"operator":          ev.Operator,
		}
	case engine.EntrySold:
		return map[string]any{
			"buyer":               string(ev.Buyer),
			"entryCount":          ev.EntryCount,
			"cumulativePurchases": ev.CumulativePurchases,
			"pricePaid":           ev.PricePaid.String(),
			"referral":            string(ev.Referral),
			"referralTier":        ev.ReferralTier,
		}
	case engine.SetWinnerTriggered:
		return map[string]any{
			"collectedAmount": ev.CollectedAmount.String(),
		}
	case engine.RandomnessRequested:
		return map[string]any{
			"requestId": string(ev.RequestID),
		}
	case engine.RandomnessFulfilled:
		return map[string]any{
			"requestId":     string(ev.RequestID),
			"winner":        string(ev.Winner),
			"winningTicket": ev.WinningTicket,
		}
	case engine.MaxEntriesPerBuyerUpdated:
		return map[string]any{
			"max": ev.Max,
		}
	default:
		return map[string]any{}
	}
}

// RecordFromSnapshot converts the registry's view of a raffle into its
// persisted form.
func RecordFromSnapshot(s engine.Snapshot) *RaffleRecord {
	return &RaffleRecord{
		Key:                s.Key.Hex(),
		RaffleType:         uint8(s.RaffleType),
		CollateralAddress:  string(s.CollateralAddress),
		CollateralParam:    s.CollateralParam.String(),
		Creator:            string(s.Creator),
		EndTime:            s.EndTime.Unix(),
		Operator:           s.Operator,
		MaxEntriesPerBuyer: s.MaxEntriesPerBuyer,
		TotalEntriesSold:   s.TotalEntriesSold,
		Purchases:          s.Purchases,
		CollectedFunds:     s.CollectedFunds.String(),
		Finished:           s.Finished,
		Winner:             string(s.Winner),
		UpdatedAt:          time.Now(),
	}
}
