package storage

import "time"

// EventRecord is one appended engine event, serialized for indexers.
type EventRecord struct {
	ID        int64  `gorm:"primaryKey"`
	Kind      string `gorm:"not null;index:idx_events_raffle_kind"`
	RaffleKey string `gorm:"not null;index:idx_events_raffle_kind;index"`
	Payload   string `gorm:"not null"`
	CreatedAt time.Time
}

// RaffleRecord mirrors the registry's view of a raffle, upserted after every
// mutation.
type RaffleRecord struct {
	Key                string `gorm:"primaryKey"`
	RaffleType         uint8  `gorm:"not null"`
	CollateralAddress  string `gorm:"not null"`
	CollateralParam    string `gorm:"not null"`
	Creator            string `gorm:"not null;index"`
	EndTime            int64  `gorm:"not null"`
	Operator           bool   `gorm:"default:false"`
	MaxEntriesPerBuyer uint64 `gorm:"default:0"`
	TotalEntriesSold   uint64 `gorm:"default:0"`
	Purchases          uint64 `gorm:"default:0"`
	CollectedFunds     string `gorm:"not null"`
	Finished           bool   `gorm:"default:false;index"`
	Winner             string `gorm:"default:''"`
	UpdatedAt          time.Time
}
