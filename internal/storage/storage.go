package storage

type Storage interface {
	// event journal
	AppendEvent(record *EventRecord) error
	GetEventsByRaffle(raffleKey string) ([]*EventRecord, error)

	// raffle snapshots
	UpsertRaffle(record *RaffleRecord) error
	GetRaffle(raffleKey string) (*RaffleRecord, error)
	GetUnfinishedRaffles() ([]*RaffleRecord, error)
}
