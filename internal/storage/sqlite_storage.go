package storage

import (
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"raffle/internal/logger"
)

type SqliteStorage struct {
	db *gorm.DB
}

func NewSqliteStorage(path string) *SqliteStorage {

	logger.Debug("initializing database...", zap.String("path", path))
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	err = db.AutoMigrate(
		&EventRecord{},
		&RaffleRecord{},
	)

	if err != nil {
		panic(err)
	}

	return &SqliteStorage{
		db: db,
	}
}

func (s *SqliteStorage) AppendEvent(record *EventRecord) error {
	logger.Debug("appending event...", zap.String("kind", record.Kind), zap.String("raffle", record.RaffleKey))

	if err := s.db.Create(record).Error; err != nil {
		return err
	}

	logger.Debug("appending event... done")
	return nil
}

func (s *SqliteStorage) GetEventsByRaffle(raffleKey string) ([]*EventRecord, error) {

	var records []*EventRecord
	err := s.db.Where("raffle_key = ?", raffleKey).Order("id asc").Find(&records).Error

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (s *SqliteStorage) UpsertRaffle(record *RaffleRecord) error {
	logger.Debug("upserting raffle snapshot...", zap.String("raffle", record.Key))

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"max_entries_per_buyer",
			"total_entries_sold",
			"purchases",
			"collected_funds",
			"finished",
			"winner",
			"updated_at",
		}),
	}).Create(record).Error

	if err != nil {
		return err
	}

	logger.Debug("upserting raffle snapshot... done")
	return nil
}

func (s *SqliteStorage) GetRaffle(raffleKey string) (*RaffleRecord, error) {

	var record RaffleRecord
	err := s.db.Where("key = ?", raffleKey).First(&record).Error
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (s *SqliteStorage) GetUnfinishedRaffles() ([]*RaffleRecord, error) {
	logger.Debug("getting unfinished raffles...")

	var records []*RaffleRecord
	err := s.db.Where("finished = ?", false).Find(&records).Error
	if err != nil {
		return nil, err
	}

	logger.Debug("getting unfinished raffles... done", zap.Int("count", len(records)))
	return records, nil
}
