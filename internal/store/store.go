package store

import (
	"gorm.io/gorm"
)

type Store interface {
	Mapping() Mapping
	Close() error
}

type DataStore struct {
	db      *gorm.DB
	mapping Mapping
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		mapping: NewMappingStore(db),
		db:      db,
	}
}

func (s *DataStore) Mapping() Mapping {
	return s.mapping
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
