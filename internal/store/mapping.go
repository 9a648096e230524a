package store

import (
	"context"
	"errors"

	"github.com/flowbot/media-migrator/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Mapping interface {
	Upsert(ctx context.Context, mapping model.Mapping) (*model.Mapping, error)
	Get(ctx context.Context, url string) (*model.Mapping, error)
	List(ctx context.Context, filter *MappingQueryFilter, opts *MappingQueryOptions) (model.MappingList, error)
}

type MappingStore struct {
	db *gorm.DB
}

// Make sure we conform to Mapping interface
var _ Mapping = (*MappingStore)(nil)

func NewMappingStore(db *gorm.DB) Mapping {
	return &MappingStore{db: db}
}

// Upsert inserts the mapping or updates the external id of the existing row in a
// single statement. An empty external id never overwrites a recorded one.
func (m *MappingStore) Upsert(ctx context.Context, mapping model.Mapping) (*model.Mapping, error) {
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"external_id", "updated_at"}),
	}
	if mapping.ExternalID == "" {
		conflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoNothing: true,
		}
	}

	if err := m.getDB(ctx).Clauses(conflict).Create(&mapping).Error; err != nil {
		return nil, err
	}

	return m.Get(ctx, mapping.URL)
}

func (m *MappingStore) Get(ctx context.Context, url string) (*model.Mapping, error) {
	var mapping model.Mapping
	if err := m.getDB(ctx).Where("url = ?", url).First(&mapping).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &mapping, nil
}

func (m *MappingStore) List(ctx context.Context, filter *MappingQueryFilter, opts *MappingQueryOptions) (model.MappingList, error) {
	var mappings model.MappingList
	tx := m.getDB(ctx)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Model(&mappings).Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}

func (m *MappingStore) getDB(ctx context.Context) *gorm.DB {
	return m.db.WithContext(ctx)
}
