package store

import (
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type MappingQueryFilter BaseQuerier

func NewMappingQueryFilter() *MappingQueryFilter {
	return &MappingQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *MappingQueryFilter) ByURLs(urls ...string) *MappingQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("url IN ?", urls)
	})
	return qf
}

// WithoutExternalID selects mappings that were stored before registration completed.
func (qf *MappingQueryFilter) WithoutExternalID() *MappingQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("external_id = ''")
	})
	return qf
}

type MappingQueryOptions BaseQuerier

func NewMappingQueryOptions() *MappingQueryOptions {
	return &MappingQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *MappingQueryOptions) WithSortOrder(sort SortOrder) *MappingQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByURL:
			return tx.Order("url")
		case SortByUpdatedTime:
			return tx.Order("updated_at")
		case SortByCreatedTime:
			return tx.Order("created_at")
		default:
			return tx
		}
	})
	return o
}

func (o *MappingQueryOptions) WithLimit(limit int) *MappingQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByURL
	SortByUpdatedTime
	SortByCreatedTime
)
