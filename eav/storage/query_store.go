package storage

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/eav/query"
	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/eav/values"
	"github.com/andrfilipenk/new-sub004/errors"
)

// QueryStore runs attribute-filtered entity queries through the join
// optimizer and builder.
type QueryStore struct {
	db          *sql.DB
	optimizer   *query.Optimizer
	builder     *query.Builder
	transformer *values.Transformer
	logger      *zap.SugaredLogger
}

// NewQueryStore creates a query store. logger may be nil.
func NewQueryStore(db *sql.DB, optimizer *query.Optimizer, transformer *values.Transformer, logger *zap.SugaredLogger) *QueryStore {
	return &QueryStore{
		db:          db,
		optimizer:   optimizer,
		builder:     query.NewBuilder(optimizer.TablePrefix),
		transformer: transformer,
		logger:      logger,
	}
}

// FindIDs returns the ids of entities matching the filters, ordered by
// sorts, bounded by limit/offset (0 limit = unbounded).
func (s *QueryStore) FindIDs(ctx context.Context, et *types.EntityType, filters []types.Filter, sorts []types.Sort, limit, offset int) ([]int64, error) {
	storageFilters, err := s.toStorageFilters(et, filters)
	if err != nil {
		return nil, err
	}

	plan := s.optimizer.OptimizeJoins(s.requiredAttributes(et, storageFilters), storageFilters)
	stmt, args, err := s.builder.SelectIDs(et, plan, storageFilters, sorts, limit, offset)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Debugw("Executing entity query",
			"entity_type", et.Code,
			"joins", len(plan.Joins),
			"use_subquery", plan.UseSubquery,
		)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "find entities of type %s", et.Code)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan entity id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of entities matching the filters.
func (s *QueryStore) Count(ctx context.Context, et *types.EntityType, filters []types.Filter) (int64, error) {
	storageFilters, err := s.toStorageFilters(et, filters)
	if err != nil {
		return 0, err
	}

	plan := s.optimizer.OptimizeJoins(s.requiredAttributes(et, storageFilters), storageFilters)
	stmt, args, err := s.builder.Count(et, plan, storageFilters)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "count entities of type %s", et.Code)
	}
	return count, nil
}

// requiredAttributes selects the attributes the plan must cover: every
// filtered attribute, whether or not it is flagged filterable, plus the
// declared filterable set.
func (s *QueryStore) requiredAttributes(et *types.EntityType, filters []types.Filter) []*types.Attribute {
	filtered := types.FilteredCodes(filters)

	var attrs []*types.Attribute
	seen := make(map[string]struct{})
	for _, attr := range et.Attributes.All() {
		_, isFiltered := filtered[attr.Code]
		if !isFiltered && !attr.Filterable {
			continue
		}
		if _, ok := seen[attr.Code]; ok {
			continue
		}
		seen[attr.Code] = struct{}{}
		attrs = append(attrs, attr)
	}
	return attrs
}

// toStorageFilters converts filter values to bind parameters matching the
// stored form. Numeric backends bind int64/float64: correlated subquery
// results carry no column affinity, so text binds against numeric storage
// would compare by storage class instead of value.
func (s *QueryStore) toStorageFilters(et *types.EntityType, filters []types.Filter) ([]types.Filter, error) {
	out := make([]types.Filter, len(filters))
	for i, f := range filters {
		attr, ok := et.Attribute(f.Code)
		if !ok {
			return nil, errors.Newf("unknown attribute %q on entity type %q", f.Code, et.Code)
		}

		switch f.Op {
		case types.OpIn:
			vals, ok := f.Value.([]any)
			if !ok {
				return nil, errors.Newf("IN filter on %q requires a []any value, got %T", f.Code, f.Value)
			}
			conv := make([]any, len(vals))
			for j, v := range vals {
				stored, err := s.transformer.ToQueryArg(attr.Backend, v)
				if err != nil {
					return nil, errors.Wrapf(err, "filter value for %s", f.Code)
				}
				conv[j] = stored
			}
			out[i] = types.Filter{Code: f.Code, Op: f.Op, Value: conv}
		case types.OpLike:
			// LIKE patterns are passed through; the caller owns wildcards.
			out[i] = f
		default:
			stored, err := s.transformer.ToQueryArg(attr.Backend, f.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "filter value for %s", f.Code)
			}
			out[i] = types.Filter{Code: f.Code, Op: f.Op, Value: stored}
		}
	}
	return out, nil
}
