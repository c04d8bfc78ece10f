package bitable

import (
	"context"

	"bitableTimesheet/internal/logger"
	"bitableTimesheet/internal/utils"
)

// FieldLister is the part of Client the resolver needs.
type FieldLister interface {
	ListFields(ctx context.Context, table TableRef) ([]Field, error)
}

// FieldResolver maps column names to stable field ids. The schema of each
// table is fetched once and kept for the life of the process.
type FieldResolver struct {
	lister FieldLister
	cache  *utils.Cache[map[string]string]
	logger *logger.Logger
}

// NewFieldResolver constructs a resolver with an empty schema cache.
func NewFieldResolver(lister FieldLister, log *logger.Logger) *FieldResolver {
	if log == nil {
		log = logger.Discard()
	}
	return &FieldResolver{
		lister: lister,
		cache:  utils.NewCache[map[string]string](0),
		logger: log,
	}
}

// ResolveAll maps every name it can; unknown names are logged and left out.
func (r *FieldResolver) ResolveAll(ctx context.Context, table TableRef, names []string) (map[string]string, error) {
	ids, err := r.schema(ctx, table)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if id, ok := ids[name]; ok {
			out[name] = id
			continue
		}
		r.logger.WithFields(logger.Fields{
			"table": table.TableID,
			"field": name,
		}).Warn("Field name not found in table schema")
	}
	return out, nil
}

func (r *FieldResolver) schema(ctx context.Context, table TableRef) (map[string]string, error) {
	key := table.String()
	if ids, ok := r.cache.Get(key); ok {
		return ids, nil
	}

	fields, err := r.lister.ListFields(ctx, table)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(fields))
	for _, f := range fields {
		ids[f.Name] = f.ID
	}
	r.cache.Set(key, ids)
	return ids, nil
}
