package bitable_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitableTimesheet/internal/bitable"
	"bitableTimesheet/internal/logger"
)

type countingLister struct {
	calls  int
	fields []bitable.Field
	err    error
}

func (l *countingLister) ListFields(context.Context, bitable.TableRef) ([]bitable.Field, error) {
	l.calls++
	return l.fields, l.err
}

func TestFieldResolverCachesSchemaPerTable(t *testing.T) {
	lister := &countingLister{fields: []bitable.Field{
		{ID: "fldDate", Name: "Date"},
		{ID: "fldPerson", Name: "Person"},
	}}
	resolver := bitable.NewFieldResolver(lister, logger.Discard())
	ctx := context.Background()

	ids, err := resolver.ResolveAll(ctx, sheet, []string{"Person"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Person": "fldPerson"}, ids)

	ids, err = resolver.ResolveAll(ctx, sheet, []string{"Date"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Date": "fldDate"}, ids)
	assert.Equal(t, 1, lister.calls)

	other := bitable.TableRef{AppToken: "bascnTest", TableID: "tblRoster"}
	_, _ = resolver.ResolveAll(ctx, other, []string{"Date"})
	assert.Equal(t, 2, lister.calls)
}

func TestFieldResolverUnknownNameIsLeftOut(t *testing.T) {
	var buf bytes.Buffer
	lister := &countingLister{fields: []bitable.Field{{ID: "fldDate", Name: "Date"}}}
	resolver := bitable.NewFieldResolver(lister, logger.NewLogger("WARN", &buf))

	ids, err := resolver.ResolveAll(context.Background(), sheet, []string{"Date", "Project", ""})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Date": "fldDate"}, ids)
	assert.Contains(t, buf.String(), `"field":"Project"`)
}

func TestFieldResolverDoesNotCacheFailures(t *testing.T) {
	lister := &countingLister{err: errors.New("boom")}
	resolver := bitable.NewFieldResolver(lister, nil)

	_, err := resolver.ResolveAll(context.Background(), sheet, []string{"Date"})
	require.Error(t, err)

	lister.err = nil
	lister.fields = []bitable.Field{{ID: "fldDate", Name: "Date"}}
	ids, err := resolver.ResolveAll(context.Background(), sheet, []string{"Date"})
	require.NoError(t, err)
	assert.Equal(t, "fldDate", ids["Date"])
	assert.Equal(t, 2, lister.calls)
}
