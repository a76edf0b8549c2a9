package client

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cloudquery/plugin-sdk/v4/schema"
	"github.com/google/uuid"
	"github.com/infobloxopen/cq-source-geoparquet/internal/partition"
)

// conformRecord reshapes a record read from one member file to the table
// schema: columns are reordered by name, _cq_id is filled with fresh UUIDs,
// partition columns take the file's Hive values and columns the file lacks
// are null. The caller keeps ownership of rec.
func conformRecord(mem memory.Allocator, rec arrow.RecordBatch, target *arrow.Schema, uri string) (arrow.RecordBatch, error) {
	n := int(rec.NumRows())
	partValues := make(map[string]string)
	for _, kv := range partition.Values(uri) {
		partValues[kv.Key] = kv.Value
	}
	src := rec.Schema()

	cols := make([]arrow.Array, target.NumFields())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()

	for i, field := range target.Fields() {
		if idx := src.FieldIndices(field.Name); len(idx) > 0 {
			col := rec.Column(idx[0])
			if !arrow.TypeEqual(col.DataType(), field.Type) {
				return nil, fmt.Errorf("column %q of %s is %s, table expects %s", field.Name, uri, col.DataType(), field.Type)
			}
			col.Retain()
			cols[i] = col
			continue
		}

		switch {
		case field.Name == schema.CqIDColumn.Name:
			col, err := uuidColumn(mem, field.Type, n)
			if err != nil {
				return nil, err
			}
			cols[i] = col
		case hasKey(partValues, field.Name) && field.Type.ID() == arrow.STRING:
			cols[i] = constantString(mem, partValues[field.Name], n)
		default:
			cols[i] = array.MakeArrayOfNull(mem, field.Type, n)
		}
	}

	return array.NewRecordBatch(target, cols, int64(n)), nil
}

func hasKey(m map[string]string, k string) bool {
	_, ok := m[k]
	return ok
}

func constantString(mem memory.Allocator, v string, n int) arrow.Array {
	b := array.NewStringBuilder(mem)
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		b.Append(v)
	}
	return b.NewArray()
}

// uuidColumn builds n random UUIDs for a column typed as the UUID extension
// type or as its 16-byte storage.
func uuidColumn(mem memory.Allocator, dt arrow.DataType, n int) (arrow.Array, error) {
	storageType := dt
	ext, isExt := dt.(arrow.ExtensionType)
	if isExt {
		storageType = ext.StorageType()
	}
	fsb, ok := storageType.(*arrow.FixedSizeBinaryType)
	if !ok || fsb.ByteWidth != 16 {
		return nil, fmt.Errorf("unexpected %s type %s", schema.CqIDColumn.Name, dt)
	}

	b := array.NewFixedSizeBinaryBuilder(mem, fsb)
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		id := uuid.New()
		b.Append(id[:])
	}
	storage := b.NewArray()
	if !isExt {
		return storage, nil
	}
	defer storage.Release()
	return array.NewExtensionArrayWithStorage(ext, storage), nil
}
