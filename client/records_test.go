package client

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cloudquery/plugin-sdk/v4/schema"
)

func TestConformRecord(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	src := arrow.NewSchema([]arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	}, nil)
	b := array.NewRecordBuilder(mem, src)
	b.Field(0).(*array.StringBuilder).AppendValues([]string{"a", "b", "c"}, nil)
	b.Field(1).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	rec := b.NewRecordBatch()
	b.Release()
	defer rec.Release()

	table := &schema.Table{
		Name: "theme_lines",
		Columns: schema.ColumnList{
			{Name: "id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "name", Type: arrow.BinaryTypes.String},
			{Name: "geometry", Type: arrow.BinaryTypes.Binary},
			{Name: "theme", Type: arrow.BinaryTypes.String},
		},
	}
	schema.AddCqIDs(table)
	target := table.ToArrowSchema()

	out, err := conformRecord(mem, rec, target, "s3://b/data/theme=lines/part-0.parquet")
	if err != nil {
		t.Fatalf("conformRecord: %v", err)
	}
	defer out.Release()

	if !out.Schema().Equal(target) {
		t.Fatalf("schema = %v, want %v", out.Schema(), target)
	}
	if out.NumRows() != 3 {
		t.Fatalf("rows = %d, want 3", out.NumRows())
	}

	col := func(name string) arrow.Array {
		idx := target.FieldIndices(name)
		if len(idx) == 0 {
			t.Fatalf("missing column %q", name)
		}
		return out.Column(idx[0])
	}

	ids := col("id").(*array.Int64)
	if ids.Value(2) != 3 {
		t.Errorf("id[2] = %d, want 3", ids.Value(2))
	}
	if n := col("geometry").NullN(); n != 3 {
		t.Errorf("geometry nulls = %d, want 3", n)
	}
	theme := col("theme").(*array.String)
	for i := 0; i < theme.Len(); i++ {
		if theme.Value(i) != "lines" {
			t.Errorf("theme[%d] = %q, want %q", i, theme.Value(i), "lines")
		}
	}
	cqID := col(schema.CqIDColumn.Name)
	if cqID.NullN() != 0 {
		t.Errorf("_cq_id has %d nulls", cqID.NullN())
	}
	if cqID.ValueStr(0) == cqID.ValueStr(1) {
		t.Error("_cq_id values should be unique")
	}
}

func TestConformRecord_TypeMismatch(t *testing.T) {
	mem := memory.NewGoAllocator()
	src := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.BinaryTypes.String}}, nil)
	b := array.NewRecordBuilder(mem, src)
	b.Field(0).(*array.StringBuilder).Append("x")
	rec := b.NewRecordBatch()
	b.Release()
	defer rec.Release()

	target := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64}}, nil)
	if _, err := conformRecord(mem, rec, target, "/d/a.parquet"); err == nil {
		t.Fatal("expected type mismatch error")
	}
}
