package trajectory

import (
	"errors"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// ErrSchemaMismatch is returned when input data does not carry the expected
// columns in the expected order.
var ErrSchemaMismatch = errors.New("trajectory: schema mismatch")

var schema = buildSchema()

func buildSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(Columns))
	for i, name := range Columns {
		typ := arrow.DataType(arrow.PrimitiveTypes.Float64)
		if i < 2 {
			typ = arrow.PrimitiveTypes.Int64
		}
		fields[i] = arrow.Field{Name: name, Type: typ}
	}
	return arrow.NewSchema(fields, nil)
}

// Schema returns the Arrow schema of the trajectory table.
func Schema() *arrow.Schema {
	return schema
}

// ToArrow builds one Arrow record batch from recs. The caller must Release it.
func ToArrow(mem memory.Allocator, recs []DayRecord) arrow.Record {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, f := range b.Fields() {
		f.Reserve(len(recs))
	}

	subject := b.Field(0).(*array.Int64Builder)
	day := b.Field(1).(*array.Int64Builder)
	floats := make([]*array.Float64Builder, len(FeatureColumns))
	for i := range floats {
		floats[i] = b.Field(i + 2).(*array.Float64Builder)
	}

	for _, r := range recs {
		subject.Append(int64(r.SubjectID))
		day.Append(int64(r.Day))
		for i, v := range r.Features() {
			floats[i].Append(v)
		}
	}

	return b.NewRecord()
}

// FromArrow converts an Arrow record batch back into day records.
func FromArrow(rec arrow.Record) ([]DayRecord, error) {
	if err := checkSchema(rec.Schema()); err != nil {
		return nil, err
	}

	subject, ok := rec.Column(0).(*array.Int64)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrSchemaMismatch, ColSubjectID, rec.Column(0).DataType())
	}
	day, ok := rec.Column(1).(*array.Int64)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrSchemaMismatch, ColDay, rec.Column(1).DataType())
	}
	floats := make([]*array.Float64, len(FeatureColumns))
	for i := range floats {
		col, ok := rec.Column(i + 2).(*array.Float64)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %s", ErrSchemaMismatch, FeatureColumns[i], rec.Column(i+2).DataType())
		}
		floats[i] = col
	}

	n := int(rec.NumRows())
	out := make([]DayRecord, n)
	for i := 0; i < n; i++ {
		for c, col := range rec.Columns() {
			if col.IsNull(i) {
				return nil, fmt.Errorf("%w: null %s at row %d", ErrSchemaMismatch, Columns[c], i)
			}
		}
		out[i] = DayRecord{
			SubjectID:          int(subject.Value(i)),
			Day:                int(day.Value(i)),
			SleepHours:         floats[0].Value(i),
			StressLevel:        floats[1].Value(i),
			ActivityMinutes:    floats[2].Value(i),
			JunkFoodScore:      floats[3].Value(i),
			AlcoholUnits:       floats[4].Value(i),
			InflammationIndex:  floats[5].Value(i),
			ImmuneLoad:         floats[6].Value(i),
			HormonalDisruption: floats[7].Value(i),
			OxidativeStress:    floats[8].Value(i),
		}
	}
	return out, nil
}

// checkSchema compares names and types only; readers may attach field
// metadata or nullability that do not matter here.
func checkSchema(s *arrow.Schema) error {
	if s.NumFields() != len(Columns) {
		return fmt.Errorf("%w: got %d columns, want %d", ErrSchemaMismatch, s.NumFields(), len(Columns))
	}
	for i, f := range s.Fields() {
		want := schema.Field(i)
		if f.Name != want.Name {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaMismatch, i, f.Name, want.Name)
		}
		if f.Type.ID() != want.Type.ID() {
			return fmt.Errorf("%w: column %q is %s, want %s", ErrSchemaMismatch, f.Name, f.Type, want.Type)
		}
	}
	return nil
}
