package ps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/store"
)

// Table checkpoints are Parquet files. Int and float columns map onto
// Arrow int64 and float64, strings onto Arrow strings, and variant
// columns onto strings holding the JSON encoding of each value. The
// original schema travels in a sidecar, so decoding never guesses types
// from the Parquet file alone.

func encodeSnapshot(snap store.Snapshot) ([]byte, error) {
	schema := snap.Schema()

	arrowFields := make([]arrow.Field, schema.Len())
	for i := 0; i < schema.Len(); i++ {
		field := schema.Field(i)
		arrowFields[i] = arrow.Field{Name: field.Name, Type: arrowType(field.Type), Nullable: field.Nullable}
	}
	arrowSchema := arrow.NewSchema(arrowFields, nil)

	builder := array.NewRecordBuilder(memory.DefaultAllocator, arrowSchema)
	defer builder.Release()

	for position := 0; position < snap.Rows(); position++ {
		if !snap.Visible(position) {
			continue
		}
		row, err := snap.Row(position)
		if err != nil {
			return nil, err
		}
		for i, value := range row {
			if err := appendValue(builder.Field(i), schema.Field(i), value); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", position, schema.Field(i).Name, err)
			}
		}
	}

	record := builder.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	writer, err := pqarrow.NewFileWriter(arrowSchema, &buf, parquet.NewWriterProperties(), pqarrow.NewArrowWriterProperties())
	if err != nil {
		return nil, fmt.Errorf("creating parquet writer: %w", err)
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("writing parquet record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeTable(schema core.Schema, data []byte) (*store.Table, error) {
	reader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening parquet data: %w", err)
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("reading parquet data: %w", err)
	}
	arrowTable, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("decoding parquet table: %w", err)
	}
	defer arrowTable.Release()

	if int(arrowTable.NumCols()) != schema.Len() {
		return nil, fmt.Errorf("%w: parquet has %d columns, schema has %d",
			core.ErrSchemaMismatch, arrowTable.NumCols(), schema.Len())
	}

	table := store.New(schema)
	rows := int(arrowTable.NumRows())
	row := make([]core.Value, schema.Len())
	for position := 0; position < rows; position++ {
		for i := 0; i < schema.Len(); i++ {
			value, err := readValue(arrowTable.Column(i).Data(), schema.Field(i), position)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", position, schema.Field(i).Name, err)
			}
			row[i] = value
		}
		if err := table.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func arrowType(typ core.ColumnType) arrow.DataType {
	switch typ {
	case core.IntType:
		return arrow.PrimitiveTypes.Int64
	case core.FloatType:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

func appendValue(builder array.Builder, field core.Field, value core.Value) error {
	if value.IsNull() {
		builder.AppendNull()
		return nil
	}

	switch field.Type {
	case core.IntType:
		builder.(*array.Int64Builder).Append(value.Int)
	case core.FloatType:
		builder.(*array.Float64Builder).Append(value.AsFloat())
	case core.StringType:
		builder.(*array.StringBuilder).Append(value.Str)
	case core.VariantType:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encoding variant value: %w", err)
		}
		builder.(*array.StringBuilder).Append(string(encoded))
	}
	return nil
}

func readValue(chunked *arrow.Chunked, field core.Field, position int) (core.Value, error) {
	// Find the chunk holding this absolute row position.
	for _, chunk := range chunked.Chunks() {
		if position >= chunk.Len() {
			position -= chunk.Len()
			continue
		}
		if chunk.IsNull(position) {
			return core.Null(), nil
		}
		switch field.Type {
		case core.IntType:
			return core.IntValue(chunk.(*array.Int64).Value(position)), nil
		case core.FloatType:
			return core.FloatValue(chunk.(*array.Float64).Value(position)), nil
		case core.StringType:
			return core.StringValue(chunk.(*array.String).Value(position)), nil
		case core.VariantType:
			var value core.Value
			if err := json.Unmarshal([]byte(chunk.(*array.String).Value(position)), &value); err != nil {
				return core.Null(), fmt.Errorf("decoding variant value: %w", err)
			}
			return value, nil
		}
	}
	return core.Null(), fmt.Errorf("%w: row %d", core.ErrOutOfRange, position)
}
