package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"codeberg.org/mentalblood/cnvyr/internal/item"
)

// DDL holds the statements creating one item table and its indexes.
// Every statement is idempotent.
type DDL struct {
	Table   string
	Create  string
	Indexes []string
}

// Statements returns Create followed by Indexes.
func (d DDL) Statements() []string {
	return append([]string{d.Create}, d.Indexes...)
}

// Synthesize derives the table of an item type: the surrogate key plus one
// column per field, NOT NULL unless nullable, and a lookup index per column.
func Synthesize(d Dialect, desc *item.Descriptor) (DDL, error) {
	table := desc.Table()
	cols := []string{d.KeyColumn()}
	var indexes []string

	for _, f := range desc.Fields() {
		col, err := columnDef(d, f)
		if err != nil {
			return DDL{}, fmt.Errorf("synthesize %s: %w", desc.Name(), err)
		}
		cols = append(cols, col)
		indexes = append(indexes, indexDef(d, table, f.Name))
	}

	return DDL{
		Table:   table,
		Create:  fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(table), strings.Join(cols, ", ")),
		Indexes: indexes,
	}, nil
}

// MissingColumns returns the statements adding fields of desc missing from an existing
// table with the given columns. Only nullable fields can be added: existing
// rows have no value for them.
func MissingColumns(d Dialect, desc *item.Descriptor, existing []string) ([]string, error) {
	var stmts []string
	table := desc.Table()
	for _, f := range desc.Fields() {
		if slices.Contains(existing, f.Name) {
			continue
		}
		if !f.Nullable {
			return nil, &SchemaError{Table: table, Field: f.Name, FieldKind: f.Kind, Reason: "cannot add a required column to an existing table"}
		}
		col, err := columnDef(d, f)
		if err != nil {
			return nil, fmt.Errorf("grow %s: %w", desc.Name(), err)
		}
		stmts = append(stmts,
			fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), col),
			indexDef(d, table, f.Name),
		)
	}
	return stmts, nil
}

func columnDef(d Dialect, f item.Field) (string, error) {
	typ, err := d.ColumnType(f.Kind)
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.Field = f.Name
		}
		return "", err
	}
	col := d.Quote(f.Name) + " " + typ
	if !f.Nullable {
		col += " NOT NULL"
	}
	return col, nil
}

func indexDef(d Dialect, table, column string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		d.Quote(table+"_"+column), d.Quote(table), d.Quote(column))
}
