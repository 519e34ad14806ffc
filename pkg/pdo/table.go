package pdo

import (
	"fmt"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/od"
)

// A mapped field and its location inside of a process image
type Entry struct {
	Field    od.Field
	MapValue uint32
	Offset   int
	Width    int
	Signed   bool
}

// Table is the ordered layout of one process data direction.
// Offsets are the cumulative sum of the preceding widths, in mapping order.
// A nil table is valid and maps nothing.
type Table struct {
	entries []Entry
	byField map[od.Field]int
	size    int
}

// Create a new table from an ordered list of fields
func NewTable(fields []od.Field) (*Table, error) {
	table := &Table{
		entries: make([]Entry, 0, len(fields)),
		byField: make(map[od.Field]int, len(fields)),
	}
	for _, field := range fields {
		info, ok := od.Lookup(field)
		if !ok {
			return nil, fmt.Errorf("%w : %v", cia402.ErrUnknownField, field)
		}
		if _, duplicate := table.byField[field]; duplicate {
			return nil, fmt.Errorf("%w : %v mapped twice", cia402.ErrIllegalArgument, field)
		}
		table.byField[field] = len(table.entries)
		table.entries = append(table.entries, Entry{
			Field:    field,
			MapValue: info.MapValue(),
			Offset:   table.size,
			Width:    info.Width(),
			Signed:   info.Signed,
		})
		table.size += info.Width()
	}
	return table, nil
}

// Create a new table from packed mapping values, as read back from a device
func NewTableFromMapValues(mapValues []uint32) (*Table, error) {
	fields := make([]od.Field, 0, len(mapValues))
	for _, mapValue := range mapValues {
		field, ok := od.FieldByMapValue(mapValue)
		if !ok {
			return nil, fmt.Errorf("%w : map value x%x", cia402.ErrUnknownField, mapValue)
		}
		fields = append(fields, field)
	}
	return NewTable(fields)
}

// Lookup the entry of a field, ok is false if the field is not mapped
func (table *Table) Lookup(field od.Field) (Entry, bool) {
	if table == nil {
		return Entry{}, false
	}
	i, ok := table.byField[field]
	if !ok {
		return Entry{}, false
	}
	return table.entries[i], true
}

func (table *Table) Contains(field od.Field) bool {
	_, ok := table.Lookup(field)
	return ok
}

// Entries in mapping order
func (table *Table) Entries() []Entry {
	if table == nil {
		return nil
	}
	entries := make([]Entry, len(table.entries))
	copy(entries, table.entries)
	return entries
}

// Total number of bytes used by the mapping
func (table *Table) Size() int {
	if table == nil {
		return 0
	}
	return table.size
}

func (table *Table) Len() int {
	if table == nil {
		return 0
	}
	return len(table.entries)
}
