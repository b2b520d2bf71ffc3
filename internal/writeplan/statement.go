package writeplan

import (
	"fmt"
	"strings"

	"github.com/roach88/geostore/internal/dialect"
	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/topology"
)

// Shape is a statement kind. Shapes execute in declaration order.
type Shape uint8

const (
	ShapeRemoveDeleted Shape = iota
	ShapeInsertDeleted
	ShapeCopyToHistory
	ShapeUpdateHead
	ShapeInsertHistory
	ShapeDeleteHead
	ShapeInsertHead
	ShapePurgeDeleted
)

func (s Shape) String() string {
	switch s {
	case ShapeRemoveDeleted:
		return "remove-from-delete"
	case ShapeInsertDeleted:
		return "insert-delete"
	case ShapeCopyToHistory:
		return "copy-to-history"
	case ShapeUpdateHead:
		return "update-head"
	case ShapeInsertHistory:
		return "insert-history-tombstone"
	case ShapeDeleteHead:
		return "delete-head"
	case ShapeInsertHead:
		return "insert-head"
	case ShapePurgeDeleted:
		return "purge-from-delete"
	default:
		return fmt.Sprintf("Shape(%d)", uint8(s))
	}
}

// Statement is one prepared statement and the rows it runs for.
type Statement struct {
	Shape Shape
	Table string
	SQL   string
	IDs   []string
	Rows  [][]any
}

func (s *Statement) add(id string, args []any) {
	s.IDs = append(s.IDs, id)
	s.Rows = append(s.Rows, args)
}

func insertSQL(d dialect.Dialect, table string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), store.SelectColumns(d), dialect.Placeholders(d, 1, len(topology.Columns)))
}

func deleteByIDSQL(d dialect.Dialect, table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.Quote(table), d.Quote("id"), d.Placeholder(1))
}

// copyToHistorySQL copies the row of id from head into history with txn_next
// bound to the first parameter.
func copyToHistorySQL(d dialect.Dialect, history, head string) string {
	sel := make([]string, len(topology.Columns))
	for i, c := range topology.Columns {
		if c == "txn_next" {
			sel[i] = fmt.Sprintf("CAST(%s AS %s)", d.Placeholder(1), d.IntType())
			continue
		}
		sel[i] = d.Quote(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE %s = %s",
		d.Quote(history), store.SelectColumns(d), strings.Join(sel, ", "),
		d.Quote(head), d.Quote("id"), d.Placeholder(2))
}

// updateColumns are the columns an in-place HEAD update sets.
var updateColumns = func() []int {
	var idx []int
	for i, c := range topology.Columns {
		if c != "id" && c != "part" {
			idx = append(idx, i)
		}
	}
	return idx
}()

func updateHeadSQL(d dialect.Dialect, head string) string {
	set := make([]string, len(updateColumns))
	for n, i := range updateColumns {
		set[n] = fmt.Sprintf("%s = %s", d.Quote(topology.Columns[i]), d.Placeholder(n+1))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.Quote(head), strings.Join(set, ", "), d.Quote("id"), d.Placeholder(len(updateColumns)+1))
}

func updateHeadArgs(row []any, id string) []any {
	args := make([]any, 0, len(updateColumns)+1)
	for _, i := range updateColumns {
		args = append(args, row[i])
	}
	return append(args, id)
}
