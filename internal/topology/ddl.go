package topology

import (
	"fmt"
	"strings"

	"github.com/roach88/geostore/internal/dialect"
)

func columnDefs(d dialect.Dialect) string {
	types := map[string]string{
		"id":         d.TextType() + " NOT NULL",
		"app_id":     d.TextType(),
		"author":     d.TextType(),
		"type":       d.TextType(),
		"origin":     d.TextType(),
		"feature":    d.BlobType(),
		"geo":        d.BlobType(),
		"geo_ref":    d.BlobType(),
		"tags":       d.BlobType(),
		"attachment": d.BlobType(),
		"txn_next":   d.IntType(),
		"ptxn":       d.IntType(),
		"puid":       d.IntType(),
	}
	defs := make([]string, len(Columns))
	for i, c := range Columns {
		t, ok := types[c]
		if !ok {
			t = d.IntType() + " NOT NULL"
		}
		defs[i] = fmt.Sprintf("%s %s", d.Quote(c), t)
	}
	return strings.Join(defs, ",\n  ")
}

func createTable(d dialect.Dialect, name, pk, suffix string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s,\n  PRIMARY KEY (%s)\n)%s",
		d.Quote(name), columnDefs(d), pk, suffix)
}

// DDL returns the statements that create the physical tables of c.
func DDL(d dialect.Dialect, c *Collection) []string {
	var stmts []string
	id := d.Quote("id")
	switch {
	case c.Partitions <= 1:
		stmts = append(stmts, createTable(d, c.HeadTable(-1), id, ""))
	case d.RoutesPartitions():
		pk := id + ", " + d.Quote("part")
		stmts = append(stmts, createTable(d, c.HeadTable(-1), pk, d.PartitionBy("part")))
		for p := 0; p < c.Partitions; p++ {
			stmts = append(stmts, d.PartitionOf(c.HeadTable(-1), c.HeadTable(p), p))
		}
	default:
		for p := 0; p < c.Partitions; p++ {
			stmts = append(stmts, createTable(d, c.HeadTable(p), id, ""))
		}
	}
	stmts = append(stmts,
		createTable(d, c.DeleteTable(), id, ""),
		createTable(d, c.HistoryTable(), id+", "+d.Quote("txn")+", "+d.Quote("uid"), ""),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			d.Quote(c.HistoryTable()+"_txn"), d.Quote(c.HistoryTable()), d.Quote("txn")),
	)
	return stmts
}

// DropDDL returns the statements that drop the physical tables of c.
func DropDDL(d dialect.Dialect, c *Collection) []string {
	var stmts []string
	if c.Partitions > 1 && !d.RoutesPartitions() {
		for p := 0; p < c.Partitions; p++ {
			stmts = append(stmts, "DROP TABLE IF EXISTS "+d.Quote(c.HeadTable(p)))
		}
	} else {
		stmts = append(stmts, "DROP TABLE IF EXISTS "+d.Quote(c.HeadTable(-1)))
	}
	return append(stmts,
		"DROP TABLE IF EXISTS "+d.Quote(c.DeleteTable()),
		"DROP TABLE IF EXISTS "+d.Quote(c.HistoryTable()),
	)
}
