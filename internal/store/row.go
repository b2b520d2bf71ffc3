package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/geostore/internal/dialect"
	"github.com/roach88/geostore/internal/ident"
	"github.com/roach88/geostore/internal/topology"
	"github.com/roach88/geostore/internal/tuple"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// SelectColumns is the quoted column list of a full row.
func SelectColumns(d dialect.Dialect) string {
	cols := make([]string, len(topology.Columns))
	for i, c := range topology.Columns {
		cols[i] = d.Quote(c)
	}
	return strings.Join(cols, ", ")
}

// RowArgs returns the bind values of t in topology.Columns order. part is the
// physical partition the row belongs to.
func RowArgs(t *tuple.Tuple, part int) []any {
	m := t.Meta
	var puid any
	if m.HasPrev() {
		puid = int64(m.PUID)
	}
	return []any{
		int64(m.StoreNumber),
		int64(m.Version),
		nullVersion(m.NextVersion),
		nullVersion(m.PrevVersion),
		int64(m.UID),
		puid,
		m.ContentHash,
		m.ChangeCount,
		m.GeoGrid,
		int64(m.Flags),
		m.ID,
		nullString(m.AppID),
		nullString(m.Author),
		m.AuthorTs,
		m.CreatedAt,
		m.UpdatedAt,
		nullString(m.Type),
		nullString(m.Origin),
		int64(part),
		t.Feature,
		t.Geometry,
		t.ReferencePoint,
		t.Tags,
		t.Attachment,
	}
}

func nullVersion(v ident.Version) any {
	if v.IsZero() {
		return nil
	}
	return int64(v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ScanTuple reads a full row selected with SelectColumns.
func ScanTuple(s scanner) (*tuple.Tuple, error) {
	var (
		storeNumber, txn, uid, flags int64
		txnNext, ptxn, puid          sql.NullInt64
		appID, author, typ, origin   sql.NullString
		part                         int64
		m                            tuple.Metadata
		t                            tuple.Tuple
	)
	err := s.Scan(
		&storeNumber, &txn, &txnNext, &ptxn, &uid, &puid,
		&m.ContentHash, &m.ChangeCount, &m.GeoGrid, &flags,
		&m.ID, &appID, &author, &m.AuthorTs, &m.CreatedAt, &m.UpdatedAt, &typ, &origin, &part,
		&t.Feature, &t.Geometry, &t.ReferencePoint, &t.Tags, &t.Attachment,
	)
	if err != nil {
		return nil, err
	}
	f, err := ident.FlagsFromInt(flags)
	if err != nil {
		return nil, fmt.Errorf("scan row %s: %w", m.ID, err)
	}
	m.StoreNumber = ident.StoreNumber(uint64(storeNumber))
	m.Version = ident.Version(uint64(txn))
	m.NextVersion = ident.Version(uint64(txnNext.Int64))
	m.PrevVersion = ident.Version(uint64(ptxn.Int64))
	m.UID = uint32(uid)
	m.PUID = uint32(puid.Int64)
	m.Flags = f
	m.AppID = appID.String
	m.Author = author.String
	m.Type = typ.String
	m.Origin = origin.String

	t.Meta = &m
	t.Number = m.TupleNumber()
	t.Parts = tuple.PartsAll
	return &t, nil
}
