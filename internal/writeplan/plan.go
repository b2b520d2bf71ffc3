package writeplan

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/dialect"
	"github.com/roach88/geostore/internal/engine"
	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/storeerr"
	"github.com/roach88/geostore/internal/topology"
	"github.com/roach88/geostore/internal/tuple"
)

// Session is the part of a write transaction the builder needs.
// Implemented by *store.Session.
type Session interface {
	engine.Session
	Dialect() dialect.Dialect
	Lookup(ctx context.Context, table string, ids []string, lock bool) (map[string]*tuple.Tuple, error)
}

// Preparer prepares statements inside the write transaction. *sql.Tx implements it.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Builder builds write plans for one session.
type Builder struct {
	sess   Session
	engine *engine.Engine
}

// NewBuilder creates a builder computing row transitions with eng.
func NewBuilder(sess Session, eng *engine.Engine) *Builder {
	return &Builder{sess: sess, engine: eng}
}

// Plan is a built, not yet executed, batch.
type Plan struct {
	Collection *topology.Collection

	// Results are in intent order.
	Results []Result

	groups map[string]*Statement
}

type target struct {
	intent    *Intent
	partition int
	head      string
}

// Build plans intents against collection c. Nothing is written.
func (b *Builder) Build(ctx context.Context, c *topology.Collection, intents []Intent) (*Plan, error) {
	if err := validate(c, intents); err != nil {
		return nil, err
	}
	d := b.sess.Dialect()
	targets := classify(d, c, intents)

	heads, dels, err := b.lookup(ctx, c, targets)
	if err != nil {
		return nil, err
	}
	if err := checkPreconditions(c, targets, heads, dels); err != nil {
		return nil, err
	}

	p := &Plan{Collection: c, groups: map[string]*Statement{}}
	for _, t := range targets {
		r, err := b.dispatch(ctx, p, t, heads[t.intent.ID], dels[t.intent.ID])
		if err != nil {
			return nil, err
		}
		p.Results = append(p.Results, r)
	}
	return p, nil
}

func validate(c *topology.Collection, intents []Intent) error {
	seen := make(map[string]struct{}, len(intents))
	for i := range intents {
		in := &intents[i]
		if in.ID == "" {
			return storeerr.NewIllegalArgument(c.ID, "", "feature id is empty")
		}
		if _, ok := opNames[in.Op]; !ok {
			return storeerr.NewIllegalArgument(c.ID, in.ID, fmt.Sprintf("unknown operation %d", in.Op))
		}
		if _, dup := seen[in.ID]; dup {
			return storeerr.NewDuplicate(c.ID, in.ID)
		}
		seen[in.ID] = struct{}{}

		switch in.Op {
		case OpCreate, OpUpdate, OpUpsert:
			if in.Feature == nil {
				return storeerr.NewIllegalArgument(c.ID, in.ID, in.Op.String()+" requires a feature")
			}
			if in.Feature.ID != nil && fmt.Sprint(in.Feature.ID) != in.ID {
				return storeerr.NewIllegalArgument(c.ID, in.ID,
					fmt.Sprintf("feature id %v does not match %s", in.Feature.ID, in.ID))
			}
		}
		if in.Op == OpCreate && in.Expected != nil {
			return storeerr.NewIllegalArgument(c.ID, in.ID, "CREATE cannot carry an expected state")
		}
	}
	return nil
}

// classify picks the HEAD table each intent targets. A batch that falls into a
// single partition targets that partition table. Otherwise dialects that route
// partitions use the parent table and the others the partition tables.
func classify(d dialect.Dialect, c *topology.Collection, intents []Intent) []target {
	targets := make([]target, len(intents))
	single := true
	for i := range intents {
		targets[i] = target{intent: &intents[i], partition: c.Partition(intents[i].ID)}
		if targets[i].partition != targets[0].partition {
			single = false
		}
	}
	for i := range targets {
		switch {
		case c.Partitions <= 1:
			targets[i].head = c.HeadTable(-1)
		case !single && d.RoutesPartitions():
			targets[i].head = c.HeadTable(-1)
		default:
			targets[i].head = c.HeadTable(targets[i].partition)
		}
	}
	return targets
}

func (b *Builder) lookup(ctx context.Context, c *topology.Collection, targets []target) (heads, dels map[string]*tuple.Tuple, err error) {
	byTable := map[string][]string{}
	var purges []string
	for _, t := range targets {
		switch t.intent.Op {
		case OpUpdate, OpUpsert, OpDelete, OpPurge:
			byTable[t.head] = append(byTable[t.head], t.intent.ID)
		}
		if t.intent.Op == OpPurge {
			purges = append(purges, t.intent.ID)
		}
	}

	tables := make([]string, 0, len(byTable))
	for table := range byTable {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	heads = map[string]*tuple.Tuple{}
	for _, table := range tables {
		found, err := b.sess.Lookup(ctx, table, byTable[table], true)
		if err != nil {
			return nil, nil, storeerr.NewExecution(c.ID, "lookup head", err)
		}
		for id, t := range found {
			heads[id] = t
		}
	}
	dels = map[string]*tuple.Tuple{}
	if len(purges) > 0 {
		dels, err = b.sess.Lookup(ctx, c.DeleteTable(), purges, true)
		if err != nil {
			return nil, nil, storeerr.NewExecution(c.ID, "lookup deleted", err)
		}
	}
	return heads, dels, nil
}

func checkPreconditions(c *topology.Collection, targets []target, heads, dels map[string]*tuple.Tuple) error {
	for _, t := range targets {
		exp := t.intent.Expected
		if exp == nil {
			continue
		}
		old := heads[t.intent.ID]
		if old == nil && t.intent.Op == OpPurge {
			old = dels[t.intent.ID]
		}
		if old == nil {
			return storeerr.NewConflict(c.ID, t.intent.ID,
				fmt.Sprintf("expected state %s but the feature does not exist", exp))
		}
		if !old.Number.SameState(*exp) {
			return storeerr.NewConflict(c.ID, t.intent.ID,
				fmt.Sprintf("expected state %s but current state is %s", exp, old.Number))
		}
	}
	return nil
}

func (p *Plan) statement(shape Shape, table, query string) *Statement {
	key := fmt.Sprintf("%d\x00%s", shape, query)
	s, ok := p.groups[key]
	if !ok {
		s = &Statement{Shape: shape, Table: table, SQL: query}
		p.groups[key] = s
	}
	return s
}

func (b *Builder) dispatch(ctx context.Context, p *Plan, t target, head, del *tuple.Tuple) (Result, error) {
	in := t.intent
	res := Result{ID: in.ID, Op: in.Op}
	switch in.Op {
	case OpCreate:
		return b.create(ctx, p, t, res)
	case OpUpsert:
		if head == nil {
			return b.create(ctx, p, t, res)
		}
		return b.update(ctx, p, t, head, res)
	case OpUpdate:
		if head == nil {
			res.Action = ActionRetained
			return res, nil
		}
		return b.update(ctx, p, t, head, res)
	case OpDelete:
		if head == nil {
			res.Action = ActionRetained
			return res, nil
		}
		return b.remove(ctx, p, t, head, res, ActionDeleted)
	case OpPurge:
		switch {
		case head != nil:
			res, err := b.remove(ctx, p, t, head, res, ActionPurged)
			if err != nil {
				return res, err
			}
			b.purgeDeleted(p, t)
			return res, nil
		case del != nil:
			b.purgeDeleted(p, t)
			res.Action = ActionPurged
			res.Tuple = del
			res.Superseded = del.Number
			return res, nil
		default:
			res.Action = ActionRetained
			return res, nil
		}
	}
	return res, storeerr.NewIllegalArgument(p.Collection.ID, in.ID, "unknown operation "+in.Op.String())
}

func (b *Builder) baseMeta(c *topology.Collection, in *Intent) *tuple.Metadata {
	typ := in.Type
	if typ == "" {
		typ = "Feature"
	}
	return &tuple.Metadata{
		StoreNumber: c.StoreNumber(in.ID),
		ID:          in.ID,
		Flags:       c.Flags(in.ID),
		Type:        typ,
		Origin:      in.Origin,
	}
}

func withID(f *geojson.Feature, id string) *geojson.Feature {
	if f.ID != nil {
		return f
	}
	cp := *f
	cp.ID = id
	return &cp
}

func (b *Builder) create(ctx context.Context, p *Plan, t target, res Result) (Result, error) {
	c, in := p.Collection, t.intent
	d := b.sess.Dialect()
	f := withID(in.Feature, in.ID)
	meta, err := b.engine.Insert(ctx, c.ID, b.baseMeta(c, in), f, in.ReferencePoint)
	if err != nil {
		return res, err
	}
	tp, err := tuple.New(meta, in.content(f))
	if err != nil {
		return res, storeerr.NewIllegalArgument(c.ID, in.ID, err.Error())
	}
	p.statement(ShapeRemoveDeleted, c.DeleteTable(), deleteByIDSQL(d, c.DeleteTable())).
		add(in.ID, []any{in.ID})
	p.statement(ShapeInsertHead, t.head, insertSQL(d, t.head)).
		add(in.ID, store.RowArgs(tp, t.partition))
	res.Action = ActionCreated
	res.Tuple = tp
	return res, nil
}

func (b *Builder) update(ctx context.Context, p *Plan, t target, old *tuple.Tuple, res Result) (Result, error) {
	c, in := p.Collection, t.intent
	d := b.sess.Dialect()
	f := withID(in.Feature, in.ID)

	base := b.baseMeta(c, in)
	unchanged, err := b.unchanged(f, base, in, old)
	if err != nil {
		return res, storeerr.NewIllegalArgument(c.ID, in.ID, err.Error())
	}
	if unchanged {
		res.Action = ActionRetained
		res.Tuple = old
		return res, nil
	}

	meta, err := b.engine.UpdateHead(ctx, c.ID, base, f, in.ReferencePoint, old.Meta)
	if err != nil {
		return res, err
	}
	tp, err := tuple.New(meta, in.content(f))
	if err != nil {
		return res, storeerr.NewIllegalArgument(c.ID, in.ID, err.Error())
	}
	if !c.HistoryDisabled {
		p.statement(ShapeCopyToHistory, c.HistoryTable(), copyToHistorySQL(d, c.HistoryTable(), t.head)).
			add(in.ID, []any{int64(meta.Version), in.ID})
	}
	p.statement(ShapeUpdateHead, t.head, updateHeadSQL(d, t.head)).
		add(in.ID, updateHeadArgs(store.RowArgs(tp, t.partition), in.ID))
	res.Action = ActionUpdated
	res.Tuple = tp
	res.Superseded = old.Number
	if !c.HistoryDisabled {
		res.Replaced = old.Superseded(meta.Version)
	}
	return res, nil
}

// unchanged reports whether writing in over old would change nothing: same
// content hash, type, origin, reference point, tags and attachment.
func (b *Builder) unchanged(f *geojson.Feature, base *tuple.Metadata, in *Intent, old *tuple.Tuple) (bool, error) {
	if old.Meta == nil || base.Type != old.Meta.Type || base.Origin != old.Meta.Origin ||
		!bytes.Equal(in.Attachment, old.Attachment) {
		return false, nil
	}
	hash, err := b.engine.ContentHash(f)
	if err != nil {
		return false, err
	}
	if hash != old.Meta.ContentHash {
		return false, nil
	}
	oc, err := old.Decode()
	if err != nil {
		return false, err
	}
	return samePoint(in.ReferencePoint, oc.ReferencePoint) && slices.Equal(in.Tags, oc.Tags), nil
}

func samePoint(a, b *orb.Point) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (b *Builder) remove(ctx context.Context, p *Plan, t target, old *tuple.Tuple, res Result, action Action) (Result, error) {
	c, in := p.Collection, t.intent
	d := b.sess.Dialect()
	tomb, err := b.engine.TombstoneTuple(ctx, old)
	if err != nil {
		return res, err
	}
	if !c.HistoryDisabled {
		p.statement(ShapeCopyToHistory, c.HistoryTable(), copyToHistorySQL(d, c.HistoryTable(), t.head)).
			add(in.ID, []any{int64(tomb.Meta.Version), in.ID})
	}
	if !c.AutoPurge {
		p.statement(ShapeInsertDeleted, c.DeleteTable(), insertSQL(d, c.DeleteTable())).
			add(in.ID, store.RowArgs(tomb, t.partition))
	}
	p.statement(ShapeDeleteHead, t.head, deleteByIDSQL(d, t.head)).
		add(in.ID, []any{in.ID})
	if !c.HistoryDisabled {
		p.statement(ShapeInsertHistory, c.HistoryTable(), insertSQL(d, c.HistoryTable())).
			add(in.ID, store.RowArgs(tomb, t.partition))
	}
	res.Action = action
	res.Tuple = tomb
	res.Superseded = old.Number
	if !c.HistoryDisabled {
		res.Replaced = old.Superseded(tomb.Meta.Version)
	}
	return res, nil
}

func (b *Builder) purgeDeleted(p *Plan, t target) {
	c := p.Collection
	p.statement(ShapePurgeDeleted, c.DeleteTable(), deleteByIDSQL(b.sess.Dialect(), c.DeleteTable())).
		add(t.intent.ID, []any{t.intent.ID})
}

// Statements returns the statement groups in execution order.
func (p *Plan) Statements() []*Statement {
	out := make([]*Statement, 0, len(p.groups))
	for _, s := range p.groups {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Shape != out[j].Shape {
			return out[i].Shape < out[j].Shape
		}
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].SQL < out[j].SQL
	})
	return out
}

// Execute runs the plan. Any failure aborts with an *storeerr.Error naming the
// statement and the feature whose row failed.
func (p *Plan) Execute(ctx context.Context, prep Preparer) error {
	for _, s := range p.Statements() {
		if err := s.exec(ctx, prep); err != nil {
			err.Collection = p.Collection.ID
			return err
		}
	}
	return nil
}

func (s *Statement) exec(ctx context.Context, prep Preparer) *storeerr.Error {
	stmt, err := prep.PrepareContext(ctx, s.SQL)
	if err != nil {
		return storeerr.NewExecution("", "prepare "+s.Shape.String()+" "+s.Table, err)
	}
	defer stmt.Close()
	for i, args := range s.Rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			e := storeerr.NewExecution("", s.Shape.String()+" "+s.Table, err)
			e.FeatureID = s.IDs[i]
			return e
		}
	}
	return nil
}

// Changed reports whether any result changed the store.
func (p *Plan) Changed() bool {
	for _, r := range p.Results {
		if r.Action != ActionRetained {
			return true
		}
	}
	return false
}
