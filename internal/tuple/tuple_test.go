package tuple

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geostore/internal/ident"
)

func testMeta(id string) *Metadata {
	return &Metadata{
		StoreNumber: ident.MustStoreNumber(1, 10, ident.PartitionNumber(id)),
		Version:     ident.VersionOf(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), 1),
		UID:         4,
		ChangeCount: 1,
		ID:          id,
		Author:      "alice",
	}
}

func TestMetadata_EqualIgnoresNextVersion(t *testing.T) {
	a := testMeta("f1")
	b := *a
	b.NextVersion = a.Version + 1

	assert.True(t, a.Equal(&b))

	b.Author = "bob"
	assert.False(t, a.Equal(&b))

	var nilMeta *Metadata
	assert.True(t, nilMeta.Equal(nil))
	assert.False(t, a.Equal(nil))
}

func TestMetadata_TupleNumber(t *testing.T) {
	m := testMeta("f1")
	tn := m.TupleNumber()
	assert.Equal(t, m.StoreNumber, tn.Store)
	assert.Equal(t, m.Version, tn.Version)
	assert.Equal(t, m.UID, tn.UID)
}

func TestTuple_NewAndDecode(t *testing.T) {
	f := geojson.NewFeature(orb.Point{8.68, 50.11})
	f.ID = "f1"
	f.Properties["name"] = "Zeil"
	ref := orb.Point{8.6, 50.1}

	m := testMeta("f1")
	m.Flags = m.Flags.WithFeatureEncoding(ident.FeatureJSONSnappy).WithTagsEncoding(ident.TagsCBOR)
	tp, err := New(m, Content{Feature: f, ReferencePoint: &ref, Tags: []string{"poi"}, Attachment: []byte{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, PartsAll, tp.Parts)
	assert.Equal(t, m.TupleNumber(), tp.Number)
	assert.Greater(t, tp.Size(), 0)

	c, err := tp.Decode()
	require.NoError(t, err)
	assert.Equal(t, "Zeil", c.Feature.Properties["name"])
	assert.Equal(t, orb.Point{8.68, 50.11}, c.Feature.Geometry)
	require.NotNil(t, c.ReferencePoint)
	assert.Equal(t, ref, *c.ReferencePoint)
	assert.Equal(t, []string{"poi"}, c.Tags)
	assert.Equal(t, []byte{1, 2}, c.Attachment)
}

func TestTuple_DecodeWithoutMetadata(t *testing.T) {
	_, err := (&Tuple{}).Decode()
	assert.Error(t, err)
}

func TestTuple_MergeFillsGapsOnly(t *testing.T) {
	m := testMeta("f1")
	a := &Tuple{Number: m.TupleNumber(), Feature: []byte("A"), Parts: PartFeature}
	b := &Tuple{Number: m.TupleNumber(), Meta: m, Feature: []byte("B"), Tags: []byte("T"), Parts: PartFeature | PartTags}

	merged := a.Merge(b)
	require.NotSame(t, a, merged)
	assert.Equal(t, []byte("A"), merged.Feature, "present parts never change")
	assert.Equal(t, []byte("T"), merged.Tags)
	assert.Same(t, m, merged.Meta)
	assert.True(t, merged.Has(PartFeature|PartTags))
	assert.False(t, merged.Has(PartGeometry))

	assert.Nil(t, a.Meta, "merge does not modify its receiver")
	assert.False(t, a.Has(PartTags))
}

func TestTuple_MergeNoGapsReturnsReceiver(t *testing.T) {
	m := testMeta("f1")
	full := &Tuple{Number: m.TupleNumber(), Meta: m, Parts: PartsAll}
	partial := &Tuple{Number: m.TupleNumber(), Feature: []byte("x"), Parts: PartFeature}

	assert.Same(t, full, full.Merge(partial))
	assert.Same(t, full, full.Merge(nil))
	assert.Same(t, full, full.Merge(full))
}

func TestTuple_MergeIgnoresOtherState(t *testing.T) {
	m := testMeta("f1")
	other := *m
	other.UID++
	a := &Tuple{Number: m.TupleNumber()}
	b := &Tuple{Number: other.TupleNumber(), Meta: &other, Parts: PartsAll}

	assert.Same(t, a, a.Merge(b))
}

func TestTuple_MergeDisjointHasNoNullWhereEitherHadValue(t *testing.T) {
	m := testMeta("f1")
	a := &Tuple{Number: m.TupleNumber(), Meta: m, Feature: []byte("F"), Geometry: []byte("G"), Parts: PartFeature | PartGeometry}
	b := &Tuple{Number: m.TupleNumber(), ReferencePoint: []byte("R"), Tags: []byte("T"), Attachment: []byte("X"),
		Parts: PartReferencePoint | PartTags | PartAttachment}

	for _, merged := range []*Tuple{a.Merge(b), b.Merge(a)} {
		assert.Equal(t, PartsAll, merged.Parts)
		assert.NotNil(t, merged.Meta)
		assert.Equal(t, []byte("F"), merged.Feature)
		assert.Equal(t, []byte("G"), merged.Geometry)
		assert.Equal(t, []byte("R"), merged.ReferencePoint)
		assert.Equal(t, []byte("T"), merged.Tags)
		assert.Equal(t, []byte("X"), merged.Attachment)
	}
}

func TestTuple_Superseded(t *testing.T) {
	m := testMeta("f1")
	tp := &Tuple{Number: m.TupleNumber(), Meta: m}

	next := m.Version + 5
	s := tp.Superseded(next)
	assert.Equal(t, next, s.Meta.NextVersion)
	assert.True(t, s.Meta.Equal(tp.Meta))
	assert.True(t, tp.Meta.NextVersion.IsZero(), "original stays untouched")
}
