package tuple

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/codec"
	"github.com/roach88/geostore/internal/ident"
)

// Part is a bit in the Parts mask of a Tuple.
type Part uint8

const (
	PartFeature Part = 1 << iota
	PartGeometry
	PartReferencePoint
	PartTags
	PartAttachment

	PartsAll = PartFeature | PartGeometry | PartReferencePoint | PartTags | PartAttachment
)

// Tuple is one state of one feature. A nil byte slice with its Part bit set means
// the part was loaded and is empty; without the bit it was not loaded.
type Tuple struct {
	Number         ident.TupleNumber
	Meta           *Metadata
	Feature        []byte
	Geometry       []byte
	ReferencePoint []byte
	Tags           []byte
	Attachment     []byte
	Parts          Part
}

// Content is the decoded payload of a tuple.
type Content struct {
	Feature        *geojson.Feature
	ReferencePoint *orb.Point
	Tags           []string
	Attachment     []byte
}

// New encodes c according to meta.Flags into a fully loaded tuple.
// The geometry is taken from c.Feature.
func New(meta *Metadata, c Content) (*Tuple, error) {
	t := &Tuple{Number: meta.TupleNumber(), Meta: meta, Parts: PartsAll, Attachment: c.Attachment}
	var err error
	if c.Feature != nil {
		if t.Feature, err = codec.EncodeFeature(c.Feature, meta.Flags.FeatureEncoding()); err != nil {
			return nil, err
		}
		if t.Geometry, err = codec.EncodeGeometry(c.Feature.Geometry, meta.Flags.GeometryEncoding()); err != nil {
			return nil, err
		}
	}
	if c.ReferencePoint != nil {
		if t.ReferencePoint, err = codec.EncodeGeometry(*c.ReferencePoint, meta.Flags.GeometryEncoding()); err != nil {
			return nil, err
		}
	}
	if t.Tags, err = codec.EncodeTags(c.Tags, meta.Flags.TagsEncoding()); err != nil {
		return nil, err
	}
	return t, nil
}

// Decode returns the decoded payload. Parts that were not loaded stay empty.
func (t *Tuple) Decode() (Content, error) {
	if t.Meta == nil {
		return Content{}, fmt.Errorf("decode tuple %s: metadata not loaded", t.Number)
	}
	flags := t.Meta.Flags
	var c Content
	f, err := codec.DecodeFeature(t.Feature, flags.FeatureEncoding())
	if err != nil {
		return Content{}, err
	}
	g, err := codec.DecodeGeometry(t.Geometry, flags.GeometryEncoding())
	if err != nil {
		return Content{}, err
	}
	if f == nil && g != nil {
		f = geojson.NewFeature(nil)
		f.ID = t.Meta.ID
	}
	if f != nil {
		f.Geometry = g
	}
	c.Feature = f
	ref, err := codec.DecodeGeometry(t.ReferencePoint, flags.GeometryEncoding())
	if err != nil {
		return Content{}, err
	}
	if p, ok := ref.(orb.Point); ok {
		c.ReferencePoint = &p
	}
	if c.Tags, err = codec.DecodeTags(t.Tags, flags.TagsEncoding()); err != nil {
		return Content{}, err
	}
	c.Attachment = t.Attachment
	return c, nil
}

func (t *Tuple) Has(p Part) bool {
	return t.Parts&p == p
}

// Size is the number of payload bytes held by the tuple.
func (t *Tuple) Size() int {
	return len(t.Feature) + len(t.Geometry) + len(t.ReferencePoint) + len(t.Tags) + len(t.Attachment)
}

// Merge fills the parts t lacks from o. Parts present in t never change. When
// nothing can be filled, or o describes another state, Merge returns t itself so
// callers can detect "no change" by identity.
func (t *Tuple) Merge(o *Tuple) *Tuple {
	if o == nil || o == t || !t.Number.SameState(o.Number) {
		return t
	}
	fillMeta := t.Meta == nil && o.Meta != nil
	missing := o.Parts &^ t.Parts
	if !fillMeta && missing == 0 {
		return t
	}
	merged := *t
	if fillMeta {
		merged.Meta = o.Meta
	}
	if missing&PartFeature != 0 {
		merged.Feature = o.Feature
	}
	if missing&PartGeometry != 0 {
		merged.Geometry = o.Geometry
	}
	if missing&PartReferencePoint != 0 {
		merged.ReferencePoint = o.ReferencePoint
	}
	if missing&PartTags != 0 {
		merged.Tags = o.Tags
	}
	if missing&PartAttachment != 0 {
		merged.Attachment = o.Attachment
	}
	merged.Parts |= missing
	return &merged
}

// Superseded returns a copy of t whose metadata carries next as NextVersion.
func (t *Tuple) Superseded(next ident.Version) *Tuple {
	c := *t
	if t.Meta != nil {
		m := *t.Meta
		m.NextVersion = next
		c.Meta = &m
	}
	return &c
}
