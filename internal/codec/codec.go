// Package codec encodes the payload columns of a row. Which encoding a column uses
// is recorded in the row's Flags, so rows written with different settings can be
// read side by side.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/snappy"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/ident"
)

// EncodeGeometry encodes g. A nil geometry encodes to nil.
func EncodeGeometry(g orb.Geometry, enc uint8) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	switch enc {
	case ident.GeoWKB:
		b, err := wkb.Marshal(g)
		if err != nil {
			return nil, fmt.Errorf("encode geometry: %w", err)
		}
		return b, nil
	case ident.GeoGeoJSON:
		b, err := geojson.NewGeometry(g).MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode geometry: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("encode geometry: unknown encoding %d", enc)
	}
}

// DecodeGeometry reverses EncodeGeometry. Nil input decodes to a nil geometry.
func DecodeGeometry(b []byte, enc uint8) (orb.Geometry, error) {
	if b == nil {
		return nil, nil
	}
	switch enc {
	case ident.GeoWKB:
		g, err := wkb.Unmarshal(b)
		if err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}
		return g, nil
	case ident.GeoGeoJSON:
		g, err := geojson.UnmarshalGeometry(b)
		if err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}
		return g.Geometry(), nil
	default:
		return nil, fmt.Errorf("decode geometry: unknown encoding %d", enc)
	}
}

// EncodeFeature encodes the feature document without its geometry; the geometry
// lives in its own column.
func EncodeFeature(f *geojson.Feature, enc uint8) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	stripped := *f
	stripped.Geometry = nil
	b, err := json.Marshal(&stripped)
	if err != nil {
		return nil, fmt.Errorf("encode feature: %w", err)
	}
	switch enc {
	case ident.FeatureJSON:
		return b, nil
	case ident.FeatureJSONSnappy:
		return snappy.Encode(nil, b), nil
	default:
		return nil, fmt.Errorf("encode feature: unknown encoding %d", enc)
	}
}

// DecodeFeature reverses EncodeFeature. The returned feature has no geometry.
func DecodeFeature(b []byte, enc uint8) (*geojson.Feature, error) {
	if b == nil {
		return nil, nil
	}
	switch enc {
	case ident.FeatureJSON:
	case ident.FeatureJSONSnappy:
		raw, err := snappy.Decode(nil, b)
		if err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}
		b = raw
	default:
		return nil, fmt.Errorf("decode feature: unknown encoding %d", enc)
	}
	f, err := geojson.UnmarshalFeature(b)
	if err != nil {
		return nil, fmt.Errorf("decode feature: %w", err)
	}
	return f, nil
}

// EncodeTags encodes a tag list. A nil list encodes to nil.
func EncodeTags(tags []string, enc uint8) ([]byte, error) {
	if tags == nil {
		return nil, nil
	}
	var (
		b   []byte
		err error
	)
	switch enc {
	case ident.TagsJSON:
		b, err = json.Marshal(tags)
	case ident.TagsCBOR:
		b, err = cbor.Marshal(tags)
	default:
		return nil, fmt.Errorf("encode tags: unknown encoding %d", enc)
	}
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	return b, nil
}

// DecodeTags reverses EncodeTags.
func DecodeTags(b []byte, enc uint8) ([]string, error) {
	if b == nil {
		return nil, nil
	}
	var (
		tags []string
		err  error
	)
	switch enc {
	case ident.TagsJSON:
		err = json.Unmarshal(b, &tags)
	case ident.TagsCBOR:
		err = cbor.Unmarshal(b, &tags)
	default:
		return nil, fmt.Errorf("decode tags: unknown encoding %d", enc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}
