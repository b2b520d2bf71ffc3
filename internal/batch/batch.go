// Package batch reads write requests from YAML.
//
//	author: alice
//	collection: roads          # default for features without one
//	collections:
//	  - op: create
//	    id: parks
//	    partitions: 4
//	features:
//	  - op: upsert
//	    id: a1
//	    feature: {type: Feature, geometry: {type: Point, coordinates: [13.4, 52.5]}, properties: {}}
//	    tags: [bridge]
//	    expected: "<tuple number>"
//
// Collection entries take the same keys as collections in the configuration
// file.
package batch

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/geostore/internal/config"
	"github.com/roach88/geostore/internal/ident"
	"github.com/roach88/geostore/internal/writeplan"
	"github.com/roach88/geostore/internal/writer"
)

// File is the YAML form of a batch.
type File struct {
	Author      string     `yaml:"author,omitempty"`
	AppID       string     `yaml:"app_id,omitempty"`
	Collection  string     `yaml:"collection,omitempty"`
	Collections []Mutation `yaml:"collections,omitempty"`
	Features    []Feature  `yaml:"features,omitempty"`
}

// Mutation is a collection entry of a batch.
type Mutation struct {
	Op                      string `yaml:"op"`
	config.CollectionConfig `yaml:",inline"`
}

// Feature is a feature entry of a batch.
type Feature struct {
	Collection     string             `yaml:"collection,omitempty"`
	Op             string             `yaml:"op"`
	ID             string             `yaml:"id"`
	Type           string             `yaml:"type,omitempty"`
	Origin         string             `yaml:"origin,omitempty"`
	Feature        map[string]any     `yaml:"feature,omitempty"`
	ReferencePoint []float64          `yaml:"reference_point,omitempty"`
	Tags           []string           `yaml:"tags,omitempty"`
	Attachment     string             `yaml:"attachment,omitempty"`
	Expected       *ident.TupleNumber `yaml:"expected,omitempty"`
}

// Batch is a parsed batch.
type Batch struct {
	Author  string
	AppID   string
	Request writer.Request
}

// Load reads a batch file.
func Load(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return Parse(data)
}

// Parse decodes the YAML form of a batch.
func Parse(data []byte) (*Batch, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse batch: %w", err)
	}
	return f.Batch()
}

// Batch converts f into a write request.
func (f *File) Batch() (*Batch, error) {
	b := &Batch{Author: f.Author, AppID: f.AppID}

	for i, m := range f.Collections {
		op, err := writer.ParseCollectionOp(m.Op)
		if err != nil {
			return nil, fmt.Errorf("collections[%d]: %w", i, err)
		}
		def, err := m.Collection()
		if err != nil {
			return nil, fmt.Errorf("collections[%d]: %w", i, err)
		}
		b.Request.Collections = append(b.Request.Collections, writer.CollectionMutation{Op: op, Collection: def})
	}

	for i := range f.Features {
		w, err := f.Features[i].write(f.Collection)
		if err != nil {
			return nil, fmt.Errorf("features[%d]: %w", i, err)
		}
		b.Request.Features = append(b.Request.Features, w)
	}
	return b, nil
}

func (f *Feature) write(defaultCollection string) (writer.FeatureWrite, error) {
	w := writer.FeatureWrite{Collection: f.Collection}
	if w.Collection == "" {
		w.Collection = defaultCollection
	}
	if w.Collection == "" {
		return w, fmt.Errorf("feature %q has no collection", f.ID)
	}
	op, err := writeplan.ParseOp(f.Op)
	if err != nil {
		return w, err
	}
	w.Intent = writeplan.Intent{
		Op:       op,
		ID:       f.ID,
		Type:     f.Type,
		Origin:   f.Origin,
		Tags:     f.Tags,
		Expected: f.Expected,
	}
	if f.Attachment != "" {
		w.Attachment = []byte(f.Attachment)
	}
	switch len(f.ReferencePoint) {
	case 0:
	case 2:
		w.ReferencePoint = &orb.Point{f.ReferencePoint[0], f.ReferencePoint[1]}
	default:
		return w, fmt.Errorf("feature %q: reference_point needs two coordinates", f.ID)
	}
	if f.Feature != nil {
		doc := make(map[string]any, len(f.Feature)+1)
		for k, v := range f.Feature {
			doc[k] = v
		}
		if _, ok := doc["type"]; !ok {
			doc["type"] = "Feature"
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return w, fmt.Errorf("feature %q: %w", f.ID, err)
		}
		if w.Feature, err = geojson.UnmarshalFeature(raw); err != nil {
			return w, fmt.Errorf("feature %q: %w", f.ID, err)
		}
	}
	return w, nil
}
