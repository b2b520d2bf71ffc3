// Package config loads the geostore configuration file.
//
// The file is YAML. It is checked against an embedded CUE schema before it is
// decoded, so unknown keys and out-of-range values are reported with their path.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/geostore/internal/cache"
	"github.com/roach88/geostore/internal/ident"
	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/topology"
)

//go:embed schema.cue
var schemaSource string

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the content of a configuration file.
type Config struct {
	Driver           string             `yaml:"driver"`
	DSN              string             `yaml:"dsn"`
	StorageID        string             `yaml:"storage_id,omitempty"`
	AppID            string             `yaml:"app_id,omitempty"`
	Author           string             `yaml:"author,omitempty"`
	StatementTimeout Duration           `yaml:"statement_timeout,omitempty"`
	LockTimeout      Duration           `yaml:"lock_timeout,omitempty"`
	Cache            CacheConfig        `yaml:"cache,omitempty"`
	CollectionCache  CollectionCache    `yaml:"collection_cache,omitempty"`
	HashExclude      []string           `yaml:"hash_exclude,omitempty"`
	Collections      []CollectionConfig `yaml:"collections,omitempty"`
}

type CacheConfig struct {
	MaxEntries int      `yaml:"max_entries,omitempty"`
	TTL        Duration `yaml:"ttl,omitempty"`
}

type CollectionCache struct {
	Size int      `yaml:"size,omitempty"`
	TTL  Duration `yaml:"ttl,omitempty"`
}

// CollectionConfig describes a collection by name; encodings are spelled out.
type CollectionConfig struct {
	ID               string `yaml:"id"`
	Map              uint16 `yaml:"map,omitempty"`
	Partitions       int    `yaml:"partitions,omitempty"`
	HistoryDisabled  bool   `yaml:"history_disabled,omitempty"`
	AutoPurge        bool   `yaml:"auto_purge,omitempty"`
	GeometryEncoding string `yaml:"geometry_encoding,omitempty"`
	FeatureEncoding  string `yaml:"feature_encoding,omitempty"`
	TagsEncoding     string `yaml:"tags_encoding,omitempty"`
}

var (
	geometryEncodings = map[string]uint8{"": ident.GeoWKB, "wkb": ident.GeoWKB, "geojson": ident.GeoGeoJSON}
	featureEncodings  = map[string]uint8{"": ident.FeatureJSON, "json": ident.FeatureJSON, "json+snappy": ident.FeatureJSONSnappy}
	tagsEncodings     = map[string]uint8{"": ident.TagsJSON, "json": ident.TagsJSON, "cbor": ident.TagsCBOR}
)

// Collection converts c into a collection definition.
func (c CollectionConfig) Collection() (topology.Collection, error) {
	out := topology.Collection{
		ID:              c.ID,
		MapNumber:       c.Map,
		Partitions:      c.Partitions,
		HistoryDisabled: c.HistoryDisabled,
		AutoPurge:       c.AutoPurge,
	}
	if out.Partitions == 0 {
		out.Partitions = 1
	}
	var ok bool
	if out.GeometryEncoding, ok = geometryEncodings[c.GeometryEncoding]; !ok {
		return out, fmt.Errorf("collection %s: unknown geometry encoding %q", c.ID, c.GeometryEncoding)
	}
	if out.FeatureEncoding, ok = featureEncodings[c.FeatureEncoding]; !ok {
		return out, fmt.Errorf("collection %s: unknown feature encoding %q", c.ID, c.FeatureEncoding)
	}
	if out.TagsEncoding, ok = tagsEncodings[c.TagsEncoding]; !ok {
		return out, fmt.Errorf("collection %s: unknown tags encoding %q", c.ID, c.TagsEncoding)
	}
	return out, out.Validate()
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data against the schema and decodes it.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	for _, c := range cfg.Collections {
		if _, err := c.Collection(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

func validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", formatCUEError(err))
	}
	return nil
}

// formatCUEError joins the messages of all errors in err, each with its path.
func formatCUEError(err error) string {
	var msgs []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path := e.Path(); len(path) > 0 {
			msg = strings.Join(path, ".") + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

// StoreOptions returns the store options the configuration selects.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		StorageID:        c.StorageID,
		AppID:            c.AppID,
		Author:           c.Author,
		StatementTimeout: time.Duration(c.StatementTimeout),
		LockTimeout:      time.Duration(c.LockTimeout),
		Cache: cache.New(cache.Options{
			MaxEntries: c.Cache.MaxEntries,
			TTL:        time.Duration(c.Cache.TTL),
		}),
		CollectionCacheSize: c.CollectionCache.Size,
		CollectionCacheTTL:  time.Duration(c.CollectionCache.TTL),
	}
}

// HashExcludePaths splits the dotted hash_exclude entries into paths.
func (c *Config) HashExcludePaths() [][]string {
	out := make([][]string, 0, len(c.HashExclude))
	for _, p := range c.HashExclude {
		out = append(out, strings.Split(p, "."))
	}
	return out
}

// CollectionDefinitions converts the configured collections.
func (c *Config) CollectionDefinitions() ([]topology.Collection, error) {
	out := make([]topology.Collection, 0, len(c.Collections))
	for _, cc := range c.Collections {
		col, err := cc.Collection()
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, nil
}
