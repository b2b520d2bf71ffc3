package tuple

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/canonical"
)

// NamespaceKey is the property holding volatile store metadata. It never takes
// part in the content hash.
const NamespaceKey = "@ns:geostore"

// DomainFeature separates feature content hashes from any other SHA-256 use.
const DomainFeature = "geostore/feature/v1"

// ExcludeFunc reports whether the value at path (object keys from the feature
// root, e.g. ["properties", "lastSeen"]) is left out of the content hash.
type ExcludeFunc func(path []string) bool

// ContentHash computes the change-detection hash of a feature: SHA-256 over the
// RFC 8785 canonical JSON of the feature with the namespace property, every path
// in excludePaths and every path accepted by excludeFn removed. The first eight
// bytes of the digest form the result.
func ContentHash(f *geojson.Feature, excludePaths [][]string, excludeFn ExcludeFunc) (int64, error) {
	if f == nil {
		return 0, nil
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("content hash: %w", err)
	}
	doc, err := canonical.Decode(raw)
	if err != nil {
		return 0, fmt.Errorf("content hash: %w", err)
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("content hash: feature is not an object")
	}

	removePath(root, []string{"properties", NamespaceKey})
	for _, p := range excludePaths {
		removePath(root, p)
	}
	if excludeFn != nil {
		prune(root, nil, excludeFn)
	}

	data, err := canonical.Marshal(root)
	if err != nil {
		return 0, fmt.Errorf("content hash: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainFeature))
	h.Write([]byte{0x00})
	h.Write(data)
	return int64(binary.BigEndian.Uint64(h.Sum(nil)[:8])), nil
}

func removePath(obj map[string]any, path []string) {
	if len(path) == 0 {
		return
	}
	for _, key := range path[:len(path)-1] {
		next, ok := obj[key].(map[string]any)
		if !ok {
			return
		}
		obj = next
	}
	delete(obj, path[len(path)-1])
}

func prune(obj map[string]any, prefix []string, fn ExcludeFunc) {
	for key, val := range obj {
		path := append(append([]string(nil), prefix...), key)
		if fn(path) {
			delete(obj, key)
			continue
		}
		if child, ok := val.(map[string]any); ok {
			prune(child, path, fn)
		}
	}
}
