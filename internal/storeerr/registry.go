package storeerr

import "sync"

// Extractor pulls a storage-native code out of a driver error, e.g. "sqlite:1555"
// or "postgres:23505". It returns false when err is not one of its driver's errors.
type Extractor func(err error) (string, bool)

var (
	registryMu sync.RWMutex
	codes      = map[string]Code{}
	extractors []Extractor
)

// RegisterStorageCode maps a storage-native code to a write error code.
// Back ends call it from init.
func RegisterStorageCode(native string, code Code) {
	registryMu.Lock()
	defer registryMu.Unlock()
	codes[native] = code
}

// RegisterExtractor adds a driver error extractor.
func RegisterExtractor(fn Extractor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	extractors = append(extractors, fn)
}

// Translate returns the registered code of err's storage-native code.
func Translate(err error) (Code, bool) {
	if err == nil {
		return "", false
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, extract := range extractors {
		native, ok := extract(err)
		if !ok {
			continue
		}
		if code, ok := codes[native]; ok {
			return code, true
		}
	}
	return "", false
}
