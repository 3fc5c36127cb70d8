// Package cache memoizes inference results keyed by model and input
// digest. Opt-in: the executor only consults it when wired.
package cache

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"sync"

	"lukechampine.com/blake3"
)

// ResultCache is a cache of run outputs per model.
type ResultCache interface {
	// Get retrieves cached outputs for an input digest.
	Get(modelID, key string) (map[string][]float64, bool)
	// Put stores outputs for an input digest.
	Put(modelID, key string, outputs map[string][]float64)
	// Invalidate drops every entry for the model. Called on dispose.
	Invalidate(modelID string)
	// Size returns the number of cached results across all models.
	Size() int
}

// Key derives a stable digest for an input map: names in sorted order,
// values as raw float64 bits. Collisions are as unlikely as blake3 allows.
func Key(inputs map[string][]float64) string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	h := blake3.New(32, nil)
	var scratch [8]byte
	for _, name := range names {
		_, _ = h.Write([]byte(name))
		_, _ = h.Write([]byte{0})
		for _, v := range inputs[name] {
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
			_, _ = h.Write(scratch[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MapCache is a simple in-memory implementation of ResultCache.
type MapCache struct {
	mu   sync.RWMutex
	data map[string]map[string]map[string][]float64 // modelID -> key -> outputs
}

func NewMapCache() *MapCache {
	return &MapCache{
		data: make(map[string]map[string]map[string][]float64),
	}
}

func (c *MapCache) Get(modelID, key string) (map[string][]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	outputs, ok := c.data[modelID][key]
	if !ok {
		return nil, false
	}
	// Return a copy to keep cached values immutable.
	return copyOutputs(outputs), true
}

func (c *MapCache) Put(modelID, key string, outputs map[string][]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byKey, ok := c.data[modelID]
	if !ok {
		byKey = make(map[string]map[string][]float64)
		c.data[modelID] = byKey
	}
	// Store a copy
	byKey[key] = copyOutputs(outputs)
}

func (c *MapCache) Invalidate(modelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, modelID)
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, byKey := range c.data {
		n += len(byKey)
	}
	return n
}

func copyOutputs(outputs map[string][]float64) map[string][]float64 {
	dst := make(map[string][]float64, len(outputs))
	for name, seq := range outputs {
		cp := make([]float64, len(seq))
		copy(cp, seq)
		dst[name] = cp
	}
	return dst
}
