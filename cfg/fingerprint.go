package cfg

import (
	"github.com/minio/highwayhash"
)

var fingerprintKey = []byte("0123456789ABCDEF0123456789ABCDEF")

// Fingerprint returns a stable 64-bit hash of the graph's canonical JSON
// encoding. Two graphs with identical structure hash identically, which
// makes the fingerprint usable as a cache or visited-table key.
func (g *Graph) Fingerprint() (uint64, error) {
	data, err := g.MarshalJSON()
	if err != nil {
		return 0, err
	}
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		return 0, err
	}
	if _, err := h.Write(data); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
