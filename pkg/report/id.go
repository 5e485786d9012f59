package report

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"phantomqa/internal/models"
)

// namespace scopes the name-based report IDs
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("phantomqa:report"))

// Fingerprint hashes the pixel data and geometry of every slice plus any extra inputs
// (the serialized configuration) into a single digest
func Fingerprint(slices []models.SliceImage, extra ...[]byte) uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		d.Write(buf[:])
	}
	for _, s := range slices {
		put(uint64(s.Index))
		put(uint64(s.Width))
		put(uint64(s.Height))
		put(math.Float64bits(s.PixelSpacing.X))
		put(math.Float64bits(s.PixelSpacing.Y))
		for _, v := range s.Pixels {
			put(math.Float64bits(v))
		}
	}
	for _, b := range extra {
		put(uint64(len(b)))
		d.Write(b)
	}
	return d.Sum64()
}

// NewID derives the report ID from an input fingerprint. Identical inputs give identical IDs.
func NewID(fingerprint uint64) uuid.UUID {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], fingerprint)
	return uuid.NewSHA1(namespace, b[:])
}
