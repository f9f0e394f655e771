package spanz

import "strconv"

// ID identifies a span within a Store.
// ID n always addresses slot n-1; the zero ID never names a live span.
type ID uint64

// InvalidID is returned when a span could not be stored.
const InvalidID ID = 0

// IsValid reports whether id can refer to a live span.
func (id ID) IsValid() bool {
	return id != InvalidID
}

// String returns the decimal form of the ID.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func idxToID(idx uint64) ID {
	return ID(idx + 1)
}

func idToIdx(id ID) uint64 {
	return uint64(id) - 1
}
