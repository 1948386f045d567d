// Package idgen generates lexicographically sortable identifiers for
// aggregates, so id-paginated listings roughly follow creation order.
package idgen

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// MustGenerateSortableID returns a new ULID string. Panics only if the
// system entropy source fails.
func MustGenerateSortableID() string {
	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		panic(err)
	}
	return id.String()
}
