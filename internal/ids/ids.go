// Package ids generates deterministic identifiers for stored chunks.
// The same project, file path, and chunk index always produce the same
// identifier, which makes reindexing an upsert instead of a duplication:
// unchanged content overwrites itself.
package ids

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// namespace is fixed so identifiers stay stable across processes and
// machines. Changing it would orphan every previously stored entry.
var namespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("synapstor.casheiro.com"))

// New returns the identifier for one chunk of one file within a project.
// It is a UUID v5 over the scope key "project:absPath:chunkIndex", rendered
// in canonical hyphenated lowercase form, which is the id shape vector
// stores accept.
func New(project, absPath string, chunkIndex int) string {
	key := fmt.Sprintf("%s:%s:%d", project, absPath, chunkIndex)
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

// Numeric maps an identifier into the unsigned integer domain, for
// backends keyed by integers rather than UUIDs. The first sixteen hex
// digits of the identifier are read as a big-endian uint64.
func Numeric(id string) (uint64, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return 0, synerrors.InternalError(
			fmt.Sprintf("cannot derive numeric id from %q", id), err)
	}
	return binary.BigEndian.Uint64(parsed[:8]), nil
}
