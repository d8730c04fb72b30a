// Package cache implements the result cache: a combined byte-size,
// entry-count, and TTL-bounded LRU, fed by a fingerprint of the query
// parameters and an admission policy deciding what's worth keeping.
package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"sensorquery/internal/model"
)

// Fingerprint returns a stable cache key for q: sorted, deduplicated
// sensors and assets so parameter order never affects identity, RFC3339Nano
// timestamps, and the remaining scalar fields, hashed with xxhash for
// speed — the fingerprint is an identity key, not a security boundary, so
// a non-cryptographic hash is the right tool.
func Fingerprint(q *model.Query) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(q.NormalizedSensors(), ","))
	sb.WriteByte('|')
	if assets := q.NormalizedAssets(); assets != nil {
		sb.WriteString(strings.Join(assets, ","))
	}
	sb.WriteByte('|')
	sb.WriteString(q.Start.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"))
	sb.WriteByte('|')
	sb.WriteString(q.End.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"))
	sb.WriteByte('|')
	fmt.Fprintf(&sb, "%d|%s|%d", q.IntervalMS, q.Aggregation, q.MaxDatapoints)

	sum := xxhash.Sum64String(sb.String())
	return strconv.FormatUint(sum, 16)
}
