package store

import (
	"fmt"
	"time"
)

// indexSep separates an index value from the record ID in multi-value index
// keys. IDs and values never contain a NUL byte.
const indexSep = '\x00'

// buildKey constructs a primary key from prefix and id.
func buildKey(prefix, id string) []byte {
	buf := make([]byte, 0, len(prefix)+len(id))
	buf = append(buf, prefix...)
	buf = append(buf, id...)
	return buf
}

// indexPrefix is the key prefix shared by every entry of one index.
func indexPrefix(prefix, indexName string) []byte {
	buf := make([]byte, 0, len(prefix)+len(indexName)+5)
	buf = append(buf, prefix...)
	buf = append(buf, "idx:"...)
	buf = append(buf, indexName...)
	buf = append(buf, ':')
	return buf
}

// buildUniqueIndexKey is prefix + "idx:" + name + ":" + value.
func buildUniqueIndexKey(prefix, indexName, value string) []byte {
	return append(indexPrefix(prefix, indexName), value...)
}

// buildMultiIndexKey is the unique form followed by NUL and the record ID, so
// many records can share one value and a prefix scan on value+NUL finds them.
func buildMultiIndexKey(prefix, indexName, value, id string) []byte {
	buf := buildUniqueIndexKey(prefix, indexName, value)
	buf = append(buf, indexSep)
	return append(buf, id...)
}

// multiIndexValuePrefix is the scan prefix for all records sharing value.
func multiIndexValuePrefix(prefix, indexName, value string) []byte {
	return append(buildUniqueIndexKey(prefix, indexName, value), indexSep)
}

// sortableTime formats t with fixed-width nanoseconds so lexicographic order
// matches chronological order.
func sortableTime(t time.Time) string {
	t = t.UTC()
	return t.Format("2006-01-02T15:04:05") + fmt.Sprintf(".%09d", t.Nanosecond()) + "Z"
}
