package cache

import (
	"fmt"
	"hash/fnv"
	"strconv"
)

// Key layout: <prefix>:entity:<type>:<id>, <prefix>:type:<type>,
// <prefix>:query:<hash>. Invalidation relies on these shapes, so all
// writers go through the helpers below.

func (m *Manager) EntityKey(typeCode string, entityID int64) string {
	return m.prefix + ":entity:" + typeCode + ":" + strconv.FormatInt(entityID, 10)
}

func (m *Manager) TypeKey(typeCode string) string {
	return m.prefix + ":type:" + typeCode
}

func (m *Manager) QueryKey(hash string) string {
	return m.prefix + ":query:" + hash
}

// HashQuery derives a stable cache hash from a query's identifying parts
// (entity type, filters, sorts, paging).
func HashQuery(parts ...any) string {
	h := fnv.New64a()
	for _, p := range parts {
		fmt.Fprintf(h, "%v|", p)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
