// Package tenants holds tenant identifier conventions shared by the store,
// the room multiplexer and the handlers.
package tenants

import "strings"

// roomPrefix namespaces per-tenant fan-out rooms.
const roomPrefix = "user:"

// RoomKey returns the multicast room key for a tenant.
func RoomKey(tenantID string) string {
	return roomPrefix + tenantID
}

// TenantFromRoom extracts the tenant id from a room key. Returns "" when the
// key is not a tenant room.
func TenantFromRoom(room string) string {
	if !strings.HasPrefix(room, roomPrefix) {
		return ""
	}
	return strings.TrimPrefix(room, roomPrefix)
}

// Valid reports whether an externally supplied tenant id is usable as a store
// partition and room key. Tenant ids are opaque upstream account ids; they
// never contain separators or whitespace.
func Valid(tenantID string) bool {
	if tenantID == "" || len(tenantID) > 64 {
		return false
	}
	return !strings.ContainsAny(tenantID, ": \t\n/")
}
