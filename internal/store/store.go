// Package store persists typed records addressed by (partition, row).
//
// Two interchangeable adapters exist: a Postgres-backed table for hosted
// deployments and a file-backed mirror for local ones. Partitions isolate
// tenants; the row layout is:
//
//	partition "user", row <tenantId>                 — tenant record
//	partition "user", row "credentials:"<tenantId>   — credential tuple
//	partition <tenantId>, row "counters"             — counter record
//	partition <tenantId>, row "series:"<seriesId>    — series snapshot
//	partition <tenantId>, row "alerts:"<alertId>     — alert definition
//	partition <tenantId>, row "event-mappings"       — event-to-alert mapping
package store

import (
	"context"

	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// PartitionUser holds tenant records and credentials.
const PartitionUser = "user"

// Row keys and prefixes inside a tenant partition.
const (
	RowCounters      = "counters"
	RowEventMappings = "event-mappings"

	CredentialsPrefix = "credentials:"
	SeriesPrefix      = "series:"
	AlertsPrefix      = "alerts:"
)

// Store is the persistence contract the core consumes. Upsert replaces the
// whole document atomically per (partition, row); no multi-row transactions
// are assumed.
type Store interface {
	Get(ctx context.Context, partition, row string) (models.Record, error)
	Upsert(ctx context.Context, rec models.Record) error
	List(ctx context.Context, partition string) ([]models.Record, error)
	Delete(ctx context.Context, partition, row string) error
	Close() error
}
