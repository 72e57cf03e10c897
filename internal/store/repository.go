package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KainCH/omniasylum-sub001/pkg/crypto"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// Repository exposes the typed records the core consumes. It is the single
// place that knows how documents are encoded into store rows, including the
// at-rest encryption of OAuth tokens.
type Repository struct {
	store     Store
	encryptor *crypto.FieldEncryptor
}

// NewRepository wraps a store. The encryptor may be nil, in which case tokens
// are stored in plaintext (tests only).
func NewRepository(s Store, enc *crypto.FieldEncryptor) *Repository {
	return &Repository{store: s, encryptor: enc}
}

// Store exposes the underlying raw store for health checks.
func (r *Repository) Store() Store { return r.store }

// --- tenants ---

func (r *Repository) GetTenant(ctx context.Context, tenantID string) (models.Tenant, error) {
	rec, err := r.store.Get(ctx, PartitionUser, tenantID)
	if err != nil {
		return models.Tenant{}, err
	}
	var t models.Tenant
	if err := rec.Decode(&t); err != nil {
		return models.Tenant{}, fmt.Errorf("decode tenant %s: %w", tenantID, err)
	}
	return t, nil
}

func (r *Repository) PutTenant(ctx context.Context, t models.Tenant) error {
	t.UpdatedAt = time.Now().UTC()
	rec, err := models.NewRecord(PartitionUser, t.TenantID, t)
	if err != nil {
		return fmt.Errorf("encode tenant %s: %w", t.TenantID, err)
	}
	return r.store.Upsert(ctx, rec)
}

// ListTenants returns every tenant record, skipping credential rows.
func (r *Repository) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	recs, err := r.store.List(ctx, PartitionUser)
	if err != nil {
		return nil, err
	}
	var out []models.Tenant
	for _, rec := range recs {
		if strings.HasPrefix(rec.Row, CredentialsPrefix) {
			continue
		}
		var t models.Tenant
		if err := rec.Decode(&t); err != nil {
			return nil, fmt.Errorf("decode tenant %s: %w", rec.Row, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// DeleteTenant removes the tenant record, its credentials and its partition
// rows. Refuses to delete admins.
func (r *Repository) DeleteTenant(ctx context.Context, tenantID string) error {
	t, err := r.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if t.Role == models.RoleAdmin {
		return fmt.Errorf("%w: admin accounts cannot be deleted", models.ErrConflict)
	}
	recs, err := r.store.List(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := r.store.Delete(ctx, tenantID, rec.Row); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
	}
	if err := r.store.Delete(ctx, PartitionUser, CredentialsPrefix+tenantID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return r.store.Delete(ctx, PartitionUser, tenantID)
}

// --- credentials ---

func (r *Repository) GetCredentials(ctx context.Context, tenantID string) (models.Credentials, error) {
	rec, err := r.store.Get(ctx, PartitionUser, CredentialsPrefix+tenantID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Credentials{}, fmt.Errorf("%w: tenant %s", models.ErrNoCredentials, tenantID)
	}
	if err != nil {
		return models.Credentials{}, err
	}
	var c models.Credentials
	if err := rec.Decode(&c); err != nil {
		return models.Credentials{}, fmt.Errorf("decode credentials for %s: %w", tenantID, err)
	}
	if r.encryptor != nil {
		if c.AccessToken, err = r.encryptor.Decrypt(c.AccessToken); err != nil {
			return models.Credentials{}, fmt.Errorf("decrypt access token for %s: %w", tenantID, err)
		}
		if c.RefreshToken, err = r.encryptor.Decrypt(c.RefreshToken); err != nil {
			return models.Credentials{}, fmt.Errorf("decrypt refresh token for %s: %w", tenantID, err)
		}
	}
	return c, nil
}

func (r *Repository) PutCredentials(ctx context.Context, c models.Credentials) error {
	c.UpdatedAt = time.Now().UTC()
	if r.encryptor != nil {
		var err error
		if c.AccessToken, err = r.encryptor.Encrypt(c.AccessToken); err != nil {
			return fmt.Errorf("encrypt access token for %s: %w", c.TenantID, err)
		}
		if c.RefreshToken, err = r.encryptor.Encrypt(c.RefreshToken); err != nil {
			return fmt.Errorf("encrypt refresh token for %s: %w", c.TenantID, err)
		}
	}
	rec, err := models.NewRecord(PartitionUser, CredentialsPrefix+c.TenantID, c)
	if err != nil {
		return fmt.Errorf("encode credentials for %s: %w", c.TenantID, err)
	}
	return r.store.Upsert(ctx, rec)
}

// --- counters ---

func (r *Repository) GetCounters(ctx context.Context, tenantID string) (models.Counters, error) {
	rec, err := r.store.Get(ctx, tenantID, RowCounters)
	if errors.Is(err, models.ErrNotFound) {
		return models.Counters{TenantID: tenantID}, nil
	}
	if err != nil {
		return models.Counters{}, err
	}
	var c models.Counters
	if err := rec.Decode(&c); err != nil {
		return models.Counters{}, fmt.Errorf("decode counters for %s: %w", tenantID, err)
	}
	c.TenantID = tenantID
	return c, nil
}

func (r *Repository) PutCounters(ctx context.Context, c models.Counters) error {
	rec, err := models.NewRecord(c.TenantID, RowCounters, c)
	if err != nil {
		return fmt.Errorf("encode counters for %s: %w", c.TenantID, err)
	}
	return r.store.Upsert(ctx, rec)
}

// --- series snapshots ---

func (r *Repository) GetSeries(ctx context.Context, tenantID, seriesID string) (models.SeriesSnapshot, error) {
	rec, err := r.store.Get(ctx, tenantID, SeriesPrefix+seriesID)
	if err != nil {
		return models.SeriesSnapshot{}, err
	}
	var s models.SeriesSnapshot
	if err := rec.Decode(&s); err != nil {
		return models.SeriesSnapshot{}, fmt.Errorf("decode series %s: %w", seriesID, err)
	}
	return s, nil
}

func (r *Repository) PutSeries(ctx context.Context, tenantID string, s models.SeriesSnapshot) error {
	rec, err := models.NewRecord(tenantID, SeriesPrefix+s.SeriesID, s)
	if err != nil {
		return fmt.Errorf("encode series %s: %w", s.SeriesID, err)
	}
	return r.store.Upsert(ctx, rec)
}

// ListSeries returns a tenant's snapshots, newest first.
func (r *Repository) ListSeries(ctx context.Context, tenantID string) ([]models.SeriesSnapshot, error) {
	recs, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []models.SeriesSnapshot
	for _, rec := range recs {
		if !strings.HasPrefix(rec.Row, SeriesPrefix) {
			continue
		}
		var s models.SeriesSnapshot
		if err := rec.Decode(&s); err != nil {
			return nil, fmt.Errorf("decode series %s: %w", rec.Row, err)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

func (r *Repository) DeleteSeries(ctx context.Context, tenantID, seriesID string) error {
	return r.store.Delete(ctx, tenantID, SeriesPrefix+seriesID)
}

// --- alert definitions ---

// GetAlert resolves a definition: custom rows first, then built-in defaults.
func (r *Repository) GetAlert(ctx context.Context, tenantID, alertID string) (models.AlertDefinition, error) {
	rec, err := r.store.Get(ctx, tenantID, AlertsPrefix+alertID)
	if err == nil {
		var a models.AlertDefinition
		if err := rec.Decode(&a); err != nil {
			return models.AlertDefinition{}, fmt.Errorf("decode alert %s: %w", alertID, err)
		}
		return a, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.AlertDefinition{}, err
	}
	for _, a := range models.DefaultAlerts() {
		if a.AlertID == alertID {
			return a, nil
		}
	}
	return models.AlertDefinition{}, fmt.Errorf("%w: alert %s", models.ErrNotFound, alertID)
}

func (r *Repository) PutAlert(ctx context.Context, tenantID string, a models.AlertDefinition) error {
	a.UpdatedAt = time.Now().UTC()
	rec, err := models.NewRecord(tenantID, AlertsPrefix+a.AlertID, a)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", a.AlertID, err)
	}
	return r.store.Upsert(ctx, rec)
}

// ListAlerts returns defaults first, then the tenant's custom definitions.
func (r *Repository) ListAlerts(ctx context.Context, tenantID string) ([]models.AlertDefinition, error) {
	out := models.DefaultAlerts()
	recs, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if !strings.HasPrefix(rec.Row, AlertsPrefix) {
			continue
		}
		var a models.AlertDefinition
		if err := rec.Decode(&a); err != nil {
			return nil, fmt.Errorf("decode alert %s: %w", rec.Row, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Repository) DeleteAlert(ctx context.Context, tenantID, alertID string) error {
	return r.store.Delete(ctx, tenantID, AlertsPrefix+alertID)
}

// --- event mappings ---

// GetEventMapping returns the tenant's mapping, falling back to the default.
func (r *Repository) GetEventMapping(ctx context.Context, tenantID string) (models.EventMapping, error) {
	rec, err := r.store.Get(ctx, tenantID, RowEventMappings)
	if errors.Is(err, models.ErrNotFound) {
		return models.DefaultEventMapping(), nil
	}
	if err != nil {
		return models.EventMapping{}, err
	}
	var m models.EventMapping
	if err := rec.Decode(&m); err != nil {
		return models.EventMapping{}, fmt.Errorf("decode event mappings for %s: %w", tenantID, err)
	}
	return m, nil
}

func (r *Repository) PutEventMapping(ctx context.Context, tenantID string, m models.EventMapping) error {
	m.UpdatedAt = time.Now().UTC()
	rec, err := models.NewRecord(tenantID, RowEventMappings, m)
	if err != nil {
		return fmt.Errorf("encode event mappings for %s: %w", tenantID, err)
	}
	return r.store.Upsert(ctx, rec)
}
