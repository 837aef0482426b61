// Package credstore stores per-tenant bot provider configurations with
// sealed credential bundles and serves decrypted runtime views to the
// gateway.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hivegate-io/hivegate/internal/db"
	"github.com/hivegate-io/hivegate/internal/platform"
	"github.com/hivegate-io/hivegate/internal/secrets"
)

// ErrConfigNotFound is returned when no enabled configuration matches.
var ErrConfigNotFound = platform.ErrConfigNotFound

// Service provides bot provider config lifecycle operations.
type Service struct {
	pool   *pgxpool.Pool
	box    *secrets.Box
	logger *slog.Logger
}

// NewService creates a credential store service.
func NewService(log *slog.Logger, pool *pgxpool.Pool, box *secrets.Box) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		box:    box,
		logger: log.With(slog.String("service", "credstore")),
	}
}

// UpsertRequest carries the fields of a connect-flow upsert.
type UpsertRequest struct {
	UserID      string
	Credentials map[string]any
	Enabled     *bool
}

// Upsert creates or replaces the configuration for (platform, applicationID),
// sealing the credential bundle. (platform, applicationID) is unique; a second
// upsert rotates credentials in place.
func (s *Service) Upsert(ctx context.Context, p platform.Platform, applicationID string, req UpsertRequest) (platform.BotConfig, error) {
	if s.pool == nil {
		return platform.BotConfig{}, fmt.Errorf("credstore not configured")
	}
	applicationID = strings.TrimSpace(applicationID)
	userID := strings.TrimSpace(req.UserID)
	if applicationID == "" || userID == "" {
		return platform.BotConfig{}, fmt.Errorf("application id and user id are required")
	}
	if len(req.Credentials) == 0 {
		return platform.BotConfig{}, fmt.Errorf("credentials are required")
	}
	payload, err := json.Marshal(req.Credentials)
	if err != nil {
		return platform.BotConfig{}, err
	}
	sealed, err := s.box.Seal(payload)
	if err != nil {
		return platform.BotConfig{}, fmt.Errorf("seal credentials: %w", err)
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO bot_provider_configs (user_id, platform, application_id, credentials_enc, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (platform, application_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    credentials_enc = EXCLUDED.credentials_enc,
		    enabled = EXCLUDED.enabled,
		    updated_at = now()
		RETURNING id, user_id, platform, application_id, credentials_enc, enabled, created_at, updated_at`,
		userID, p.String(), applicationID, sealed, enabled,
	)
	return s.scanConfig(row)
}

// SetEnabled flips the enabled flag; disabling does not touch credentials.
func (s *Service) SetEnabled(ctx context.Context, p platform.Platform, applicationID string, enabled bool) error {
	if s.pool == nil {
		return fmt.Errorf("credstore not configured")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE bot_provider_configs
		SET enabled = $3, updated_at = now()
		WHERE platform = $1 AND application_id = $2`,
		p.String(), strings.TrimSpace(applicationID), enabled,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}

// Delete removes the configuration. Idempotent.
func (s *Service) Delete(ctx context.Context, p platform.Platform, applicationID string) error {
	if s.pool == nil {
		return fmt.Errorf("credstore not configured")
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM bot_provider_configs
		WHERE platform = $1 AND application_id = $2`,
		p.String(), strings.TrimSpace(applicationID),
	)
	return err
}

// FindEnabledByPlatform returns all enabled configurations for a platform
// with decrypted credential bundles.
func (s *Service) FindEnabledByPlatform(ctx context.Context, p platform.Platform) ([]platform.BotConfig, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("credstore not configured")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, platform, application_id, credentials_enc, enabled, created_at, updated_at
		FROM bot_provider_configs
		WHERE platform = $1 AND enabled
		ORDER BY created_at`,
		p.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]platform.BotConfig, 0)
	for rows.Next() {
		item, err := s.scanConfig(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FindEnabledByApplicationID returns the enabled configuration for one
// application, or ErrConfigNotFound.
func (s *Service) FindEnabledByApplicationID(ctx context.Context, p platform.Platform, applicationID string) (platform.BotConfig, error) {
	if s.pool == nil {
		return platform.BotConfig{}, fmt.Errorf("credstore not configured")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, platform, application_id, credentials_enc, enabled, created_at, updated_at
		FROM bot_provider_configs
		WHERE platform = $1 AND application_id = $2 AND enabled`,
		p.String(), strings.TrimSpace(applicationID),
	)
	cfg, err := s.scanConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return platform.BotConfig{}, ErrConfigNotFound
		}
		return platform.BotConfig{}, err
	}
	return cfg, nil
}

func (s *Service) scanConfig(row pgx.Row) (platform.BotConfig, error) {
	var (
		id        pgtype.UUID
		userID    string
		rawP      string
		appID     string
		sealed    []byte
		enabled   bool
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &userID, &rawP, &appID, &sealed, &enabled, &createdAt, &updatedAt); err != nil {
		return platform.BotConfig{}, err
	}
	payload, err := s.box.Open(sealed)
	if err != nil {
		return platform.BotConfig{}, err
	}
	credentials := map[string]any{}
	if err := json.Unmarshal(payload, &credentials); err != nil {
		return platform.BotConfig{}, fmt.Errorf("decode credentials: %w", err)
	}
	return platform.BotConfig{
		ID:            db.UUIDToString(id),
		UserID:        userID,
		Platform:      platform.Platform(rawP),
		ApplicationID: appID,
		Credentials:   credentials,
		Enabled:       enabled,
		CreatedAt:     db.TimeFromPg(createdAt),
		UpdatedAt:     db.TimeFromPg(updatedAt),
	}, nil
}
