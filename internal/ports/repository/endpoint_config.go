package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"timebridge.service/internal/core/model"
)

// GetEndpointConfig reads the singleton row. Migrate guarantees it exists.
func (r *SQLRepository) GetEndpointConfig(ctx context.Context) (*model.EndpointConfig, error) {
	var (
		cfg                           model.EndpointConfig
		metadata                      sql.NullString
		onpremIssued, cloudIssued     sql.NullTime
		lastPull, lastPush, updatedAt sql.NullTime
	)
	err := r.queryRow(ctx, `
		SELECT onprem_host, onprem_username, onprem_password, onprem_token, onprem_token_issued_at,
		       cloud_url, cloud_username, cloud_password, cloud_token, cloud_token_metadata, cloud_token_issued_at,
		       pull_interval_minutes, push_interval_minutes, last_pull_at, last_push_at, updated_at
		FROM endpoint_config WHERE id = 1`).Scan(
		&cfg.OnPremHost, &cfg.OnPremUsername, &cfg.OnPremPassword, &cfg.OnPremToken, &onpremIssued,
		&cfg.CloudURL, &cfg.CloudUsername, &cfg.CloudPassword, &cfg.CloudToken, &metadata, &cloudIssued,
		&cfg.PullIntervalMinutes, &cfg.PushIntervalMinutes, &lastPull, &lastPush, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("endpoint config missing, run migrations first: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read endpoint config: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		cfg.CloudTokenMetadata = []byte(metadata.String)
	}
	cfg.OnPremTokenIssuedAt = nullTimePtr(onpremIssued)
	cfg.CloudTokenIssuedAt = nullTimePtr(cloudIssued)
	cfg.LastPullAt = nullTimePtr(lastPull)
	cfg.LastPushAt = nullTimePtr(lastPush)
	cfg.UpdatedAt = updatedAt.Time.UTC()
	return &cfg, nil
}

// UpdateEndpointConfig compiles the non-nil fields of u into one SET list.
// An empty update does not touch the row.
func (r *SQLRepository) UpdateEndpointConfig(ctx context.Context, u model.EndpointConfigUpdate) error {
	if u.Empty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if u.OnPremHost != nil {
		set("onprem_host", strings.TrimSpace(*u.OnPremHost))
	}
	if u.OnPremUsername != nil {
		set("onprem_username", *u.OnPremUsername)
	}
	if u.OnPremPassword != nil {
		set("onprem_password", *u.OnPremPassword)
	}
	if u.CloudURL != nil {
		set("cloud_url", strings.TrimSpace(*u.CloudURL))
	}
	if u.CloudUsername != nil {
		set("cloud_username", *u.CloudUsername)
	}
	if u.CloudPassword != nil {
		set("cloud_password", *u.CloudPassword)
	}
	if u.PullIntervalMinutes != nil {
		set("pull_interval_minutes", *u.PullIntervalMinutes)
	}
	if u.PushIntervalMinutes != nil {
		set("push_interval_minutes", *u.PushIntervalMinutes)
	}
	set("updated_at", r.timestamp())

	query := `UPDATE endpoint_config SET ` + strings.Join(sets, ", ") + ` WHERE id = 1`
	if _, err := r.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update endpoint config: %w", err)
	}
	return nil
}

func (r *SQLRepository) SetOnPremToken(ctx context.Context, token string, issuedAt time.Time) error {
	_, err := r.exec(ctx, `UPDATE endpoint_config SET onprem_token = ?, onprem_token_issued_at = ?, updated_at = ? WHERE id = 1`,
		token, normalizeTime(issuedAt), r.timestamp())
	if err != nil {
		return fmt.Errorf("store on-prem token: %w", err)
	}
	return nil
}

func (r *SQLRepository) ClearOnPremToken(ctx context.Context) error {
	_, err := r.exec(ctx, `UPDATE endpoint_config SET onprem_token = '', onprem_token_issued_at = NULL, updated_at = ? WHERE id = 1`,
		r.timestamp())
	if err != nil {
		return fmt.Errorf("clear on-prem token: %w", err)
	}
	return nil
}

// SetCloudToken stores the token together with the account metadata the
// login response carried.
func (r *SQLRepository) SetCloudToken(ctx context.Context, token string, metadata json.RawMessage, issuedAt time.Time) error {
	var meta any
	if len(metadata) > 0 {
		meta = string(metadata)
	}
	_, err := r.exec(ctx, `
		UPDATE endpoint_config
		SET cloud_token = ?, cloud_token_metadata = ?, cloud_token_issued_at = ?, updated_at = ?
		WHERE id = 1`, token, meta, normalizeTime(issuedAt), r.timestamp())
	if err != nil {
		return fmt.Errorf("store cloud token: %w", err)
	}
	return nil
}

func (r *SQLRepository) ClearCloudToken(ctx context.Context) error {
	_, err := r.exec(ctx, `
		UPDATE endpoint_config
		SET cloud_token = '', cloud_token_metadata = NULL, cloud_token_issued_at = NULL, updated_at = ?
		WHERE id = 1`, r.timestamp())
	if err != nil {
		return fmt.Errorf("clear cloud token: %w", err)
	}
	return nil
}

// TouchLastSync records the last successful run of one direction. It writes a
// single column so pull and push never contend on the same field.
func (r *SQLRepository) TouchLastSync(ctx context.Context, syncType model.SyncType, at time.Time) error {
	column := "last_pull_at"
	if syncType == model.SyncPush {
		column = "last_push_at"
	}
	_, err := r.exec(ctx, `UPDATE endpoint_config SET `+column+` = ? WHERE id = 1`, normalizeTime(at))
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return nil
}
