// Package sqlite provides a SQLite-backed campaign storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/campfirelabs/campfire/internal/platform/storage/sqlitemigrate"
	"github.com/campfirelabs/campfire/internal/services/campaign/domain"
	"github.com/campfirelabs/campfire/internal/services/campaign/storage"
	"github.com/campfirelabs/campfire/internal/services/campaign/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists campaigns and proofs in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite campaign store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(raw), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

// CreateCampaign inserts a new campaign record.
func (s *Store) CreateCampaign(ctx context.Context, campaign domain.Campaign) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(campaign.ID) == "" {
		return fmt.Errorf("campaign id is required")
	}
	if strings.TrimSpace(campaign.OwnerIdentity) == "" {
		return fmt.Errorf("campaign owner is required")
	}

	targets, err := encodeList(campaign.Intent.Targets)
	if err != nil {
		return err
	}
	actions, err := encodeList(campaign.Intent.Actions)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO campaigns (
			id, owner_identity, name, status,
			intent_category, intent_targets, intent_actions,
			intent_window_start, intent_window_end,
			content_caption, content_media_ref, content_hash,
			fingerprint, created_at, updated_at, finalized_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		campaign.ID,
		strings.ToLower(campaign.OwnerIdentity),
		campaign.Name,
		string(campaign.Status),
		campaign.Intent.Category,
		targets,
		actions,
		toMillis(campaign.Intent.WindowStart),
		toMillis(campaign.Intent.WindowEnd),
		campaign.Content.Caption,
		campaign.Content.MediaRef,
		campaign.Content.ContentHash,
		campaign.Fingerprint,
		toMillis(campaign.CreatedAt),
		toMillis(campaign.UpdatedAt),
		nullableMillis(campaign.FinalizedAt),
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func nullableMillis(value *time.Time) any {
	if value == nil {
		return nil
	}
	return toMillis(*value)
}

const campaignColumns = `id, owner_identity, name, status,
	intent_category, intent_targets, intent_actions,
	intent_window_start, intent_window_end,
	content_caption, content_media_ref, content_hash,
	fingerprint, created_at, updated_at, finalized_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (domain.Campaign, error) {
	var campaign domain.Campaign
	var status, targets, actions string
	var windowStart, windowEnd, createdAt, updatedAt int64
	var finalizedAt sql.NullInt64
	err := row.Scan(
		&campaign.ID,
		&campaign.OwnerIdentity,
		&campaign.Name,
		&status,
		&campaign.Intent.Category,
		&targets,
		&actions,
		&windowStart,
		&windowEnd,
		&campaign.Content.Caption,
		&campaign.Content.MediaRef,
		&campaign.Content.ContentHash,
		&campaign.Fingerprint,
		&createdAt,
		&updatedAt,
		&finalizedAt,
	)
	if err != nil {
		return domain.Campaign{}, err
	}

	campaign.Status = domain.Status(status)
	if campaign.Intent.Targets, err = decodeList(targets); err != nil {
		return domain.Campaign{}, err
	}
	if campaign.Intent.Actions, err = decodeList(actions); err != nil {
		return domain.Campaign{}, err
	}
	campaign.Intent.WindowStart = fromMillis(windowStart)
	campaign.Intent.WindowEnd = fromMillis(windowEnd)
	campaign.CreatedAt = fromMillis(createdAt)
	campaign.UpdatedAt = fromMillis(updatedAt)
	if finalizedAt.Valid {
		value := fromMillis(finalizedAt.Int64)
		campaign.FinalizedAt = &value
	}
	return campaign, nil
}

// GetCampaign returns a campaign by ID.
func (s *Store) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return domain.Campaign{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Campaign{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	campaign, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Campaign{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("get campaign: %w", err)
	}
	return campaign, nil
}

// ListCampaignsByOwner returns the owner's campaigns, newest first.
func (s *Store) ListCampaignsByOwner(ctx context.Context, ownerIdentity string) ([]domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE owner_identity = ? ORDER BY created_at DESC, id DESC`,
		strings.ToLower(ownerIdentity),
	)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return campaigns, nil
}

// UpdateCampaignContent replaces the content fields of a campaign.
func (s *Store) UpdateCampaignContent(ctx context.Context, id string, content domain.Content, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE campaigns
		 SET content_caption = ?, content_media_ref = ?, content_hash = ?, updated_at = ?
		 WHERE id = ?`,
		content.Caption,
		content.MediaRef,
		content.ContentHash,
		toMillis(updatedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("update campaign content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update campaign content: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// dbtx is the subset of *sql.DB and *sql.Tx the write helpers need, so the
// same statements can run standalone or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SwapStatus atomically moves a campaign from one status to another.
//
// The status predicate rides in the WHERE clause so the check and the write
// form a single statement; a zero row count is then disambiguated into
// not-found versus conflict with a follow-up existence probe.
func (s *Store) SwapStatus(ctx context.Context, swap storage.StatusSwap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return swapStatus(ctx, s.sqlDB, swap)
}

func swapStatus(ctx context.Context, db dbtx, swap storage.StatusSwap) error {
	query := `UPDATE campaigns SET status = ?, updated_at = ?`
	args := []any{string(swap.To), toMillis(swap.UpdatedAt)}
	if swap.Fingerprint != "" {
		query += `, fingerprint = ?`
		args = append(args, swap.Fingerprint)
	}
	if swap.FinalizedAt != nil {
		query += `, finalized_at = ?`
		args = append(args, toMillis(*swap.FinalizedAt))
	}
	if swap.ClearContent {
		query += `, content_caption = '', content_media_ref = '', content_hash = ''`
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, swap.CampaignID, string(swap.From))

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("swap campaign status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("swap campaign status: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM campaigns WHERE id = ?`, swap.CampaignID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("swap campaign status: %w", err)
	}
	return storage.ErrStatusConflict
}

// FinalizeCampaign swaps the status and inserts the pending proof in one
// transaction, so a failed proof insert rolls the status back.
func (s *Store) FinalizeCampaign(ctx context.Context, swap storage.StatusSwap, proof storage.Proof) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := validateProof(proof); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("finalize campaign: %w", err)
	}
	defer tx.Rollback()

	if err := swapStatus(ctx, tx, swap); err != nil {
		return err
	}
	if err := insertProof(ctx, tx, proof); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("finalize campaign: %w", err)
	}
	return nil
}

func validateProof(proof storage.Proof) error {
	if strings.TrimSpace(proof.ID) == "" {
		return fmt.Errorf("proof id is required")
	}
	if strings.TrimSpace(proof.CampaignID) == "" {
		return fmt.Errorf("proof campaign id is required")
	}
	if strings.TrimSpace(proof.Fingerprint) == "" {
		return fmt.Errorf("proof fingerprint is required")
	}
	return nil
}

func insertProof(ctx context.Context, db dbtx, proof storage.Proof) error {
	_, err := db.ExecContext(
		ctx,
		`INSERT INTO proofs (id, campaign_id, fingerprint, tx_hash, created_at, anchored_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		proof.ID,
		proof.CampaignID,
		proof.Fingerprint,
		proof.TxHash,
		toMillis(proof.CreatedAt),
		nullableMillis(proof.AnchoredAt),
	)
	if err != nil {
		return fmt.Errorf("insert proof: %w", err)
	}
	return nil
}

// CreateProof inserts a pending proof record.
func (s *Store) CreateProof(ctx context.Context, proof storage.Proof) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := validateProof(proof); err != nil {
		return err
	}
	return insertProof(ctx, s.sqlDB, proof)
}

// GetProofByCampaign returns the proof for a campaign.
func (s *Store) GetProofByCampaign(ctx context.Context, campaignID string) (storage.Proof, error) {
	if err := ctx.Err(); err != nil {
		return storage.Proof{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Proof{}, fmt.Errorf("storage is not configured")
	}

	var proof storage.Proof
	var createdAt int64
	var anchoredAt sql.NullInt64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, campaign_id, fingerprint, tx_hash, created_at, anchored_at
		 FROM proofs WHERE campaign_id = ?`,
		campaignID,
	).Scan(&proof.ID, &proof.CampaignID, &proof.Fingerprint, &proof.TxHash, &createdAt, &anchoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Proof{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Proof{}, fmt.Errorf("get proof: %w", err)
	}
	proof.CreatedAt = fromMillis(createdAt)
	if anchoredAt.Valid {
		value := fromMillis(anchoredAt.Int64)
		proof.AnchoredAt = &value
	}
	return proof, nil
}

// MarkProofAnchored records the transaction hash for a pending proof.
func (s *Store) MarkProofAnchored(ctx context.Context, campaignID string, txHash string, anchoredAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(txHash) == "" {
		return fmt.Errorf("transaction hash is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE proofs SET tx_hash = ?, anchored_at = ? WHERE campaign_id = ? AND tx_hash = ''`,
		txHash,
		toMillis(anchoredAt),
		campaignID,
	)
	if err != nil {
		return fmt.Errorf("mark proof anchored: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark proof anchored: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Zero rows means the proof is missing or already carries a hash.
	var storedHash string
	err = s.sqlDB.QueryRowContext(ctx, `SELECT tx_hash FROM proofs WHERE campaign_id = ?`, campaignID).Scan(&storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark proof anchored: %w", err)
	}
	return storage.ErrProofAnchored
}
