package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/policywatch/policywatch/sdk"
)

// PostgresStore implements Store on a Postgres database.
type PostgresStore struct {
	log hclog.Logger
	db  *sqlx.DB

	// tx is set on the transactional view handed to InTx callbacks.
	tx *sqlx.Tx
}

// NewPostgresStore connects to the passed DSN and verifies the
// connection.
func NewPostgresStore(log hclog.Logger, dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &PostgresStore{log: log.Named("postgres_store"), db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection; used by tests.
func NewPostgresStoreFromDB(log hclog.Logger, db *sql.DB) *PostgresStore {
	return &PostgresStore{
		log: log.Named("postgres_store"),
		db:  sqlx.NewDb(db, "postgres"),
	}
}

// EnsureSchema creates the tables and constraints if they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// ext returns the transaction when inside InTx, the pool otherwise.
func (s *PostgresStore) ext() sqlx.ExtContext {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

type sourceRow struct {
	ID                       int64          `db:"id"`
	Country                  string         `db:"country"`
	VisaType                 string         `db:"visa_type"`
	URL                      string         `db:"url"`
	Name                     string         `db:"name"`
	FetchType                string         `db:"fetch_type"`
	CheckFrequency           string         `db:"check_frequency"`
	IsActive                 bool           `db:"is_active"`
	LastCheckedAt            sql.NullTime   `db:"last_checked_at"`
	LastChangeDetectedAt     sql.NullTime   `db:"last_change_detected_at"`
	Config                   []byte         `db:"config"`
	ConsecutiveFetchFailures int            `db:"consecutive_fetch_failures"`
	ConsecutiveEmailFailures int            `db:"consecutive_email_failures"`
	LastFetchError           sql.NullString `db:"last_fetch_error"`
	LastEmailError           sql.NullString `db:"last_email_error"`
	CreatedAt                time.Time      `db:"created_at"`
	UpdatedAt                time.Time      `db:"updated_at"`
}

func (r *sourceRow) toSDK() (*sdk.Source, error) {
	s := &sdk.Source{
		ID:                       r.ID,
		Country:                  r.Country,
		VisaType:                 r.VisaType,
		URL:                      r.URL,
		Name:                     r.Name,
		FetchType:                sdk.FetchType(r.FetchType),
		CheckFrequency:           sdk.CheckFrequency(r.CheckFrequency),
		IsActive:                 r.IsActive,
		ConsecutiveFetchFailures: r.ConsecutiveFetchFailures,
		ConsecutiveEmailFailures: r.ConsecutiveEmailFailures,
		LastFetchError:           r.LastFetchError.String,
		LastEmailError:           r.LastEmailError.String,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
	if r.LastCheckedAt.Valid {
		t := r.LastCheckedAt.Time
		s.LastCheckedAt = &t
	}
	if r.LastChangeDetectedAt.Valid {
		t := r.LastChangeDetectedAt.Time
		s.LastChangeDetectedAt = &t
	}
	if len(r.Config) > 0 {
		if err := json.Unmarshal(r.Config, &s.Config); err != nil {
			return nil, fmt.Errorf("decoding config of source %d: %w", r.ID, err)
		}
	}
	return s, nil
}

const sourceColumns = `id, country, visa_type, url, name, fetch_type, check_frequency,
	is_active, last_checked_at, last_change_detected_at, config,
	consecutive_fetch_failures, consecutive_email_failures,
	last_fetch_error, last_email_error, created_at, updated_at`

func (s *PostgresStore) ActiveSourcesByFrequency(ctx context.Context, freq sdk.CheckFrequency) ([]*sdk.Source, error) {
	var rows []sourceRow
	err := sqlx.SelectContext(ctx, s.ext(), &rows,
		`SELECT `+sourceColumns+` FROM sources
		 WHERE is_active = TRUE AND check_frequency = $1
		 ORDER BY id`, string(freq))
	if err != nil {
		return nil, fmt.Errorf("selecting due sources: %w", err)
	}

	out := make([]*sdk.Source, 0, len(rows))
	for i := range rows {
		src, err := rows[i].toSDK()
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

type versionRow struct {
	ID            int64     `db:"id"`
	SourceID      int64     `db:"source_id"`
	ContentHash   string    `db:"content_hash"`
	RawText       string    `db:"raw_text"`
	FetchedAt     time.Time `db:"fetched_at"`
	NormalizedAt  time.Time `db:"normalized_at"`
	ContentLength int       `db:"content_length"`
	FetchDuration int64     `db:"fetch_duration"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r *versionRow) toSDK() *sdk.PolicyVersion {
	return &sdk.PolicyVersion{
		ID:            r.ID,
		SourceID:      r.SourceID,
		ContentHash:   r.ContentHash,
		RawText:       r.RawText,
		FetchedAt:     r.FetchedAt,
		NormalizedAt:  r.NormalizedAt,
		ContentLength: r.ContentLength,
		FetchDuration: r.FetchDuration,
		CreatedAt:     r.CreatedAt,
	}
}

func (s *PostgresStore) LatestVersion(ctx context.Context, sourceID int64) (*sdk.PolicyVersion, error) {
	var row versionRow
	err := sqlx.GetContext(ctx, s.ext(), &row,
		`SELECT id, source_id, content_hash, raw_text, fetched_at, normalized_at,
		        content_length, fetch_duration, created_at
		 FROM policy_versions WHERE source_id = $1
		 ORDER BY id DESC LIMIT 1`, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting latest version of source %d: %w", sourceID, err)
	}
	return row.toSDK(), nil
}

func (s *PostgresStore) AppendVersion(ctx context.Context, v *sdk.PolicyVersion) (*sdk.PolicyVersion, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	latest, err := s.LatestVersion(ctx, v.SourceID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.ContentHash == v.ContentHash {
		return nil, ErrDuplicateVersion
	}

	cp := *v
	err = sqlx.GetContext(ctx, s.ext(), &cp.ID,
		`INSERT INTO policy_versions
		   (source_id, content_hash, raw_text, fetched_at, normalized_at, content_length, fetch_duration)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		v.SourceID, v.ContentHash, v.RawText, v.FetchedAt, v.NormalizedAt, v.ContentLength, v.FetchDuration)
	if err != nil {
		return nil, fmt.Errorf("inserting version for source %d: %w", v.SourceID, err)
	}
	return &cp, nil
}

func (s *PostgresStore) AppendChange(ctx context.Context, c *sdk.PolicyChange) (*sdk.PolicyChange, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cp := *c
	err := sqlx.GetContext(ctx, s.ext(), &cp.ID,
		`INSERT INTO policy_changes
		   (source_id, old_version_id, new_version_id, old_hash, new_hash, diff, diff_length, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		c.SourceID, c.OldVersionID, c.NewVersionID, c.OldHash, c.NewHash, c.Diff, c.DiffLength, c.DetectedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting change for source %d: %w", c.SourceID, err)
	}
	return &cp, nil
}

func (s *PostgresStore) MarkAlertSent(ctx context.Context, changeID int64, ts time.Time) error {
	res, err := s.ext().ExecContext(ctx,
		`UPDATE policy_changes SET alert_sent_at = $1 WHERE id = $2`, ts, changeID)
	if err != nil {
		return fmt.Errorf("marking alert sent on change %d: %w", changeID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateSource(ctx context.Context, sourceID int64, update SourceUpdate) error {
	set := []string{"updated_at = now()"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if update.LastCheckedAt != nil {
		set = append(set, "last_checked_at = "+arg(*update.LastCheckedAt))
	}
	if update.LastChangeDetectedAt != nil {
		set = append(set, "last_change_detected_at = "+arg(*update.LastChangeDetectedAt))
	}
	if update.ConsecutiveFetchFailures != nil {
		set = append(set, "consecutive_fetch_failures = "+arg(*update.ConsecutiveFetchFailures))
	}
	if update.ConsecutiveEmailFailures != nil {
		set = append(set, "consecutive_email_failures = "+arg(*update.ConsecutiveEmailFailures))
	}
	if update.LastFetchError != nil {
		set = append(set, "last_fetch_error = "+arg(nullableString(*update.LastFetchError)))
	}
	if update.LastEmailError != nil {
		set = append(set, "last_email_error = "+arg(nullableString(*update.LastEmailError)))
	}

	query := fmt.Sprintf("UPDATE sources SET %s WHERE id = %s",
		strings.Join(set, ", "), arg(sourceID))

	res, err := s.ext().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating source %d: %w", sourceID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullableString maps the empty string onto SQL NULL so clearing an
// error field stores NULL rather than "".
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type subscriptionRow struct {
	ID                 int64     `db:"id"`
	OriginCountry      string    `db:"origin_country"`
	DestinationCountry string    `db:"destination_country"`
	VisaType           string    `db:"visa_type"`
	Email              string    `db:"email"`
	IsActive           bool      `db:"is_active"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (s *PostgresStore) ActiveSubscriptionsForSource(ctx context.Context, source *sdk.Source) ([]*sdk.RouteSubscription, error) {
	query := `SELECT id, origin_country, destination_country, visa_type, email,
	                 is_active, created_at, updated_at
	          FROM route_subscriptions
	          WHERE is_active = TRUE AND destination_country = $1`
	args := []interface{}{source.Country}

	// The source label "Both" fans out to every visa type.
	if !strings.EqualFold(source.VisaType, sdk.VisaTypeAny) {
		query += ` AND (lower(visa_type) = lower($2) OR lower(visa_type) = lower($3))`
		args = append(args, source.VisaType, sdk.VisaTypeAny)
	}
	query += ` ORDER BY id`

	var rows []subscriptionRow
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("selecting subscriptions for source %d: %w", source.ID, err)
	}

	out := make([]*sdk.RouteSubscription, 0, len(rows))
	for _, r := range rows {
		out = append(out, &sdk.RouteSubscription{
			ID:                 r.ID,
			OriginCountry:      r.OriginCountry,
			DestinationCountry: r.DestinationCountry,
			VisaType:           r.VisaType,
			Email:              r.Email,
			IsActive:           r.IsActive,
			CreatedAt:          r.CreatedAt,
			UpdatedAt:          r.UpdatedAt,
		})
	}
	return out, nil
}

// InTx runs fn against a transactional view. Nested calls reuse the
// surrounding transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	txStore := &PostgresStore{log: s.log, db: s.db, tx: tx}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}
