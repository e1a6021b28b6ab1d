package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"fedcred/internal/credential/models"
	id "fedcred/pkg/domain"
	"fedcred/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// effectiveStatusSQL mirrors models.EffectiveStatus; $1 is always the evaluation time.
const effectiveStatusSQL = `CASE
	WHEN status IN ('suspended', 'revoked') THEN status
	WHEN expiration_date < $1 THEN 'expired'
	ELSE status
END`

const credentialColumns = `id, subject_user_id, subject_type, full_name, state_id, state_name,
	federation_id_number, nationality, ranking, club_name, level,
	issued_date, expiration_date, status, checksum, verification_url,
	verification_count, last_verified, history`

// PostgresStore persists credentials in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the store to an open transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, cred *models.Credential) error {
	history, err := marshalHistory(cred.History)
	if err != nil {
		return err
	}
	_, err = s.execer().ExecContext(ctx, `
		INSERT INTO credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19::jsonb)
	`,
		string(cred.ID),
		uuid.UUID(cred.SubjectUserID),
		string(cred.SubjectType),
		cred.FullName,
		string(cred.StateID),
		cred.StateName,
		cred.FederationIDNumber,
		cred.Nationality,
		cred.Ranking,
		cred.ClubName,
		cred.Level,
		cred.IssuedDate,
		cred.ExpirationDate,
		string(cred.Status),
		cred.Checksum,
		cred.VerificationURL,
		cred.VerificationCount,
		cred.LastVerified,
		history,
	)
	if err != nil {
		return classify("insert credential", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, credID models.CredentialID) (*models.Credential, error) {
	return s.find(ctx, credID, "")
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, credID models.CredentialID) (*models.Credential, error) {
	if s.tx == nil {
		return nil, fmt.Errorf("find credential for update: no transaction")
	}
	return s.find(ctx, credID, " FOR UPDATE")
}

func (s *PostgresStore) find(ctx context.Context, credID models.CredentialID, suffix string) (*models.Credential, error) {
	row := s.execer().QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`+suffix, string(credID))
	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, classify("find credential", err)
	}
	return cred, nil
}

// Update writes the mutable columns. Snapshot fields are fixed at issuance.
func (s *PostgresStore) Update(ctx context.Context, cred *models.Credential) error {
	history, err := marshalHistory(cred.History)
	if err != nil {
		return err
	}
	res, err := s.execer().ExecContext(ctx, `
		UPDATE credentials
		SET status = $2, expiration_date = $3, checksum = $4, verification_count = $5,
			last_verified = $6, history = $7::jsonb, updated_at = NOW()
		WHERE id = $1
	`,
		string(cred.ID),
		string(cred.Status),
		cred.ExpirationDate,
		cred.Checksum,
		cred.VerificationCount,
		cred.LastVerified,
		history,
	)
	if err != nil {
		return classify("update credential", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return classify("update credential rows", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) HasLiveFederationID(ctx context.Context, subjectType models.SubjectType, number string, exclude models.CredentialID, now time.Time) (bool, error) {
	var exists bool
	err := s.execer().QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM credentials
			WHERE subject_type = $2 AND federation_id_number = $3 AND id <> $5
			AND (`+effectiveStatusSQL+`) = ANY($4::text[])
		)
	`, now, string(subjectType), number, pq.Array(statusStrings(liveStatuses)), exclude.String()).Scan(&exists)
	if err != nil {
		return false, classify("check federation id", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, userID id.UserID, page models.Page) (models.PageResult[*models.Credential], error) {
	return s.listPage(ctx, page, "subject_user_id = $1", "issued_date DESC, id ASC", uuid.UUID(userID))
}

// ListByState filters on effective status when filter.Status is set.
func (s *PostgresStore) ListByState(ctx context.Context, filter models.StateFilter, page models.Page) (models.PageResult[*models.Credential], error) {
	where := "state_id = $2 AND ($3::text = '' OR subject_type = $3::text) AND ($4::text = '' OR (" + effectiveStatusSQL + ") = $4::text)"
	return s.listPage(ctx, page, where, "issued_date DESC, id ASC",
		filter.Now, string(filter.StateID), string(filter.SubjectType), string(filter.Status))
}

func (s *PostgresStore) ListExpiring(ctx context.Context, q models.ExpiringQuery, page models.Page) (models.PageResult[*models.Credential], error) {
	where := "status = 'active' AND expiration_date >= $1 AND expiration_date <= $2"
	return s.listPage(ctx, page, where, "expiration_date ASC, id ASC", q.Now, q.Until())
}

// listPage runs a count and a windowed select over the same predicate.
func (s *PostgresStore) listPage(ctx context.Context, page models.Page, where, order string, args ...any) (models.PageResult[*models.Credential], error) {
	page = page.Normalize()
	result := models.PageResult[*models.Credential]{Limit: page.Limit, Offset: page.Offset, Items: []*models.Credential{}}

	if err := s.execer().QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials WHERE `+where, args...).Scan(&result.Total); err != nil {
		return result, classify("count credentials", err)
	}
	if result.Total == 0 || page.Offset >= result.Total {
		return result, nil
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM credentials WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		credentialColumns, where, order, n+1, n+2)
	rows, err := s.execer().QueryContext(ctx, query, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return result, classify("list credentials", err)
	}
	defer rows.Close()

	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return result, fmt.Errorf("scan credential: %w", err)
		}
		result.Items = append(result.Items, cred)
	}
	if err := rows.Err(); err != nil {
		return result, classify("iterate credentials", err)
	}
	return result, nil
}

func (s *PostgresStore) Stats(ctx context.Context, now time.Time) (*models.Stats, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT `+effectiveStatusSQL+` AS effective_status, subject_type, COUNT(*)
		FROM credentials
		GROUP BY effective_status, subject_type
	`, now)
	if err != nil {
		return nil, classify("credential stats", err)
	}
	defer rows.Close()

	stats := models.NewStats(now)
	for rows.Next() {
		var status, subjectType string
		var count int
		if err := rows.Scan(&status, &subjectType, &count); err != nil {
			return nil, fmt.Errorf("scan credential stats: %w", err)
		}
		stats.Total += count
		stats.ByStatus[models.Status(status)] += count
		stats.BySubjectType[models.SubjectType(subjectType)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate credential stats", err)
	}
	return stats, nil
}

func (s *PostgresStore) ListLapsed(ctx context.Context, now time.Time, limit int) ([]models.CredentialID, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT id FROM credentials
		WHERE status = ANY($2::text[]) AND expiration_date < $1
		ORDER BY expiration_date ASC, id ASC
		LIMIT $3
	`, now, pq.Array(statusStrings(lapsibleStatuses)), limit)
	if err != nil {
		return nil, classify("list lapsed credentials", err)
	}
	defer rows.Close()

	var ids []models.CredentialID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan lapsed credential: %w", err)
		}
		ids = append(ids, models.CredentialID(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate lapsed credentials", err)
	}
	return ids, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event models.VerificationEvent) error {
	var verifierID *uuid.UUID
	if !event.Verifier.UserID.IsNil() {
		u := uuid.UUID(event.Verifier.UserID)
		verifierID = &u
	}
	_, err := s.execer().ExecContext(ctx, `
		INSERT INTO verification_events (id, credential_id, occurred_at, valid, reason,
			verifier_user_id, verifier_role, client_ip, user_agent, device, request_id, channel)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		event.ID,
		event.CredentialID,
		event.Timestamp,
		event.Valid,
		string(event.Reason),
		verifierID,
		string(event.Verifier.Role),
		event.Verifier.ClientIP,
		event.Verifier.UserAgent,
		event.Verifier.Device,
		event.Verifier.RequestID,
		string(event.Verifier.Channel),
	)
	if err != nil {
		return classify("insert verification event", err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, credentialID string, page models.Page) (models.PageResult[models.VerificationEvent], error) {
	page = page.Normalize()
	result := models.PageResult[models.VerificationEvent]{Limit: page.Limit, Offset: page.Offset, Items: []models.VerificationEvent{}}

	if err := s.execer().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM verification_events WHERE credential_id = $1`, credentialID,
	).Scan(&result.Total); err != nil {
		return result, classify("count verification events", err)
	}
	if result.Total == 0 || page.Offset >= result.Total {
		return result, nil
	}

	rows, err := s.execer().QueryContext(ctx, `
		SELECT id, credential_id, occurred_at, valid, reason, verifier_user_id,
			verifier_role, client_ip, user_agent, device, request_id, channel
		FROM verification_events
		WHERE credential_id = $1
		ORDER BY occurred_at DESC, id ASC
		LIMIT $2 OFFSET $3
	`, credentialID, page.Limit, page.Offset)
	if err != nil {
		return result, classify("list verification events", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.VerificationEvent
		var reason, role, channel string
		var verifierID uuid.NullUUID
		if err := rows.Scan(&e.ID, &e.CredentialID, &e.Timestamp, &e.Valid, &reason, &verifierID,
			&role, &e.Verifier.ClientIP, &e.Verifier.UserAgent, &e.Verifier.Device, &e.Verifier.RequestID, &channel); err != nil {
			return result, fmt.Errorf("scan verification event: %w", err)
		}
		e.Reason = models.ReasonCode(reason)
		e.Verifier.Role = id.Role(role)
		e.Verifier.Channel = models.Channel(channel)
		if verifierID.Valid {
			e.Verifier.UserID = id.UserID(verifierID.UUID)
		}
		result.Items = append(result.Items, e)
	}
	if err := rows.Err(); err != nil {
		return result, classify("iterate verification events", err)
	}
	return result, nil
}

type credentialRow interface {
	Scan(dest ...any) error
}

func scanCredential(row credentialRow) (*models.Credential, error) {
	var cred models.Credential
	var credID, subjectType, stateID, status string
	var subjectUserID uuid.UUID
	var lastVerified sql.NullTime
	var history []byte
	if err := row.Scan(
		&credID, &subjectUserID, &subjectType, &cred.FullName, &stateID, &cred.StateName,
		&cred.FederationIDNumber, &cred.Nationality, &cred.Ranking, &cred.ClubName, &cred.Level,
		&cred.IssuedDate, &cred.ExpirationDate, &status, &cred.Checksum, &cred.VerificationURL,
		&cred.VerificationCount, &lastVerified, &history,
	); err != nil {
		return nil, err
	}
	cred.ID = models.CredentialID(credID)
	cred.SubjectUserID = id.UserID(subjectUserID)
	cred.SubjectType = models.SubjectType(subjectType)
	cred.StateID = id.StateID(stateID)
	cred.Status = models.Status(status)
	cred.IssuedDate = cred.IssuedDate.UTC()
	cred.ExpirationDate = cred.ExpirationDate.UTC()
	if lastVerified.Valid {
		t := lastVerified.Time.UTC()
		cred.LastVerified = &t
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &cred.History); err != nil {
			return nil, fmt.Errorf("decode credential history: %w", err)
		}
	}
	if len(cred.History) == 0 {
		cred.History = nil
	}
	return &cred, nil
}

func marshalHistory(history []models.HistoryEntry) (string, error) {
	if history == nil {
		return "[]", nil
	}
	b, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("encode credential history: %w", err)
	}
	return string(b), nil
}

// classify maps driver failures onto sentinel errors. Context errors pass through unchanged.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation:
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone),
		errors.As(err, &connectErr), errors.As(err, &netErr):
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
