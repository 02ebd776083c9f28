package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/railmiles/internal/apperr"
	"github.com/starford/railmiles/internal/models"
)

// Dates are stored as fixed-width RFC 3339 UTC text so that string
// comparison orders them chronologically.
const dateLayout = "2006-01-02T15:04:05Z"

const journeyColumns = `id, from_station, to_station, via, distance, date, return_id`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// InsertJourney inserts a new journey row.
func (db *DB) InsertJourney(ctx context.Context, j *models.Journey) error {
	if err := insertJourney(ctx, db.conn, j); err != nil {
		return fmt.Errorf("store: insert journey: %w", err)
	}
	return nil
}

func insertJourney(ctx context.Context, ex execer, j *models.Journey) error {
	via, err := encodeVia(j.Via)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO journeys (`+journeyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, j.ID.String(), j.From.Shortcode, j.To.Shortcode, via, j.Distance,
		j.Date.UTC().Format(dateLayout), nullableID(j.ReturnID))
	return err
}

// UpdateJourney overwrites every column of an existing journey.
func (db *DB) UpdateJourney(ctx context.Context, j *models.Journey) error {
	if err := updateJourney(ctx, db.conn, j); err != nil {
		return fmt.Errorf("store: update journey: %w", err)
	}
	return nil
}

func updateJourney(ctx context.Context, ex execer, j *models.Journey) error {
	via, err := encodeVia(j.Via)
	if err != nil {
		return err
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE journeys SET
			from_station = ?,
			to_station   = ?,
			via          = ?,
			distance     = ?,
			date         = ?,
			return_id    = ?
		WHERE id = ?
	`, j.From.Shortcode, j.To.Shortcode, via, j.Distance,
		j.Date.UTC().Format(dateLayout), nullableID(j.ReturnID), j.ID.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetJourney returns the journey with the given id or apperr.ErrNotFound.
func (db *DB) GetJourney(ctx context.Context, id uuid.UUID) (*models.Journey, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+journeyColumns+` FROM journeys WHERE id = ?`, id.String())
	j, err := scanJourney(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("store: get journey: %w", err)
	}
	return j, nil
}

// ListJourneys returns journeys newest first.
func (db *DB) ListJourneys(ctx context.Context, q ListQuery) ([]*models.Journey, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + journeyColumns + ` FROM journeys`)

	cutoff, ok, err := q.Since.Cutoff(db.now())
	if err != nil {
		return nil, fmt.Errorf("store: list journeys: %w", err)
	}
	if ok {
		sb.WriteString(` WHERE date >= ?`)
		args = append(args, cutoff.Format(dateLayout))
	}
	sb.WriteString(` ORDER BY date DESC, id`)

	// SQLite needs a LIMIT before OFFSET; -1 means unbounded.
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, limit, q.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list journeys: %w", err)
	}
	defer rows.Close()

	var out []*models.Journey
	for rows.Next() {
		j, err := scanJourney(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan journey: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Stats counts journeys and sums their distance inside the window.
func (db *DB) Stats(ctx context.Context, since models.Since) (*models.JourneyStats, error) {
	query := `SELECT count(*), COALESCE(sum(distance), 0) FROM journeys`
	var args []any

	cutoff, ok, err := since.Cutoff(db.now())
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	if ok {
		query += ` WHERE date >= ?`
		args = append(args, cutoff.Format(dateLayout))
	}

	var (
		st    models.JourneyStats
		miles float64
	)
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&st.Count, &miles); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	st.Miles = float32(miles)
	return &st, nil
}

// DeleteJourney removes a journey and its route, and unlinks any journey
// that recorded it as its return.
func (db *DB) DeleteJourney(ctx context.Context, id uuid.UUID) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM journeys WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("store: delete journey: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `UPDATE journeys SET return_id = NULL WHERE return_id = ?`, id.String()); err != nil {
		return fmt.Errorf("store: unlink return: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE journey_id = ?`, id.String()); err != nil {
		return fmt.Errorf("store: delete route: %w", err)
	}
	return tx.Commit()
}

// InsertRoute stores the calling points of a journey in order.
func (db *DB) InsertRoute(ctx context.Context, journeyID uuid.UUID, stations []string) error {
	if len(stations) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertRoute(ctx, tx, journeyID, stations); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRoute(ctx context.Context, tx *sql.Tx, journeyID uuid.UUID, stations []string) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO routes (journey_id, sequence, station) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare route insert: %w", err)
	}
	defer stmt.Close()
	for i, st := range stations {
		if _, err := stmt.ExecContext(ctx, journeyID.String(), i, st); err != nil {
			return fmt.Errorf("store: insert route point: %w", err)
		}
	}
	return nil
}

// CallingPoints returns the stored route of a journey, never nil.
func (db *DB) CallingPoints(ctx context.Context, journeyID uuid.UUID) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT station FROM routes WHERE journey_id = ? ORDER BY sequence`, journeyID.String())
	if err != nil {
		return nil, fmt.Errorf("store: calling points: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertReturnJourney atomically inserts ret with its route and points
// source.ReturnID at it. source is only modified once the transaction commits.
func (db *DB) InsertReturnJourney(ctx context.Context, source, ret *models.Journey, route []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertJourney(ctx, tx, ret); err != nil {
		return fmt.Errorf("store: insert return journey: %w", err)
	}
	if len(route) > 0 {
		if err := insertRoute(ctx, tx, ret.ID, route); err != nil {
			return err
		}
	}
	id := ret.ID
	linked := *source
	linked.ReturnID = &id
	if err := updateJourney(ctx, tx, &linked); err != nil {
		return fmt.Errorf("store: link return journey: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit return journey: %w", err)
	}
	source.ReturnID = &id
	return nil
}

func scanJourney(row rowScanner) (*models.Journey, error) {
	var (
		id, from, to, date string
		via, returnID      sql.NullString
		distance           float64
	)
	if err := row.Scan(&id, &from, &to, &via, &distance, &date, &returnID); err != nil {
		return nil, err
	}

	j := &models.Journey{
		From:     &models.StationName{Shortcode: from},
		To:       &models.StationName{Shortcode: to},
		Distance: float32(distance),
	}
	var err error
	if j.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	if j.Date, err = time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	if returnID.Valid && returnID.String != "" {
		rid, err := uuid.Parse(returnID.String)
		if err != nil {
			return nil, fmt.Errorf("parse return id %q: %w", returnID.String, err)
		}
		j.ReturnID = &rid
	}
	if via.Valid && via.String != "" {
		var codes []string
		if err := json.Unmarshal([]byte(via.String), &codes); err != nil {
			return nil, fmt.Errorf("decode via: %w", err)
		}
		j.Via = models.Stations(codes)
	}
	return j, nil
}

// encodeVia keeps an empty via list as NULL.
func encodeVia(via []*models.StationName) (any, error) {
	if len(via) == 0 {
		return nil, nil
	}
	codes := make([]string, len(via))
	for i, v := range via {
		codes[i] = v.Shortcode
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("encode via: %w", err)
	}
	return string(b), nil
}

func nullableID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
