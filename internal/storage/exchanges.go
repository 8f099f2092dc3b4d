package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeFormat sorts lexicographically in chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const exchangeColumns = `id, session_id, created_at, mode, model, base_url, input, prompt, response, status, error_kind, error_text, elapsed_ms`

func (s *Store) SaveExchange(e Exchange) error {
	if e.ID == "" || e.SessionID == "" {
		return errors.New("exchange needs an id and a session id")
	}
	status := e.Status
	if status == "" {
		status = StatusCompleted
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO exchanges (`+exchangeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, createdAt.UTC().Format(timeFormat), e.Mode, e.Model, e.BaseURL,
		e.Input, e.Prompt, e.Response, status, e.ErrorKind, e.ErrorText, e.Elapsed.Milliseconds(),
	)
	return err
}

func (s *Store) GetExchange(id string) (Exchange, error) {
	row := s.db.QueryRow(`SELECT `+exchangeColumns+` FROM exchanges WHERE id = ?`, id)
	e, err := scanExchange(row)
	if err == sql.ErrNoRows {
		return Exchange{}, ErrNotFound
	}
	return e, err
}

// RecentExchanges returns up to limit exchanges, newest first.
func (s *Store) RecentExchanges(limit int) ([]Exchange, error) {
	return s.queryExchanges(`SELECT `+exchangeColumns+` FROM exchanges
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

// SessionExchanges returns a session's exchanges in the order they happened.
func (s *Store) SessionExchanges(sessionID string) ([]Exchange, error) {
	return s.queryExchanges(`SELECT `+exchangeColumns+` FROM exchanges
		WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID)
}

// Sessions summarizes up to limit sessions, most recently started first.
func (s *Store) Sessions(limit int) ([]SessionSummary, error) {
	rows, err := s.db.Query(`
		SELECT session_id, MIN(mode), MIN(model), MIN(created_at), COUNT(*),
		       SUM(CASE WHEN status = ? THEN 1 ELSE 0 END)
		FROM exchanges
		GROUP BY session_id
		ORDER BY MIN(created_at) DESC
		LIMIT ?`, StatusFailed, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		var started string
		if err := rows.Scan(&ss.SessionID, &ss.Mode, &ss.Model, &started, &ss.Exchanges, &ss.Failed); err != nil {
			return nil, err
		}
		if ss.Started, err = time.Parse(timeFormat, started); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, ss)
	}
	return results, rows.Err()
}

// PurgeBefore deletes exchanges recorded before t and reports how many were removed.
func (s *Store) PurgeBefore(t time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM exchanges WHERE created_at < ?`, t.UTC().Format(timeFormat))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) queryExchanges(query string, args ...any) ([]Exchange, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Exchange
	for rows.Next() {
		e, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExchange(sc scanner) (Exchange, error) {
	var e Exchange
	var createdAt string
	var elapsedMS int64
	err := sc.Scan(&e.ID, &e.SessionID, &createdAt, &e.Mode, &e.Model, &e.BaseURL,
		&e.Input, &e.Prompt, &e.Response, &e.Status, &e.ErrorKind, &e.ErrorText, &elapsedMS)
	if err != nil {
		return Exchange{}, err
	}
	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return Exchange{}, fmt.Errorf("parsing created_at: %w", err)
	}
	e.CreatedAt = t
	e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return e, nil
}
