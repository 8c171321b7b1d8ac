package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// CountWhere evaluates COUNT(*) over the images table with an optional
// WHERE clause (without the WHERE keyword).
func (s *Store) CountWhere(ctx context.Context, where string, args []interface{}) (int, error) {
	done := observeQuery("count_where")

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		done(ErrClosed)
		return 0, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := "SELECT COUNT(*) FROM images"
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	err := s.db.QueryRowContext(qCtx, query, args...).Scan(&count)
	done(err)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return count, nil
}

// SelectWhere returns the records matching an optional WHERE clause,
// ordered by orderBy when given. The clause and ordering are built by
// the retrieval engine's filter compiler, never from user strings.
func (s *Store) SelectWhere(ctx context.Context, where string, args []interface{}, orderBy string) ([]*ImageRecord, error) {
	done := observeQuery("select_where")

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		done(ErrClosed)
		return nil, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	query := fmt.Sprintf("SELECT id, %s FROM images", recordColumns)
	if where != "" {
		query += " WHERE " + where
	}
	if orderBy != "" {
		query += " ORDER BY " + orderBy
	}

	rows, err := s.db.QueryContext(qCtx, query, args...)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("select failed: %w", err)
	}
	defer rows.Close()

	var records []*ImageRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			done(err)
			return nil, fmt.Errorf("record scan failed: %w", err)
		}
		records = append(records, r)
	}
	err = rows.Err()
	done(err)
	if err != nil {
		return nil, fmt.Errorf("select iteration failed: %w", err)
	}
	return records, nil
}

// IDsForSidecar returns the ids of records whose image file owns the
// given sidecar path (same directory and stem, any image extension).
func (s *Store) IDsForSidecar(ctx context.Context, sidecarPath string) ([]int64, error) {
	done := observeQuery("ids_for_sidecar")

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		done(ErrClosed)
		return nil, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stem := strings.TrimSuffix(sidecarPath, filepath.Ext(sidecarPath))
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(stem)

	rows, err := s.db.QueryContext(qCtx,
		`SELECT id FROM images WHERE filepath LIKE ? ESCAPE '\'`, escaped+".%")
	if err != nil {
		done(err)
		return nil, fmt.Errorf("sidecar lookup failed: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			done(err)
			return nil, fmt.Errorf("sidecar lookup scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	done(err)
	if err != nil {
		return nil, fmt.Errorf("sidecar lookup iteration failed: %w", err)
	}
	return ids, nil
}
