package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hurttlocker/recall/internal/record"
)

// SaveClustering replaces the persisted clustering wholesale: the single
// fingerprint row, the cluster summaries, and every member assignment. A
// clustering is only ever valid as a complete set, so this runs in one
// transaction.
func (s *SQLiteStore) SaveClustering(ctx context.Context, fingerprint string, clusters []StoredCluster, assignments map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning clustering save: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM clusterings`,
		`DELETE FROM clusters`,
		`DELETE FROM cluster_members`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing previous clustering: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO clusterings (id, fingerprint, saved_at) VALUES (1, ?, ?)`,
		fingerprint, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("storing clustering fingerprint: %w", err)
	}

	for _, c := range clusters {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO clusters (cluster_id, dominant_emotion, label, member_count) VALUES (?, ?, ?, ?)`,
			c.ID, c.DominantEmotion, c.Label, c.MemberCount,
		); err != nil {
			return fmt.Errorf("storing cluster %d: %w", c.ID, err)
		}
	}

	for recordID, clusterID := range assignments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cluster_members (record_id, cluster_id) VALUES (?, ?)`,
			recordID, clusterID,
		); err != nil {
			return fmt.Errorf("storing assignment for %q: %w", recordID, err)
		}
	}

	return tx.Commit()
}

// LoadClustering returns the persisted clustering, or nil when none saved.
func (s *SQLiteStore) LoadClustering(ctx context.Context) (*StoredClustering, error) {
	var result StoredClustering
	var savedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, saved_at FROM clusterings WHERE id = 1`,
	).Scan(&result.Fingerprint, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading clustering: %w", err)
	}
	result.SavedAt = record.ParseCreatedAt(savedAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT cluster_id, dominant_emotion, label, member_count FROM clusters ORDER BY cluster_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("loading clusters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c StoredCluster
		if err := rows.Scan(&c.ID, &c.DominantEmotion, &c.Label, &c.MemberCount); err != nil {
			return nil, fmt.Errorf("scanning cluster: %w", err)
		}
		result.Clusters = append(result.Clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	memberRows, err := s.db.QueryContext(ctx, `SELECT record_id, cluster_id FROM cluster_members`)
	if err != nil {
		return nil, fmt.Errorf("loading cluster members: %w", err)
	}
	defer memberRows.Close()
	result.Assignments = make(map[string]int)
	for memberRows.Next() {
		var recordID string
		var clusterID int
		if err := memberRows.Scan(&recordID, &clusterID); err != nil {
			return nil, fmt.Errorf("scanning cluster member: %w", err)
		}
		result.Assignments[recordID] = clusterID
	}
	return &result, memberRows.Err()
}

// SetClusterLabel writes the label an external naming step produced for one
// cluster id.
func (s *SQLiteStore) SetClusterLabel(ctx context.Context, clusterID int, label string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE clusters SET label = ? WHERE cluster_id = ?`, label, clusterID)
	if err != nil {
		return fmt.Errorf("labeling cluster %d: %w", clusterID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("labeling cluster %d: %w", clusterID, err)
	}
	if affected == 0 {
		return fmt.Errorf("cluster %d not found", clusterID)
	}
	return nil
}
