package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// AddEmbedding stores an embedding vector for a record, replacing any
// existing one.
func (s *SQLiteStore) AddEmbedding(ctx context.Context, recordID string, vector []float32) error {
	if recordID == "" {
		return fmt.Errorf("record id is required")
	}
	if len(vector) == 0 {
		return fmt.Errorf("refusing to store empty vector for record %q", recordID)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (record_id, vector, dimensions) VALUES (?, ?, ?)
		 ON CONFLICT(record_id) DO UPDATE SET vector = excluded.vector, dimensions = excluded.dimensions`,
		recordID, float32ToBytes(vector), len(vector),
	)
	if err != nil {
		return fmt.Errorf("storing embedding for record %q: %w", recordID, err)
	}
	return nil
}

// GetEmbedding retrieves the embedding vector for a record, nil if absent.
func (s *SQLiteStore) GetEmbedding(ctx context.Context, recordID string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT vector FROM embeddings WHERE record_id = ?`, recordID,
	).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting embedding for record %q: %w", recordID, err)
	}
	return bytesToFloat32(blob), nil
}

// ListEmbeddings returns all stored vectors keyed by record id.
func (s *SQLiteStore) ListEmbeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_id, vector FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("listing embeddings: %w", err)
	}
	defer rows.Close()

	vectors := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		vectors[id] = bytesToFloat32(blob)
	}
	return vectors, rows.Err()
}

// CountEmbeddings returns the number of stored vectors.
func (s *SQLiteStore) CountEmbeddings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return n, nil
}

// float32ToBytes converts a float32 slice to little-endian bytes.
func float32ToBytes(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToFloat32 converts little-endian bytes back to a float32 slice.
func bytesToFloat32(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
