package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/pulse/internal/shared"
)

// Document is one stored record of a collection.
//
// Value holds the record as a JSON object. Version starts at 1 and is bumped on every write;
// writers that read a document and write it back pass the version they read to [DocumentRepository.CompareAndSwap].
type Document struct {
	Collection string
	ID         string
	Sequence   int
	Value      []byte
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// DocumentRepository persists documents for every collection in a single table.
//
// Deletes are soft; deleted documents are excluded from reads and can be brought back by a later write.
type DocumentRepository struct {
	db *sql.DB
}

// NewDocumentRepository creates a new DocumentRepository with the given database connection
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Get retrieves a live document. Missing and deleted documents return [shared.ErrNotFound].
func (r *DocumentRepository) Get(collection, id string) (*Document, error) {
	query := `
		SELECT collection, id, sequence, value, version, created_at, updated_at, deleted_at
		FROM documents
		WHERE collection = ? AND id = ? AND deleted_at IS NULL
	`

	return r.scanOne(r.db.QueryRow(query, collection, id))
}

// List retrieves every live document of a collection in insertion order.
func (r *DocumentRepository) List(collection string) ([]*Document, error) {
	query := `
		SELECT collection, id, sequence, value, version, created_at, updated_at, deleted_at
		FROM documents
		WHERE collection = ? AND deleted_at IS NULL
		ORDER BY sequence ASC, created_at ASC
	`

	rows, err := r.db.Query(query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return docs, nil
}

// Insert stores a new document with a generated id and the next sequence number.
func (r *DocumentRepository) Insert(collection string, value []byte) (*Document, error) {
	sequence, err := NextSequence(r.db, "documents")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	doc := &Document{
		Collection: collection,
		ID:         shared.GenerateID(),
		Sequence:   sequence,
		Value:      value,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	query := `
		INSERT INTO documents (collection, id, sequence, value, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := r.db.Exec(query, doc.Collection, doc.ID, doc.Sequence, string(doc.Value), doc.Version, doc.CreatedAt, doc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	return doc, nil
}

// Put writes value at (collection, id) unconditionally, creating the document or reviving a deleted one.
func (r *DocumentRepository) Put(collection, id string, value []byte) (*Document, error) {
	sequence, err := NextSequence(r.db, "documents")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO documents (collection, id, sequence, value, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE
		SET value = excluded.value, version = documents.version + 1, updated_at = excluded.updated_at, deleted_at = NULL
	`

	if _, err := r.db.Exec(query, collection, id, sequence, string(value), now, now); err != nil {
		return nil, fmt.Errorf("failed to put document: %w", err)
	}

	return r.Get(collection, id)
}

// CompareAndSwap writes value only if the stored version still equals expected.
//
// An expected version of 0 means the caller saw no live document: the write succeeds only if the
// document is missing or deleted. Any other mismatch returns [shared.ErrTransactionConflict].
func (r *DocumentRepository) CompareAndSwap(collection, id string, expected int64, value []byte) (*Document, error) {
	now := time.Now()
	doc := &Document{Collection: collection, ID: id, Value: value, UpdatedAt: now}

	var row *sql.Row
	if expected == 0 {
		sequence, err := NextSequence(r.db, "documents")
		if err != nil {
			return nil, fmt.Errorf("failed to generate sequence: %w", err)
		}

		query := `
			INSERT INTO documents (collection, id, sequence, value, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE
			SET value = excluded.value, version = documents.version + 1, updated_at = excluded.updated_at, deleted_at = NULL
			WHERE documents.deleted_at IS NOT NULL
			RETURNING version, sequence
		`
		row = r.db.QueryRow(query, collection, id, sequence, string(value), now, now)
	} else {
		query := `
			UPDATE documents
			SET value = ?, version = version + 1, updated_at = ?
			WHERE collection = ? AND id = ? AND version = ? AND deleted_at IS NULL
			RETURNING version, sequence
		`
		row = r.db.QueryRow(query, string(value), now, collection, id, expected)
	}

	err := row.Scan(&doc.Version, &doc.Sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s changed since version %d", shared.ErrTransactionConflict, collection, id, expected)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to swap document: %w", err)
	}

	return doc, nil
}

// Delete soft-deletes a document.
func (r *DocumentRepository) Delete(collection, id string) error {
	query := `
		UPDATE documents
		SET deleted_at = ?, version = version + 1
		WHERE collection = ? AND id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s/%s", shared.ErrNotFound, collection, id)
	}

	return nil
}

// Count returns the number of live documents in a collection.
func (r *DocumentRepository) Count(collection string) (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM documents WHERE collection = ? AND deleted_at IS NULL", collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanOne scans a single [sql.Row] into a [Document]
func (r *DocumentRepository) scanOne(row *sql.Row) (*Document, error) {
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	return doc, err
}

// scanRow scans a row from [sql.Rows] into a [Document]
func (r *DocumentRepository) scanRow(rows *sql.Rows) (*Document, error) {
	return scanDocument(rows)
}

func scanDocument(s scanner) (*Document, error) {
	var (
		doc       Document
		value     string
		deletedAt sql.NullTime
	)

	err := s.Scan(&doc.Collection, &doc.ID, &doc.Sequence, &value, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.Value = []byte(value)
	if deletedAt.Valid {
		doc.DeletedAt = &deletedAt.Time
	}

	return &doc, nil
}
