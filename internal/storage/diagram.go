package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"drawgen/internal/domain"
)

// ErrNotFound is returned when a diagram or revision does not exist.
var ErrNotFound = errors.New("not found")

// DiagramStore implements domain.DiagramStore using SQLite.
type DiagramStore struct {
	db *DB
}

func NewDiagramStore(db *DB) *DiagramStore {
	return &DiagramStore{db: db}
}

func (s *DiagramStore) CreateDiagram(d *domain.Diagram) error {
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	_, err := s.db.conn.Exec(
		`INSERT INTO diagrams (id, name, code, source_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Code, d.SourcePath, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create diagram: %w", err)
	}
	return nil
}

func (s *DiagramStore) GetDiagram(id string) (*domain.Diagram, error) {
	d := &domain.Diagram{}
	err := s.db.conn.QueryRow(
		`SELECT id, name, code, source_path, created_at, updated_at FROM diagrams WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.Code, &d.SourcePath, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get diagram %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get diagram: %w", err)
	}
	return d, nil
}

func (s *DiagramStore) ListDiagrams() ([]domain.Diagram, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, name, code, source_path, created_at, updated_at FROM diagrams ORDER BY updated_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var diagrams []domain.Diagram
	for rows.Next() {
		var d domain.Diagram
		if err := rows.Scan(&d.ID, &d.Name, &d.Code, &d.SourcePath, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		diagrams = append(diagrams, d)
	}
	return diagrams, rows.Err()
}

func (s *DiagramStore) UpdateDiagram(d *domain.Diagram) error {
	d.UpdatedAt = time.Now()
	res, err := s.db.conn.Exec(
		`UPDATE diagrams SET name = ?, code = ?, source_path = ?, updated_at = ? WHERE id = ?`,
		d.Name, d.Code, d.SourcePath, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update diagram: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update diagram %s: %w", d.ID, ErrNotFound)
	}
	return nil
}

func (s *DiagramStore) DeleteDiagram(id string) error {
	_, err := s.db.conn.Exec(`DELETE FROM diagrams WHERE id = ?`, id)
	return err
}
