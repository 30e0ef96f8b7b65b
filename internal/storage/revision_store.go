package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"drawgen/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxRevisions is how many revisions a diagram keeps when no limit is
// configured.
const DefaultMaxRevisions = 40

// RevisionStore keeps per-diagram revision history in SQLite. Revisions form
// a chain through parent ids; revision_state holds the current position.
type RevisionStore struct {
	db           *DB
	maxRevisions int
}

func NewRevisionStore(db *DB, maxRevisions int) *RevisionStore {
	if maxRevisions <= 0 {
		maxRevisions = DefaultMaxRevisions
	}
	return &RevisionStore{db: db, maxRevisions: maxRevisions}
}

// MaxRevisions returns the per-diagram revision limit.
func (s *RevisionStore) MaxRevisions() int {
	return s.maxRevisions
}

// LoadHistory returns all revisions of a diagram, oldest first. It returns
// nil when the diagram has no history yet.
func (s *RevisionStore) LoadHistory(diagramID string) (*domain.History, error) {
	rows, err := s.db.Conn().Query(
		`SELECT id, diagram_id, parent_id, label, code, created_at
		 FROM diagram_revisions WHERE diagram_id = ? ORDER BY rowid ASC`, diagramID,
	)
	if err != nil {
		return nil, fmt.Errorf("load revisions: %w", err)
	}
	defer rows.Close()

	var revs []domain.Revision
	for rows.Next() {
		var r domain.Revision
		if err := rows.Scan(&r.ID, &r.DiagramID, &r.ParentID, &r.Label, &r.Code, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revs = append(revs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(revs) == 0 {
		return nil, nil
	}

	currentID, err := s.currentID(diagramID)
	if err != nil || currentID == "" {
		currentID = revs[len(revs)-1].ID
	}

	return &domain.History{Revisions: revs, CurrentID: currentID}, nil
}

// GetRevision returns one revision by id.
func (s *RevisionStore) GetRevision(id string) (*domain.Revision, error) {
	r := &domain.Revision{}
	err := s.db.Conn().QueryRow(
		`SELECT id, diagram_id, parent_id, label, code, created_at FROM diagram_revisions WHERE id = ?`, id,
	).Scan(&r.ID, &r.DiagramID, &r.ParentID, &r.Label, &r.Code, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get revision %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get revision: %w", err)
	}
	return r, nil
}

// PushRevision records code as a new revision under the current one, moves
// the current position to it, and prunes the oldest revisions past the limit.
func (s *RevisionStore) PushRevision(diagramID, label, code string) (*domain.Revision, error) {
	now := time.Now()

	parent, err := s.currentID(diagramID)
	if err != nil {
		return nil, err
	}
	var pID *string
	if parent != "" {
		pID = &parent
	}

	rev := &domain.Revision{
		ID:        uuid.NewString(),
		DiagramID: diagramID,
		ParentID:  pID,
		Label:     label,
		Code:      code,
		CreatedAt: now,
	}

	_, err = s.db.Conn().Exec(
		`INSERT INTO diagram_revisions (id, diagram_id, parent_id, label, code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rev.ID, rev.DiagramID, rev.ParentID, rev.Label, rev.Code, rev.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert revision: %w", err)
	}

	if err := s.GoTo(diagramID, rev.ID); err != nil {
		return nil, err
	}

	if _, err := s.Prune(diagramID, s.maxRevisions); err != nil {
		log.WithError(err).WithField("diagram", diagramID).Warn("storage: prune revisions")
	}
	return rev, nil
}

// GoTo updates the current position pointer.
func (s *RevisionStore) GoTo(diagramID, revisionID string) error {
	_, err := s.db.Conn().Exec(
		`INSERT INTO revision_state (diagram_id, current_revision_id) VALUES (?, ?)
		 ON CONFLICT(diagram_id) DO UPDATE SET current_revision_id = excluded.current_revision_id`,
		diagramID, revisionID,
	)
	if err != nil {
		return fmt.Errorf("update revision state: %w", err)
	}
	return nil
}

// ListDiagramIDs returns every diagram that has history.
func (s *RevisionStore) ListDiagramIDs() ([]string, error) {
	rows, err := s.db.Conn().Query(`SELECT DISTINCT diagram_id FROM diagram_revisions ORDER BY diagram_id`)
	if err != nil {
		return nil, fmt.Errorf("list revision diagrams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearDiagram removes all history for a diagram.
func (s *RevisionStore) ClearDiagram(diagramID string) error {
	_, _ = s.db.Conn().Exec(`DELETE FROM revision_state WHERE diagram_id = ?`, diagramID)
	_, err := s.db.Conn().Exec(`DELETE FROM diagram_revisions WHERE diagram_id = ?`, diagramID)
	return err
}

// Prune deletes the oldest revisions until at most keep remain, never
// deleting the current one. Children of a deleted revision are re-parented
// to its parent. It returns the number of revisions deleted.
func (s *RevisionStore) Prune(diagramID string, keep int) (int, error) {
	var count int
	if err := s.db.Conn().QueryRow(
		`SELECT COUNT(*) FROM diagram_revisions WHERE diagram_id = ?`, diagramID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count revisions: %w", err)
	}
	if count <= keep {
		return 0, nil
	}

	// Read the current id before opening the rows cursor; the pool has a
	// single connection.
	currentID, err := s.currentID(diagramID)
	if err != nil {
		return 0, err
	}

	// Over-fetch by one so skipping the current revision still frees a slot.
	rows, err := s.db.Conn().Query(
		`SELECT id FROM diagram_revisions WHERE diagram_id = ?
		 ORDER BY rowid ASC LIMIT ?`, diagramID, count-keep+1,
	)
	if err != nil {
		return 0, fmt.Errorf("select revisions to prune: %w", err)
	}

	var victims []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan revision: %w", err)
		}
		if id != currentID && len(victims) < count-keep {
			victims = append(victims, id)
		}
	}
	rows.Close()

	// Deleting in age order keeps each victim's parent up to date: once a
	// victim is gone, its children already point at its parent.
	for _, id := range victims {
		parent, err := s.parentOf(id)
		if err != nil {
			return 0, err
		}
		if _, err := s.db.Conn().Exec(
			`UPDATE diagram_revisions SET parent_id = ? WHERE parent_id = ?`, parent, id,
		); err != nil {
			return 0, fmt.Errorf("reparent revisions: %w", err)
		}
		if _, err := s.db.Conn().Exec(`DELETE FROM diagram_revisions WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("delete revision: %w", err)
		}
	}

	if len(victims) > 0 {
		log.WithFields(log.Fields{"diagram": diagramID, "deleted": len(victims)}).Debug("storage: pruned revisions")
	}
	return len(victims), nil
}

func (s *RevisionStore) currentID(diagramID string) (string, error) {
	var id string
	err := s.db.Conn().QueryRow(
		`SELECT current_revision_id FROM revision_state WHERE diagram_id = ?`, diagramID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get revision state: %w", err)
	}
	return id, nil
}

func (s *RevisionStore) parentOf(id string) (sql.NullString, error) {
	var parent sql.NullString
	err := s.db.Conn().QueryRow(`SELECT parent_id FROM diagram_revisions WHERE id = ?`, id).Scan(&parent)
	if err != nil {
		return parent, fmt.Errorf("get revision parent: %w", err)
	}
	return parent, nil
}
