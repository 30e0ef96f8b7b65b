package domain

import "time"

// Diagram is a persisted diagram description.
type Diagram struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	// SourcePath is the code file the diagram is kept in sync with, if any.
	SourcePath string    `json:"sourcePath,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Revision is one snapshot in a diagram's history.
type Revision struct {
	ID        string    `json:"id"`
	DiagramID string    `json:"diagramId"`
	ParentID  *string   `json:"parentId"`
	Label     string    `json:"label"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

// History is a diagram's revision list plus the current position.
type History struct {
	Revisions []Revision `json:"revisions"`
	CurrentID string     `json:"currentId"`
}

type DiagramStore interface {
	CreateDiagram(d *Diagram) error
	GetDiagram(id string) (*Diagram, error)
	ListDiagrams() ([]Diagram, error)
	UpdateDiagram(d *Diagram) error
	DeleteDiagram(id string) error
}

type RevisionStore interface {
	LoadHistory(diagramID string) (*History, error)
	GetRevision(id string) (*Revision, error)
	PushRevision(diagramID, label, code string) (*Revision, error)
	GoTo(diagramID, revisionID string) error
	Prune(diagramID string, keep int) (int, error)
	ListDiagramIDs() ([]string, error)
	ClearDiagram(diagramID string) error
}

// LibraryCategory groups shape libraries by subject.
type LibraryCategory string

const (
	CategoryArchitecture LibraryCategory = "architecture"
	CategoryDataScience  LibraryCategory = "data-science"
	CategoryDevOps       LibraryCategory = "devops"
	CategoryDesign       LibraryCategory = "design"
	CategoryCircuits     LibraryCategory = "circuits"
	CategoryOther        LibraryCategory = "other"
)

// Library is a named collection of reusable element groups.
type Library struct {
	Name     string          `json:"name"`
	File     string          `json:"file"`
	Category LibraryCategory `json:"category"`
	Items    []LibraryItem   `json:"items"`
}

// LibraryItem is one reusable group of editor elements.
type LibraryItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Elements []EditorElement `json:"elements"`
}
