package canvassync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"drawgen/internal/adapter"
	"drawgen/internal/domain"

	"github.com/tidwall/gjson"
)

// SceneType and SceneVersion identify scene files written by FileSurface.
const (
	SceneType    = "excalidraw"
	SceneVersion = 2
	SceneSource  = "drawgen"
)

// Scene is the layout of a scene file.
type Scene struct {
	Type     string                 `json:"type"`
	Version  int                    `json:"version"`
	Source   string                 `json:"source"`
	Elements []domain.EditorElement `json:"elements"`
	AppState map[string]any         `json:"appState,omitempty"`
}

// FileSurface is a Surface backed by a scene file that an external editor
// opens. Writes replace the file atomically; view state already in the file
// is kept.
type FileSurface struct {
	path string
	mu   sync.Mutex
}

func NewFileSurface(path string) *FileSurface {
	return &FileSurface{path: path}
}

// Path returns the scene file path.
func (f *FileSurface) Path() string {
	return f.path
}

// ApplyElements writes elements as the whole scene.
func (f *FileSurface) ApplyElements(_ context.Context, elements []domain.EditorElement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	scene := Scene{Type: SceneType, Version: SceneVersion, Source: SceneSource, Elements: elements}
	if data, err := os.ReadFile(f.path); err == nil {
		if prev, err := ReadScene(data); err == nil {
			scene.AppState = prev.AppState
		}
	}
	if scene.Elements == nil {
		scene.Elements = []domain.EditorElement{}
	}

	data, err := json.MarshalIndent(scene, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create scene dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write scene: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace scene: %w", err)
	}
	return nil
}

// Read loads the scene file as a change notification.
func (f *FileSurface) Read() (SurfaceChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		return SurfaceChange{}, fmt.Errorf("read scene: %w", err)
	}
	return ReadScene(data)
}

// ReadScene parses scene file content. A bare element array is accepted as
// well as a scene object.
func ReadScene(data []byte) (SurfaceChange, error) {
	if !gjson.ValidBytes(data) {
		return SurfaceChange{}, fmt.Errorf("scene is not valid JSON")
	}
	root := gjson.ParseBytes(data)

	raw := root.Raw
	if root.IsObject() {
		raw = root.Get("elements").Raw
	}
	var change SurfaceChange
	if raw != "" {
		elements, err := adapter.DecodeEditor(raw)
		if err != nil {
			return SurfaceChange{}, err
		}
		change.Elements = elements
	}
	if app := root.Get("appState"); app.IsObject() {
		if err := json.Unmarshal([]byte(app.Raw), &change.AppState); err != nil {
			return SurfaceChange{}, fmt.Errorf("decode app state: %w", err)
		}
	}
	return change, nil
}
