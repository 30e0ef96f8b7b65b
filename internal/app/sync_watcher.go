package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"drawgen/internal/canvassync"
	"drawgen/internal/service"
	"drawgen/internal/watch"
)

// LabelFile labels revisions saved from a linked code file.
const LabelFile = "file"

const (
	diagramKeyPrefix = "diagram:"
	librariesKey     = "libraries"
	canvasKey        = "canvas"
)

// syncWatcher carries edits made outside the process into the services:
// linked code files become revisions, scene file edits reach the canvas and
// library changes force a reload.
type syncWatcher struct {
	ctx       context.Context
	diagrams  *service.DiagramService
	canvas    *service.CanvasService
	libraries *canvassync.Libraries
	w         *watch.Watcher
}

func newSyncWatcher(ctx context.Context, diagrams *service.DiagramService) *syncWatcher {
	return &syncWatcher{ctx: ctx, diagrams: diagrams}
}

// Start begins watching. It must be called once.
func (s *syncWatcher) Start() error {
	w, err := watch.New(s.handle, watch.DefaultDebounce)
	if err != nil {
		return err
	}
	s.w = w
	return nil
}

// Close stops every watch.
func (s *syncWatcher) Close() error {
	if s.w == nil {
		return nil
	}
	return s.w.Close()
}

// WatchLinked watches the source file of every linked diagram.
func (s *syncWatcher) WatchLinked() error {
	linked, err := s.diagrams.Linked()
	if err != nil {
		return err
	}
	for _, d := range linked {
		if err := s.WatchDiagram(d.ID, d.SourcePath); err != nil {
			log.WithError(err).WithField("diagram", d.ID).Warn("app: watch linked file")
		}
	}
	return nil
}

// WatchDiagram re-saves diagram id whenever path changes.
func (s *syncWatcher) WatchDiagram(id, path string) error {
	return s.w.WatchFile(diagramKeyPrefix+id, path)
}

// WatchLibraries reloads libs, and the canvas's libraries, when a library
// file in dir changes.
func (s *syncWatcher) WatchLibraries(dir string, libs *canvassync.Libraries) error {
	s.libraries = libs
	return s.w.WatchDir(librariesKey, dir)
}

// WatchCanvas forwards edits of the scene file to canvas.
func (s *syncWatcher) WatchCanvas(canvas *service.CanvasService, scenePath string) error {
	s.canvas = canvas
	return s.w.WatchFile(canvasKey, scenePath)
}

func (s *syncWatcher) handle(c watch.Change) {
	switch {
	case strings.HasPrefix(c.Key, diagramKeyPrefix):
		s.onSourceChange(strings.TrimPrefix(c.Key, diagramKeyPrefix), c)
	case c.Key == librariesKey:
		s.onLibrariesChange(c)
	case c.Key == canvasKey:
		s.onSceneChange(c)
	}
}

func (s *syncWatcher) onSourceChange(id string, c watch.Change) {
	if c.Content == "" {
		return
	}
	res, err := s.diagrams.SaveCode(s.ctx, id, c.Content, LabelFile)
	switch {
	case errors.Is(err, service.ErrUnrecoverable):
		log.WithFields(log.Fields{"diagram": id, "path": c.Path}).Warn("app: linked file holds no usable diagram; kept stored code")
	case err != nil:
		log.WithError(err).WithField("diagram", id).Warn("app: save linked file")
	case res.Revision != nil:
		log.WithFields(log.Fields{"diagram": id, "revision": res.Revision.ID}).Info("app: saved linked file")
	}
}

func (s *syncWatcher) onLibrariesChange(c watch.Change) {
	if !strings.EqualFold(filepath.Ext(c.Path), canvassync.LibraryExt) {
		return
	}
	if s.canvas != nil {
		s.canvas.ReloadLibraries()
	}
	if s.libraries != nil {
		s.libraries.Reset()
	}
}

func (s *syncWatcher) onSceneChange(c watch.Change) {
	if s.canvas == nil || c.Content == "" {
		return
	}
	change, err := canvassync.ReadScene([]byte(c.Content))
	if err != nil {
		log.WithError(err).WithField("path", c.Path).Warn("app: unreadable scene file")
		return
	}
	if s.canvas.HandleSurfaceChange(s.ctx, change) {
		log.WithField("diagram", s.canvas.DiagramID()).Debug("app: saved canvas edit")
	}
}
