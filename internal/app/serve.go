package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"drawgen/internal/canvassync"
	mcpserver "drawgen/internal/mcp"
	"drawgen/internal/watch"
)

// shutdownGrace bounds how long in-flight generations may finish on exit.
const shutdownGrace = 5 * time.Second

// ServeOptions configures ServeMCP.
type ServeOptions struct {
	// ScenePath, when set, attaches a scene file as the editing surface.
	ScenePath string
	// OpenDiagram is shown on the surface at startup.
	OpenDiagram string
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects
// or the process is interrupted. Linked code files, the library directory
// and the scene file are watched meanwhile.
func (a *App) ServeMCP(ctx context.Context, opts ServeOptions) error {
	if err := a.diagrams.StartPruning(a.cfg.History.PruneSchedule); err != nil {
		return err
	}

	watcher := newSyncWatcher(ctx, a.diagrams)
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.WatchLinked(); err != nil {
		log.WithError(err).Warn("app: list linked diagrams")
	}

	libs := canvassync.NewLibraries(a.cfg.LibrariesDir)
	if err := watcher.WatchLibraries(a.cfg.LibrariesDir, libs); err != nil {
		log.WithError(err).Warn("app: watch library directory")
	}

	if opts.ScenePath != "" {
		scenePath, err := filepath.Abs(opts.ScenePath)
		if err != nil {
			return err
		}
		canvas := a.AttachCanvas(canvassync.NewFileSurface(scenePath))
		if opts.OpenDiagram != "" {
			if _, err := canvas.Open(ctx, opts.OpenDiagram); err != nil {
				return err
			}
		}
		if err := watcher.WatchCanvas(canvas, scenePath); err != nil {
			return err
		}
		log.WithField("scene", scenePath).Info("app: canvas attached")
	}

	srv := mcpserver.New(mcpserver.Deps{
		Emitter:   a.emitter,
		Diagrams:  a.diagrams,
		Canvas:    a.canvas,
		Libraries: libs,
	})
	err := srv.ServeStdio()

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	a.diagrams.WaitGenerating(waitCtx)
	return err
}

// WatchFile keeps diagram id in sync with the code file at path until ctx
// is done. The file's current content is saved first.
func (a *App) WatchFile(ctx context.Context, id, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := a.diagrams.Link(id, abs); err != nil {
		return err
	}

	watcher := newSyncWatcher(ctx, a.diagrams)
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.WatchDiagram(id, abs); err != nil {
		return err
	}
	if data, err := os.ReadFile(abs); err == nil {
		watcher.onSourceChange(id, watch.Change{Path: abs, Content: strings.TrimSpace(string(data))})
	}
	log.WithFields(log.Fields{"diagram": id, "path": abs}).Info("app: watching code file")
	<-ctx.Done()
	return nil
}
