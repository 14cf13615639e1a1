// Package export writes exported rasters to disk and enforces the size cap.
package export

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/venicegeo/bf-vegindex/model"
	"github.com/venicegeo/bf-vegindex/util"
)

// Exported file names
const (
	BandsFileName   = "image_b1_b8.tif"
	IndicesFileName = "image_ndvi_ndre_evi.tif"
)

const bytesPerMB = 1024 * 1024

// User-facing outcome messages
const (
	MessageSucceeded  = "images were exported successfully to the local file system"
	MessageNotCreated = "error during export, files were not created"
	messageOversized  = "images were not exported, size larger than %d MB"
)

// ErrNotTIFF is returned when an export payload is not a TIFF image
var ErrNotTIFF = errors.New("export payload is not a TIFF image")

// Mirror copies kept export files elsewhere
type Mirror interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Guard writes exports into Dir and deletes any file larger than Limit bytes
type Guard struct {
	Dir    string
	Limit  int64
	Mirror Mirror
	logCtx util.LogContext
	mu     sync.Mutex
}

// NewGuard returns a guard without a mirror
func NewGuard(dir string, limit int64) *Guard {
	return &Guard{Dir: dir, Limit: limit, logCtx: &util.BasicLogContext{}}
}

// GuardFromEnv builds a guard from DOWNLOAD_DIR, EXPORT_SIZE_LIMIT_MB and,
// when EXPORT_S3_BUCKET is set, an S3 mirror
func GuardFromEnv(ctx context.Context) (*Guard, error) {
	guard := NewGuard(util.GetDownloadDir(), util.GetExportSizeLimit())
	if bucket := util.GetExportS3Bucket(); bucket != "" {
		mirror, err := NewS3Mirror(ctx, bucket, "")
		if err != nil {
			return nil, err
		}
		guard.Mirror = mirror
	}
	return guard, nil
}

// Lock reserves Dir for one Clear, Write and Check sequence.
// The export file names are fixed, so concurrent exports would delete each other's files.
func (g *Guard) Lock() {
	g.mu.Lock()
}

// Unlock releases Dir after Check
func (g *Guard) Unlock() {
	g.mu.Unlock()
}

// Write stores payload as Dir/name after checking it is a TIFF image
func (g *Guard) Write(name string, payload []byte) (string, error) {
	if mtype := mimetype.Detect(payload); !mtype.Is("image/tiff") {
		return "", fmt.Errorf("%w: detected %s", ErrNotTIFF, mtype.String())
	}
	if err := os.MkdirAll(g.Dir, 0755); err != nil {
		return "", util.LogSimpleErr(g.logCtx, "Failed to create download directory "+g.Dir, err)
	}
	path := g.Path(name)
	if err := ioutil.WriteFile(path, payload, 0644); err != nil {
		return "", util.LogSimpleErr(g.logCtx, "Failed to write "+path, err)
	}
	return path, nil
}

// Path is where Write stores name
func (g *Guard) Path(name string) string {
	return filepath.Join(g.Dir, filepath.Base(name))
}

// Clear removes earlier exports of names, so a failed export cannot pass Check
func (g *Guard) Clear(names ...string) {
	for _, name := range names {
		if err := os.Remove(g.Path(name)); err != nil && !os.IsNotExist(err) {
			util.LogAlert(g.logCtx, fmt.Sprintf("Failed to remove previous export %s: %v", name, err))
		}
	}
}

// Check applies the size cap to paths. A missing file fails the whole export.
// Files strictly larger than the limit are deleted; the rest are kept and
// mirrored when a mirror is configured.
func (g *Guard) Check(ctx context.Context, paths ...string) model.ExportResult {
	files := make([]model.ExportFile, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			util.LogAlert(g.logCtx, fmt.Sprintf("Export file %s was not created: %v", path, err))
			return model.ExportResult{Status: model.ExportFailed, Message: MessageNotCreated}
		}
		files = append(files, model.ExportFile{Path: path, SizeBytes: info.Size(), Kept: true})
	}

	oversized := false
	for i := range files {
		if files[i].SizeBytes <= g.Limit {
			continue
		}
		oversized = true
		files[i].Kept = false
		if err := os.Remove(files[i].Path); err != nil {
			util.LogSimpleErr(g.logCtx, "Failed to remove oversized export "+files[i].Path, err)
			continue
		}
		util.LogInfo(g.logCtx, fmt.Sprintf("Removed %s: %d bytes exceeds %d", files[i].Path, files[i].SizeBytes, g.Limit))
	}

	g.mirror(ctx, files)
	if oversized {
		return model.ExportResult{
			Status:  model.ExportOversized,
			Message: fmt.Sprintf(messageOversized, g.Limit/bytesPerMB),
			Files:   files,
		}
	}
	return model.ExportResult{Status: model.ExportSucceeded, Message: MessageSucceeded, Files: files}
}

func (g *Guard) mirror(ctx context.Context, files []model.ExportFile) {
	if g.Mirror == nil {
		return
	}
	for _, file := range files {
		if !file.Kept {
			continue
		}
		location, err := g.Mirror.Upload(ctx, file.Path)
		if err != nil {
			util.LogAlert(g.logCtx, fmt.Sprintf("Failed to mirror %s: %v", file.Path, err))
			continue
		}
		util.LogInfo(g.logCtx, "Mirrored "+file.Path+" to "+location)
	}
}
