package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
	".tif": true, ".tiff": true, ".webp": true,
}

// DirSource replays image files. A directory is read in lexical order, one
// file per capture; once exhausted the last file is returned again, which
// models a plate that no longer changes.
type DirSource struct {
	mu    sync.Mutex
	files []string
	next  int
	now   func() time.Time
}

// NewDirSource returns a source over path, which may be a single image file
// or a directory of images.
func NewDirSource(path string) (*DirSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("frame source: %w", err)
	}
	var files []string
	if !info.IsDir() {
		files = []string{path}
	} else {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("frame source: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			files = append(files, filepath.Join(path, e.Name()))
		}
		sort.Strings(files)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("frame source: no images in %s", path)
	}
	return &DirSource{files: files, now: time.Now}, nil
}

// Capture reads the next file.
func (d *DirSource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	d.mu.Lock()
	path := d.files[d.next]
	if d.next < len(d.files)-1 {
		d.next++
	}
	d.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	return newFrame(data, path, d.now())
}

var _ FrameSource = (*DirSource)(nil)
