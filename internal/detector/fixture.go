package detector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/banshee-data/platesort/internal/camera"
	"github.com/banshee-data/platesort/internal/plate"
)

// FixtureDetector returns pre-recorded snapshots in order, ignoring the
// frame. Once exhausted it reports an empty plate with the last crop size.
type FixtureDetector struct {
	mu        sync.Mutex
	snapshots []plate.Snapshot
	next      int
}

// NewFixtureDetector uses the given snapshots directly.
func NewFixtureDetector(snapshots ...plate.Snapshot) *FixtureDetector {
	return &FixtureDetector{snapshots: snapshots}
}

// LoadFixtures reads a JSON snapshot file, or every *.json file of a
// directory in lexical order.
func LoadFixtures(path string) (*FixtureDetector, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("load fixtures: %w", err)
		}
		sort.Strings(files)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("load fixtures: no snapshots in %s", path)
	}

	var snapshots []plate.Snapshot
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("load fixtures: %w", err)
		}
		s, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		snapshots = append(snapshots, s)
	}
	return NewFixtureDetector(snapshots...), nil
}

// Detect returns the next snapshot.
func (f *FixtureDetector) Detect(ctx context.Context, _ camera.Frame) (plate.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return plate.Snapshot{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next < len(f.snapshots) {
		s := f.snapshots[f.next]
		f.next++
		return s, nil
	}
	empty := plate.Snapshot{CropWidth: 1, CropHeight: 1}
	if n := len(f.snapshots); n > 0 {
		empty.CropWidth = f.snapshots[n-1].CropWidth
		empty.CropHeight = f.snapshots[n-1].CropHeight
	}
	return empty, nil
}

// Remaining reports how many recorded snapshots have not been served.
func (f *FixtureDetector) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots) - f.next
}

var _ Detector = (*FixtureDetector)(nil)
