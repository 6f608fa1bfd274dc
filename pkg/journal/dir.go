package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SegmentExt is the file extension of segments stored by DirSink.
const SegmentExt = ".vcj"

// ErrNotFound is returned by Get for an unknown segment.
var ErrNotFound = errors.New("journal: segment not found")

// DirSink stores segments as files in a directory.
type DirSink struct {
	dir string
}

// NewDirSink creates dir if needed and returns a sink writing into it.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DirSink{dir: dir}, nil
}

// Put writes the segment to a temp file and renames it into place, so List
// never sees a partial segment.
func (s *DirSink) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, name+SegmentExt)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// List implements Sink.
func (s *DirSink) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SegmentExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), SegmentExt))
	}
	sort.Strings(names)
	return names, nil
}

// Get implements Sink.
func (s *DirSink) Get(ctx context.Context, name string) ([]byte, error) {
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("journal: invalid segment name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name+SegmentExt))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}
