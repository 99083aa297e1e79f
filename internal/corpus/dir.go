package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
)

// DirReader serves content sets straight from a directory of passage maps,
// one <id>.json per set. The generation is the file's modification time, so
// rewriting a map moves its generation forward.
type DirReader struct {
	dir string
}

func NewDirReader(dir string) *DirReader {
	return &DirReader{dir: dir}
}

func (d *DirReader) ContentSet(_ context.Context, id string) (*ContentSet, error) {
	if id == "" || filepath.Base(id) != id {
		return nil, apperrors.Newf(apperrors.ErrContentSetNotFound, 404, "content set %q", id)
	}
	path := filepath.Join(d.dir, id+".json")
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Newf(apperrors.ErrContentSetNotFound, 404, "content set %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("opening map %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat map %s: %w", path, err)
	}
	m, err := LoadMapFile(f, id)
	if err != nil {
		return nil, err
	}
	return &ContentSet{
		ID:         id,
		CodeName:   m.CodeName,
		Generation: uint64(info.ModTime().UnixNano()),
		Passages:   m.Passages,
	}, nil
}
