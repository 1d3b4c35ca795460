package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Namer hands out scratch paths for working copies. Every call returns a
// path no other call of the same Namer returns.
type Namer interface {
	Next() (string, error)
}

const projectPrefix = "project_"

// CounterNamer returns dir/project_1, dir/project_2, ... from a
// process-wide atomic counter.
type CounterNamer struct {
	dir  string
	last atomic.Int64
}

// NewCounterNamer returns a CounterNamer continuing after the highest
// project_N directory already present in dir.
func NewCounterNamer(dir string) (*CounterNamer, error) {
	c := &CounterNamer{dir: dir}
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	var highest int64
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), projectPrefix) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), projectPrefix), 10, 64)
		if err == nil && n > highest {
			highest = n
		}
	}
	c.last.Store(highest)
	return c, nil
}

func (c *CounterNamer) Next() (string, error) {
	n := c.last.Add(1)
	return filepath.Join(c.dir, projectPrefix+strconv.FormatInt(n, 10)), nil
}

// UUIDNamer returns dir/project_<uuid>.
type UUIDNamer struct {
	Dir string
}

func (u UUIDNamer) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating scratch name: %w", err)
	}
	return filepath.Join(u.Dir, projectPrefix+id.String()), nil
}
