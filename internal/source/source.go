package source

import (
	"context"

	"github.com/usgs/vdx/internal/protocol/matrix"
)

// Source is one backend serving a dataset kind. Fetch may be called
// concurrently; implementations own their internal synchronization.
type Source interface {
	Kind() string
	// MaxRows is the largest row count Fetch may return without
	// downsampling; 0 means unlimited.
	MaxRows() int
	Initialize(cfg Config) error
	Fetch(ctx context.Context, params map[string]string) (Data, error)
	Disconnect() error
}

// Data is a Fetch payload: *Table for numeric rows, Lines for text.
type Data interface {
	Rows() int
}

// Table is a numeric matrix plus its column names; Names[0] is the time column.
type Table struct {
	*matrix.Matrix
	Names []string
}

func NewTable(m *matrix.Matrix, columns []string) *Table {
	return &Table{Matrix: m, Names: columns}
}

// Lines is a text payload.
type Lines []string

func (l Lines) Rows() int { return len(l) }
