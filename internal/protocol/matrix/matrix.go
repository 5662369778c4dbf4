package matrix

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrCodec         = errors.New("codec error")
	ErrRaggedRow     = errors.New("matrix: row length does not match column count")
	ErrTimeOrder     = errors.New("matrix: rows are not ordered by time")
	ErrInvalidColumn = errors.New("matrix: column count must be positive")
)

const (
	rowCountSize = 4
	valueSize    = 8
	maxRows      = math.MaxInt32
)

// Matrix is an ordered set of equal-length float64 rows. Column 0 is j2ksec.
type Matrix struct {
	cols int
	rows [][]float64
}

// New returns an empty matrix with a fixed column count.
func New(cols int) (*Matrix, error) {
	if cols <= 0 {
		return nil, ErrInvalidColumn
	}
	return &Matrix{cols: cols}, nil
}

// FromRows builds a matrix from rows that must all share one length.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows to infer column count", ErrInvalidColumn)
	}
	m, err := New(len(rows[0]))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := m.Append(row...); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Append copies one row into the matrix.
func (m *Matrix) Append(row ...float64) error {
	if len(row) != m.cols {
		return fmt.Errorf("%w: got %d want %d", ErrRaggedRow, len(row), m.cols)
	}
	if len(m.rows) >= maxRows {
		return fmt.Errorf("%w: row count exceeds int32", ErrCodec)
	}
	r := make([]float64, m.cols)
	copy(r, row)
	m.rows = append(m.rows, r)
	return nil
}

func (m *Matrix) Rows() int    { return len(m.rows) }
func (m *Matrix) Columns() int { return m.cols }

// Row returns row i. Callers must not modify it.
func (m *Matrix) Row(i int) []float64 {
	return m.rows[i]
}

func (m *Matrix) At(i, j int) float64 {
	return m.rows[i][j]
}

// Time returns the column-0 value of row i.
func (m *Matrix) Time(i int) float64 {
	return m.rows[i][0]
}

// Slice returns a matrix sharing rows [from, to).
func (m *Matrix) Slice(from, to int) *Matrix {
	return &Matrix{cols: m.cols, rows: m.rows[from:to]}
}

// ValidateTimeOrder reports ErrTimeOrder when column 0 ever decreases.
func (m *Matrix) ValidateTimeOrder() error {
	for i := 1; i < len(m.rows); i++ {
		if m.rows[i][0] < m.rows[i-1][0] {
			return fmt.Errorf("%w: row %d t=%v after t=%v", ErrTimeOrder, i, m.rows[i][0], m.rows[i-1][0])
		}
	}
	return nil
}

// Equal compares shape and values bit-for-bit, so NaN equals NaN.
func (m *Matrix) Equal(o *Matrix) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.cols != o.cols || len(m.rows) != len(o.rows) {
		return false
	}
	for i := range m.rows {
		for j := range m.rows[i] {
			if math.Float64bits(m.rows[i][j]) != math.Float64bits(o.rows[i][j]) {
				return false
			}
		}
	}
	return true
}

// EncodedLen is the uncompressed body size for the current shape.
func (m *Matrix) EncodedLen() int {
	return rowCountSize + len(m.rows)*m.cols*valueSize
}

// Encode renders the fixed binary layout.
func (m *Matrix) Encode() ([]byte, error) {
	if len(m.rows) > maxRows {
		return nil, fmt.Errorf("%w: row count %d exceeds int32", ErrCodec, len(m.rows))
	}
	buf := make([]byte, m.EncodedLen())
	binary.BigEndian.PutUint32(buf[0:rowCountSize], uint32(len(m.rows)))
	off := rowCountSize
	for _, row := range m.rows {
		for _, v := range row {
			binary.BigEndian.PutUint64(buf[off:off+valueSize], math.Float64bits(v))
			off += valueSize
		}
	}
	return buf, nil
}

// Decode parses the fixed layout for a known column count.
func Decode(b []byte, cols int) (*Matrix, error) {
	if cols <= 0 {
		return nil, ErrInvalidColumn
	}
	if len(b) < rowCountSize {
		return nil, fmt.Errorf("%w: short body (%d bytes)", ErrCodec, len(b))
	}
	count := int32(binary.BigEndian.Uint32(b[0:rowCountSize]))
	if count < 0 {
		return nil, fmt.Errorf("%w: negative row count %d", ErrCodec, count)
	}
	rows := int(count)
	want := rowCountSize + rows*cols*valueSize
	if len(b) != want {
		return nil, fmt.Errorf("%w: body is %d bytes, want %d for %d rows x %d columns", ErrCodec, len(b), want, rows, cols)
	}
	m := &Matrix{cols: cols, rows: make([][]float64, rows)}
	off := rowCountSize
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		for j := 0; j < cols; j++ {
			row[j] = math.Float64frombits(binary.BigEndian.Uint64(b[off : off+valueSize]))
			off += valueSize
		}
		m.rows[i] = row
	}
	return m, nil
}
