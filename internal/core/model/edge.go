package model

import (
	"fmt"
	"math"
)

// Matrix44 is a row-major homogeneous transform. Rows 0..2 hold rotation
// and translation, row 3 is [0 0 0 1] for rigid poses.
type Matrix44 [4][4]float64

func Identity() Matrix44 {
	return Matrix44{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

func Translation(x, y, z float64) Matrix44 {
	m := Identity()
	m[0][3], m[1][3], m[2][3] = x, y, z
	return m
}

func (m Matrix44) Mul(o Matrix44) Matrix44 {
	var out Matrix44
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[i][k] * o[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// Inverse uses Gauss-Jordan elimination with partial pivoting so that
// affine (non-rigid) poses invert correctly too.
func (m Matrix44) Inverse() (Matrix44, error) {
	a := m
	inv := Identity()
	for col := 0; col < 4; col++ {
		pivot := col
		for r := col + 1; r < 4; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return Matrix44{}, ErrSingularTransform
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		p := a[col][col]
		for j := 0; j < 4; j++ {
			a[col][j] /= p
			inv[col][j] /= p
		}
		for r := 0; r < 4; r++ {
			if r == col {
				continue
			}
			f := a[r][col]
			if f == 0 {
				continue
			}
			for j := 0; j < 4; j++ {
				a[r][j] -= f * a[col][j]
				inv[r][j] -= f * inv[col][j]
			}
		}
	}
	return inv, nil
}

// TranslationPart returns the (x, y, z) column.
func (m Matrix44) TranslationPart() (float64, float64, float64) {
	return m[0][3], m[1][3], m[2][3]
}

// ApproxEqual compares element-wise within eps.
func (m Matrix44) ApproxEqual(o Matrix44, eps float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(m[i][j]-o[i][j]) > eps {
				return false
			}
		}
	}
	return true
}

// MatrixFromRows builds a Matrix44 from the nested wire form.
func MatrixFromRows(rows [][]float64) (Matrix44, error) {
	var m Matrix44
	if len(rows) != 4 {
		return m, fmt.Errorf("matrix needs 4 rows, got %d: %w", len(rows), ErrMalformedRequest)
	}
	for i, row := range rows {
		if len(row) != 4 {
			return m, fmt.Errorf("matrix row %d needs 4 columns, got %d: %w", i, len(row), ErrMalformedRequest)
		}
		copy(m[i][:], row)
	}
	return m, nil
}

func (m Matrix44) Rows() [][]float64 {
	rows := make([][]float64, 4)
	for i := range m {
		rows[i] = append([]float64(nil), m[i][:]...)
	}
	return rows
}

// DefaultUnit is used when a history entry does not name one.
const DefaultUnit = "m"

// StampedTransform is one entry of a Transform connection's history.
type StampedTransform struct {
	Stamp  Stamp
	Matrix Matrix44
	Unit   string
}
