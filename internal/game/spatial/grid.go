// Package spatial provides the broad phase for bullet/target collision.
//
// The grid stores slot indices (not pointers) in preallocated cells so a
// rebuild every tick does not allocate.
package spatial

import (
	"math"
)

// Grid buckets entities on the floor plane (world X/Z) into fixed-size cells.
//
// Optimal cell size is about the largest query radius. For the range that is
// the target radius plus one tick of bullet travel.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col]).
type Grid struct {
	originX, originZ float64
	cellSize         float64
	invCellSize      float64 // 1/cellSize for faster division
	cols, rows       int
	cells            [][]uint32
	scratch          []uint32 // reusable buffer for query results
}

// NewGrid creates a grid covering [minX, minX+width] x [minZ, minZ+depth].
// Positions outside are clamped into the edge cells.
func NewGrid(minX, minZ, width, depth, cellSize float64, maxEntities int) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(depth / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]uint32, cols*rows)
	avgPerCell := maxEntities / len(cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range cells {
		cells[i] = make([]uint32, 0, avgPerCell)
	}

	return &Grid{
		originX:     minX,
		originZ:     minZ,
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		scratch:     make([]uint32, 0, 64),
	}
}

// Clear resets all cells without deallocating underlying memory.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

func (g *Grid) colRow(x, z float64) (int, int) {
	col := int(math.Floor((x - g.originX) * g.invCellSize))
	row := int(math.Floor((z - g.originZ) * g.invCellSize))
	if col < 0 {
		col = 0
	}
	if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	}
	if row >= g.rows {
		row = g.rows - 1
	}
	return col, row
}

// Insert adds entity id at floor position (x, z).
func (g *Grid) Insert(id uint32, x, z float64) {
	col, row := g.colRow(x, z)
	idx := row*g.cols + col
	g.cells[idx] = append(g.cells[idx], id)
}

// QueryRadius returns ids of entities in every cell touched by the circle
// around (cx, cz). The caller must do the exact test (narrow phase).
//
// The returned slice is reused on the next call.
func (g *Grid) QueryRadius(cx, cz, radius float64) []uint32 {
	g.scratch = g.scratch[:0]
	minCol, minRow := g.colRow(cx-radius, cz-radius)
	maxCol, maxRow := g.colRow(cx+radius, cz+radius)
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[row*g.cols+col]...)
		}
	}
	return g.scratch
}

// Stats contains grid statistics for debugging.
type Stats struct {
	TotalCells    int `json:"totalCells"`
	NonEmptyCells int `json:"nonEmptyCells"`
	TotalEntities int `json:"totalEntities"`
	MaxInCell     int `json:"maxInCell"`
}

// Stats returns occupancy statistics.
func (g *Grid) Stats() Stats {
	s := Stats{TotalCells: len(g.cells)}
	for _, cell := range g.cells {
		n := len(cell)
		s.TotalEntities += n
		if n > s.MaxInCell {
			s.MaxInCell = n
		}
		if n > 0 {
			s.NonEmptyCells++
		}
	}
	return s
}

// Dimensions returns the grid dimensions.
func (g *Grid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}
