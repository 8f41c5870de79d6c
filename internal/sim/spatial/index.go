// Package spatial is a uniform-grid spatial hash for radius queries.
package spatial

import (
	"math"
	"sync"

	"terrastream.ai/internal/sim/mathx"
)

type cell struct{ x, y, z int }

// Index buckets keys by grid cell. Queries scan every cell overlapping the
// query's bounding cube, then filter by exact distance.
type Index[K comparable] struct {
	size float64

	mu    sync.RWMutex
	cells map[cell]map[K]struct{}
	pos   map[K]mathx.Vec3
}

func New[K comparable](cellSize float64) *Index[K] {
	if cellSize <= 0 {
		cellSize = 32
	}
	return &Index[K]{
		size:  cellSize,
		cells: map[cell]map[K]struct{}{},
		pos:   map[K]mathx.Vec3{},
	}
}

func (ix *Index[K]) cellOf(p mathx.Vec3) cell {
	return cell{
		x: mathx.FloorDivF(p.X, ix.size),
		y: mathx.FloorDivF(p.Y, ix.size),
		z: mathx.FloorDivF(p.Z, ix.size),
	}
}

func (ix *Index[K]) addLocked(k K, c cell) {
	b := ix.cells[c]
	if b == nil {
		b = map[K]struct{}{}
		ix.cells[c] = b
	}
	b[k] = struct{}{}
}

func (ix *Index[K]) removeLocked(k K, c cell) {
	b := ix.cells[c]
	delete(b, k)
	if len(b) == 0 {
		delete(ix.cells, c)
	}
}

// Insert adds k at p. Inserting a tracked key behaves like Update.
func (ix *Index[K]) Insert(k K, p mathx.Vec3) {
	ix.Update(k, p)
}

// Update records the new position and moves the key between buckets only
// when its cell changed.
func (ix *Index[K]) Update(k K, p mathx.Vec3) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	nc := ix.cellOf(p)
	if old, ok := ix.pos[k]; ok {
		if oc := ix.cellOf(old); oc != nc {
			ix.removeLocked(k, oc)
			ix.addLocked(k, nc)
		}
	} else {
		ix.addLocked(k, nc)
	}
	ix.pos[k] = p
}

func (ix *Index[K]) Remove(k K) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	p, ok := ix.pos[k]
	if !ok {
		return false
	}
	ix.removeLocked(k, ix.cellOf(p))
	delete(ix.pos, k)
	return true
}

func (ix *Index[K]) Position(k K) (mathx.Vec3, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.pos[k]
	return p, ok
}

func (ix *Index[K]) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.pos)
}

// Cells is the number of non-empty buckets.
func (ix *Index[K]) Cells() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.cells)
}

// QueryRadius returns every key within radius of p (inclusive). Order is
// unspecified.
func (ix *Index[K]) QueryRadius(p mathx.Vec3, radius float64) []K {
	if radius < 0 || math.IsNaN(radius) {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	lo := ix.cellOf(mathx.Vec3{X: p.X - radius, Y: p.Y - radius, Z: p.Z - radius})
	hi := ix.cellOf(mathx.Vec3{X: p.X + radius, Y: p.Y + radius, Z: p.Z + radius})
	r2 := radius * radius

	var out []K
	// Sparse worlds: walking the occupied buckets is cheaper than walking a
	// huge empty query cube.
	span := int64(hi.x-lo.x+1) * int64(hi.y-lo.y+1) * int64(hi.z-lo.z+1)
	if span > int64(len(ix.cells)) {
		for c, b := range ix.cells {
			if c.x < lo.x || c.x > hi.x || c.y < lo.y || c.y > hi.y || c.z < lo.z || c.z > hi.z {
				continue
			}
			out = ix.collect(out, b, p, r2)
		}
		return out
	}
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			for z := lo.z; z <= hi.z; z++ {
				if b, ok := ix.cells[cell{x, y, z}]; ok {
					out = ix.collect(out, b, p, r2)
				}
			}
		}
	}
	return out
}

func (ix *Index[K]) collect(out []K, bucket map[K]struct{}, p mathx.Vec3, r2 float64) []K {
	for k := range bucket {
		if ix.pos[k].Dist2(p) <= r2 {
			out = append(out, k)
		}
	}
	return out
}
