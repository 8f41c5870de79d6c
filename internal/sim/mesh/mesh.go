// Package mesh turns declarative region content into the handles the entity
// world attaches. Geometry itself stays behind the handle; the builder only
// resolves models and describes the terrain surface.
package mesh

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"terrastream.ai/internal/sim/catalogs"
	"terrastream.ai/internal/sim/failure"
	"terrastream.ai/internal/sim/terrain/region"
)

var ErrUnknownModel = errors.New("unknown model")

type Terrain struct {
	Handle    string  `json:"handle"`
	Vertices  int     `json:"vertices"`
	Triangles int     `json:"triangles"`
	MinHeight float64 `json:"min_height"`
	MaxHeight float64 `json:"max_height"`
}

// Piece is one placement resolved against the model catalog. Collider is empty
// for models without a physics representation.
type Piece struct {
	Placement      region.Placement   `json:"placement"`
	Kind           catalogs.ModelKind `json:"kind"`
	Visual         string             `json:"visual"`
	Collider       string             `json:"collider,omitempty"`
	ColliderRadius float64            `json:"collider_radius,omitempty"`
}

type Result struct {
	Coord   region.Coord `json:"coord"`
	Terrain Terrain      `json:"terrain"`
	Pieces  []Piece      `json:"pieces"`
}

type Builder struct {
	catalog *catalogs.ModelCatalog
	tracer  trace.Tracer
}

func NewBuilder(catalog *catalogs.ModelCatalog) *Builder {
	if catalog == nil {
		catalog = catalogs.Default()
	}
	return &Builder{catalog: catalog, tracer: otel.Tracer("terrastream.ai/mesh")}
}

// Build is safe to call from worker goroutines. The result depends only on the
// region content.
func (b *Builder) Build(ctx context.Context, r *region.Region) (*Result, error) {
	if r == nil {
		return nil, failure.Wrap(failure.MeshBuild, "build", errors.New("nil region"))
	}
	_, span := b.tracer.Start(ctx, "mesh.build", trace.WithAttributes(
		attribute.Int("x", r.Coord.X),
		attribute.Int("y", r.Coord.Y),
		attribute.Int("placements", len(r.Placements)),
	))
	defer span.End()

	res, err := b.build(ctx, r)
	if err != nil {
		err = failure.Wrap(failure.MeshBuild, "build "+r.Coord.String(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func (b *Builder) build(ctx context.Context, r *region.Region) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := r.Resolution
	if n <= 0 || len(r.Heights) != (n+1)*(n+1) {
		return nil, fmt.Errorf("heightmap has %d nodes for resolution %d", len(r.Heights), n)
	}
	lo, hi := r.MinMax()
	res := &Result{
		Coord: r.Coord,
		Terrain: Terrain{
			Handle:    fmt.Sprintf("terrain/%s/%016x", r.Coord, heightsDigest(r.Heights)),
			Vertices:  (n + 1) * (n + 1),
			Triangles: 2 * n * n,
			MinHeight: lo,
			MaxHeight: hi,
		},
		Pieces: make([]Piece, 0, len(r.Placements)),
	}
	for i, p := range r.Placements {
		def, ok := b.catalog.Lookup(p.Model)
		if !ok {
			return nil, fmt.Errorf("placement %d: %w %q", i, ErrUnknownModel, p.Model)
		}
		if err := checkKind(p.Kind, def.Kind); err != nil {
			return nil, fmt.Errorf("placement %d: %w", i, err)
		}
		piece := Piece{
			Placement: p,
			Kind:      def.Kind,
			Visual:    fmt.Sprintf("visual/%s/%016x", def.ID, p.SubSeed),
		}
		if def.ColliderRadius > 0 {
			piece.Collider = fmt.Sprintf("collider/%s/%016x", def.ID, p.SubSeed)
			piece.ColliderRadius = def.ColliderRadius * p.Scale
		}
		res.Pieces = append(res.Pieces, piece)
	}
	return res, nil
}

// Structures must resolve to buildings and props to nature models.
func checkKind(pk region.PlacementKind, mk catalogs.ModelKind) error {
	switch pk {
	case region.Structure:
		if mk != catalogs.Building {
			return fmt.Errorf("structure placement uses %s model", mk)
		}
	case region.Prop:
		if mk == catalogs.Building {
			return fmt.Errorf("prop placement uses building model")
		}
	default:
		return fmt.Errorf("unknown placement kind %q", pk)
	}
	return nil
}

func heightsDigest(hs []float64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range hs {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
