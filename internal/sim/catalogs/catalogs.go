package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type ModelKind string

const (
	Tree     ModelKind = "TREE"
	Rock     ModelKind = "ROCK"
	Building ModelKind = "BUILDING"
)

type ModelDef struct {
	ID   string    `json:"id"`
	Kind ModelKind `json:"kind"`

	// ColliderRadius is in world units at scale 1; zero means the model has
	// no physics representation.
	ColliderRadius float64 `json:"collider_radius,omitempty"`
	Height         float64 `json:"height"`
}

type ModelCatalog struct {
	Palette []string
	Index   map[string]uint16
	Defs    map[string]ModelDef
	Digest  string
}

func (c *ModelCatalog) Lookup(id string) (ModelDef, bool) {
	d, ok := c.Defs[id]
	return d, ok
}

// Load reads models.json from configDir.
func Load(configDir string) (*ModelCatalog, error) {
	raw, err := os.ReadFile(filepath.Join(configDir, "models.json"))
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*ModelCatalog, error) {
	var defs []ModelDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("models.json: %w", err)
	}
	return build(defs, sha256Hex(raw))
}

// Default is the built-in catalog covering every model the terrain
// generators emit.
func Default() *ModelCatalog {
	defs := []ModelDef{
		{ID: "tree_oak", Kind: Tree, ColliderRadius: 0.6, Height: 9},
		{ID: "tree_birch", Kind: Tree, ColliderRadius: 0.4, Height: 10},
		{ID: "tree_pine", Kind: Tree, ColliderRadius: 0.5, Height: 12},
		{ID: "tree_spruce", Kind: Tree, ColliderRadius: 0.5, Height: 14},
		{ID: "tree_jungle", Kind: Tree, ColliderRadius: 0.9, Height: 18},
		{ID: "tree_palm", Kind: Tree, ColliderRadius: 0.4, Height: 8},
		{ID: "tree_acacia", Kind: Tree, ColliderRadius: 0.5, Height: 7},
		{ID: "tree_willow", Kind: Tree, ColliderRadius: 0.7, Height: 9},
		{ID: "tree_dead", Kind: Tree, ColliderRadius: 0.3, Height: 6},
		{ID: "rock_small", Kind: Rock, Height: 0.6},
		{ID: "rock_large", Kind: Rock, ColliderRadius: 1.8, Height: 2.5},
		{ID: "rock_sandstone", Kind: Rock, ColliderRadius: 1.2, Height: 1.6},
		{ID: "rock_basalt", Kind: Rock, ColliderRadius: 1.5, Height: 2},
		{ID: "house_large", Kind: Building, ColliderRadius: 6, Height: 9},
		{ID: "house_small", Kind: Building, ColliderRadius: 4, Height: 6},
		{ID: "hall", Kind: Building, ColliderRadius: 8, Height: 11},
		{ID: "tower", Kind: Building, ColliderRadius: 3, Height: 16},
		{ID: "market", Kind: Building, ColliderRadius: 7, Height: 5},
		{ID: "hut", Kind: Building, ColliderRadius: 3, Height: 4},
		{ID: "barn", Kind: Building, ColliderRadius: 6, Height: 7},
		{ID: "well", Kind: Building, ColliderRadius: 1.2, Height: 2},
		{ID: "tent", Kind: Building, ColliderRadius: 2, Height: 3},
		{ID: "watchtower", Kind: Building, ColliderRadius: 2.5, Height: 12},
	}
	raw, _ := json.Marshal(defs)
	c, err := build(defs, sha256Hex(raw))
	if err != nil {
		panic(err)
	}
	return c
}

func build(defs []ModelDef, digest string) (*ModelCatalog, error) {
	out := &ModelCatalog{Defs: map[string]ModelDef{}, Digest: digest}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("models.json: empty id")
		}
		switch d.Kind {
		case Tree, Rock, Building:
		default:
			return nil, fmt.Errorf("models.json: %s: bad kind %q", d.ID, d.Kind)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return nil, fmt.Errorf("models.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	return out, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
