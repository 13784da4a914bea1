package worldmap

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// MapLoadError wraps any failure to parse or validate maps.json, per the
// error table: initialisation errors of this kind abort startup.
type MapLoadError struct {
	MapID string
	Err   error
}

func (e *MapLoadError) Error() string {
	if e.MapID != "" {
		return fmt.Sprintf("map %q: %v", e.MapID, e.Err)
	}
	return fmt.Sprintf("map config: %v", e.Err)
}

func (e *MapLoadError) Unwrap() error { return e.Err }

// mapsSchema is the JSON Schema for the maps.json wire shape described in
// SPEC_FULL/§6. It is intentionally permissive on numeric ranges; the
// structural invariants it cannot express (dangling ids, obstacle-contains-
// node, minimum obstacle size) are checked afterwards in buildMap and
// ValidateMap.
const mapsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "name", "width", "height", "spawnNodeId", "grid"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "name": {"type": "string"},
      "width": {"type": "integer", "minimum": 1},
      "height": {"type": "integer", "minimum": 1},
      "backgroundColor": {"type": "string", "pattern": "^#[0-9a-fA-F]{6}$"},
      "spawnNodeId": {"type": "string"},
      "grid": {
        "type": "object",
        "required": ["prefix", "cols", "rows"],
        "properties": {
          "prefix": {"type": "string"},
          "cols": {"type": "integer", "minimum": 1},
          "rows": {"type": "integer", "minimum": 1}
        }
      },
      "labels": {"type": "array"},
      "entrances": {"type": "array"},
      "obstacles": {"type": "array"}
    }
  }
}`

type rawLeadsTo struct {
	MapID  string `json:"mapId"`
	NodeID string `json:"nodeId"`
}

type rawLabel struct {
	NodeID string   `json:"nodeId"`
	Label  string   `json:"label"`
	Type   NodeType `json:"type,omitempty"`
}

type rawEntrance struct {
	ID                string     `json:"id"`
	Row               int        `json:"row"`
	Col               int        `json:"col"`
	ConnectedNodeIDs  []string   `json:"connectedNodeIds"`
	LeadsTo           rawLeadsTo `json:"leadsTo"`
	Label             string     `json:"label"`
}

type rawFacility struct {
	Tags    []FacilityTag `json:"tags"`
	Owner   string        `json:"owner,omitempty"`
	Cost    *int          `json:"cost,omitempty"`
	Quality *int          `json:"quality,omitempty"`
	Job     string        `json:"job,omitempty"`
}

type rawObstacle struct {
	ID         string       `json:"id,omitempty"`
	Row        int          `json:"row"`
	Col        int          `json:"col"`
	TileWidth  int          `json:"tileWidth"`
	TileHeight int          `json:"tileHeight"`
	Type       ObstacleType `json:"type,omitempty"`
	Label      string       `json:"label,omitempty"`
	Facility   *rawFacility `json:"facility,omitempty"`
	Door       *struct {
		Side  string `json:"side"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	} `json:"door,omitempty"`
	WallSides []string `json:"wallSides,omitempty"`
}

type rawGrid struct {
	Prefix string `json:"prefix"`
	Cols   int    `json:"cols"`
	Rows   int    `json:"rows"`
}

type rawMap struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	BackgroundColor string        `json:"backgroundColor"`
	SpawnNodeID     string        `json:"spawnNodeId"`
	Grid            rawGrid       `json:"grid"`
	Labels          []rawLabel    `json:"labels"`
	Entrances       []rawEntrance `json:"entrances"`
	Obstacles       []rawObstacle `json:"obstacles"`
}

const (
	minBuildingTiles = 2
	minZoneTiles     = 4
)

var validWallSides = map[string]struct{}{"north": {}, "south": {}, "east": {}, "west": {}}

// LoadMaps parses and validates maps.json content, returning one Map per
// entry keyed by id.
func LoadMaps(data []byte) (map[string]*Map, error) {
	schemaLoader := gojsonschema.NewStringLoader(mapsSchema)
	docLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, &MapLoadError{Err: fmt.Errorf("schema validation: %w", err)}
	}
	if !result.Valid() {
		return nil, &MapLoadError{Err: fmt.Errorf("schema validation failed: %v", result.Errors())}
	}

	var raws []rawMap
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, &MapLoadError{Err: fmt.Errorf("decode maps.json: %w", err)}
	}

	maps := make(map[string]*Map, len(raws))
	for _, r := range raws {
		m, err := buildMap(r)
		if err != nil {
			return nil, &MapLoadError{MapID: r.ID, Err: err}
		}
		maps[m.ID] = m
	}

	for _, m := range maps {
		if err := ValidateMap(m, maps); err != nil {
			return nil, &MapLoadError{MapID: m.ID, Err: err}
		}
	}

	return maps, nil
}

func buildMap(r rawMap) (*Map, error) {
	m := &Map{
		ID:              r.ID,
		Name:            r.Name,
		Width:           r.Width,
		Height:          r.Height,
		BackgroundColor: r.BackgroundColor,
		SpawnNodeID:     r.SpawnNodeID,
		GridPrefix:      r.Grid.Prefix,
		Nodes:           map[string]*PathNode{},
	}

	// Grid waypoint nodes: <prefix>-<row>-<col>, 4-neighbour connectivity.
	for row := 0; row < r.Grid.Rows; row++ {
		for col := 0; col < r.Grid.Cols; col++ {
			id := fmt.Sprintf("%s-%d-%d", r.Grid.Prefix, row, col)
			m.Nodes[id] = &PathNode{
				ID:          id,
				X:           float64(col),
				Y:           float64(row),
				Type:        NodeWaypoint,
				ConnectedTo: map[string]struct{}{},
			}
		}
	}
	for row := 0; row < r.Grid.Rows; row++ {
		for col := 0; col < r.Grid.Cols; col++ {
			id := fmt.Sprintf("%s-%d-%d", r.Grid.Prefix, row, col)
			n := m.Nodes[id]
			for _, d := range [][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}} {
				nr, nc := row+d[0], col+d[1]
				if nr < 0 || nr >= r.Grid.Rows || nc < 0 || nc >= r.Grid.Cols {
					continue
				}
				n.ConnectedTo[fmt.Sprintf("%s-%d-%d", r.Grid.Prefix, nr, nc)] = struct{}{}
			}
		}
	}

	for _, l := range r.Labels {
		n, ok := m.Nodes[l.NodeID]
		if !ok {
			return nil, fmt.Errorf("label references unknown node %q", l.NodeID)
		}
		n.Label = l.Label
		if l.Type != "" {
			n.Type = l.Type
		}
	}

	for _, e := range r.Entrances {
		n := &PathNode{
			ID:          e.ID,
			X:           float64(e.Col),
			Y:           float64(e.Row),
			Type:        NodeEntrance,
			ConnectedTo: map[string]struct{}{},
			Label:       e.Label,
		}
		if e.LeadsTo.MapID != "" {
			n.LeadsTo = &LeadsTo{MapID: e.LeadsTo.MapID, NodeID: e.LeadsTo.NodeID}
		}
		for _, c := range e.ConnectedNodeIDs {
			n.ConnectedTo[c] = struct{}{}
			if other, ok := m.Nodes[c]; ok {
				other.ConnectedTo[n.ID] = struct{}{}
			}
		}
		m.Nodes[n.ID] = n
	}

	for i, o := range r.Obstacles {
		obType := o.Type
		if obType == "" {
			obType = ObstacleBuilding
		}
		if obType != ObstacleBuilding && obType != ObstacleZone {
			return nil, fmt.Errorf("obstacle %d: invalid type %q", i, obType)
		}

		if obType == ObstacleBuilding && (o.TileWidth < minBuildingTiles || o.TileHeight < minBuildingTiles) {
			return nil, fmt.Errorf("obstacle %d: building smaller than %dx%d", i, minBuildingTiles, minBuildingTiles)
		}
		if obType == ObstacleZone && (o.TileWidth < minZoneTiles || o.TileHeight < minZoneTiles) {
			return nil, fmt.Errorf("obstacle %d: zone smaller than %dx%d", i, minZoneTiles, minZoneTiles)
		}

		if o.Door != nil {
			wallLen := o.TileWidth
			if o.Door.Side == "north" || o.Door.Side == "south" {
				wallLen = o.TileWidth
			} else {
				wallLen = o.TileHeight
			}
			if o.Door.Start < 0 || o.Door.End > wallLen || o.Door.End-o.Door.Start < 2 {
				return nil, fmt.Errorf("obstacle %d: invalid door range [%d,%d) on wall of length %d", i, o.Door.Start, o.Door.End, wallLen)
			}
		}

		for _, w := range o.WallSides {
			if _, ok := validWallSides[w]; !ok {
				return nil, fmt.Errorf("obstacle %d: invalid wallSides value %q", i, w)
			}
		}

		ob := &Obstacle{
			ID:         o.ID,
			Type:       obType,
			TileRow:    o.Row,
			TileCol:    o.Col,
			TileWidth:  o.TileWidth,
			TileHeight: o.TileHeight,
			PixelX:     float64(o.Col),
			PixelY:     float64(o.Row),
			PixelWidth: float64(o.TileWidth),
			PixelHeight: float64(o.TileHeight),
			Label:      o.Label,
		}
		if ob.ID == "" {
			ob.ID = fmt.Sprintf("%s-obstacle-%d", r.ID, i)
		}
		if o.Facility != nil {
			ob.Facility = &Facility{
				Tags:    o.Facility.Tags,
				Owner:   o.Facility.Owner,
				Cost:    o.Facility.Cost,
				Quality: o.Facility.Quality,
				Job:     o.Facility.Job,
			}
		}
		m.Obstacles = append(m.Obstacles, ob)
	}

	return m, nil
}

// ValidateMap checks the cross-referential invariants of §3/§6 that cannot
// be expressed in the JSON Schema: spawnNodeId resolution, connectedTo
// symmetry, no node strictly inside a building obstacle, and entrance
// leadsTo targets resolving against the other maps (when already loaded).
func ValidateMap(m *Map, allMaps map[string]*Map) error {
	if _, ok := m.Nodes[m.SpawnNodeID]; !ok {
		return fmt.Errorf("spawnNodeId %q does not resolve", m.SpawnNodeID)
	}

	for _, n := range m.Nodes {
		for c := range n.ConnectedTo {
			other, ok := m.Nodes[c]
			if !ok {
				return fmt.Errorf("node %q connects to unknown node %q", n.ID, c)
			}
			if _, back := other.ConnectedTo[n.ID]; !back {
				return fmt.Errorf("connectedTo not symmetric between %q and %q", n.ID, c)
			}
		}
	}

	for _, o := range m.Obstacles {
		if o.Type != ObstacleBuilding {
			continue
		}
		for _, n := range m.Nodes {
			if o.ContainsTile(int(n.Y), int(n.X)) {
				return fmt.Errorf("node %q lies inside building obstacle %q", n.ID, o.ID)
			}
		}
	}

	if allMaps != nil {
		for _, n := range m.Nodes {
			if n.Type != NodeEntrance || n.LeadsTo == nil {
				continue
			}
			if n.LeadsTo.MapID == "" {
				continue
			}
			target, ok := allMaps[n.LeadsTo.MapID]
			if !ok {
				return fmt.Errorf("entrance %q leads to unknown map %q", n.ID, n.LeadsTo.MapID)
			}
			if _, ok := target.Nodes[n.LeadsTo.NodeID]; !ok {
				return fmt.Errorf("entrance %q leads to unknown node %q on map %q", n.ID, n.LeadsTo.NodeID, n.LeadsTo.MapID)
			}
		}
	}

	return nil
}
