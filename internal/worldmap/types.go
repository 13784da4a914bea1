// Package worldmap represents the static, load-time-validated geography of
// the simulation: maps, path nodes, obstacles and the facilities attached to
// them. Maps are immutable once constructed.
package worldmap

import "fmt"

// NodeType enumerates the kinds of PathNode.
type NodeType string

const (
	NodeWaypoint NodeType = "waypoint"
	NodeEntrance NodeType = "entrance"
	NodeSpawn    NodeType = "spawn"
)

// LeadsTo names the node on another map that an entrance node opens onto.
type LeadsTo struct {
	MapID  string
	NodeID string
}

// PathNode is a single navigable location on a Map.
type PathNode struct {
	ID          string
	X, Y        float64
	Type        NodeType
	ConnectedTo map[string]struct{}
	LeadsTo     *LeadsTo
	Label       string
}

// FacilityTag enumerates the kinds of activity a Facility enables.
type FacilityTag string

const (
	TagKitchen    FacilityTag = "kitchen"
	TagRestaurant FacilityTag = "restaurant"
	TagBathroom   FacilityTag = "bathroom"
	TagHotspring  FacilityTag = "hotspring"
	TagBedroom    FacilityTag = "bedroom"
	TagToilet     FacilityTag = "toilet"
	TagWorkspace  FacilityTag = "workspace"
	TagPublic     FacilityTag = "public"
)

// Facility is attached to an Obstacle and enables the actions listed by its tags.
type Facility struct {
	Tags    []FacilityTag
	Owner   string
	Cost    *int
	Quality *int
	Job     string
}

// HasTag reports whether the facility carries the given tag.
func (f *Facility) HasTag(tag FacilityTag) bool {
	if f == nil {
		return false
	}
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ObstacleType enumerates the kinds of Obstacle.
type ObstacleType string

const (
	ObstacleBuilding ObstacleType = "building"
	ObstacleZone     ObstacleType = "zone"
)

// Obstacle is a rectangular region on the tile grid. Buildings exclude nodes
// from pathfinding; zones merely contain nodes and may carry a Facility.
type Obstacle struct {
	ID                       string
	Type                     ObstacleType
	TileRow, TileCol         int
	TileWidth, TileHeight    int
	PixelX, PixelY           float64
	PixelWidth, PixelHeight  float64
	Label                    string
	Facility                 *Facility
}

// ContainsTile reports whether the given tile coordinate lies within the obstacle.
func (o *Obstacle) ContainsTile(row, col int) bool {
	return row >= o.TileRow && row < o.TileRow+o.TileHeight &&
		col >= o.TileCol && col < o.TileCol+o.TileWidth
}

// Map is an immutable, validated geography: a set of nodes connected into a
// navigable graph, plus the obstacles (and facilities) laid over them.
type Map struct {
	ID              string
	Name            string
	Width, Height   int
	BackgroundColor string
	SpawnNodeID     string
	GridPrefix      string

	Nodes     map[string]*PathNode
	Obstacles []*Obstacle
}

// Node returns the node with the given id, or nil.
func (m *Map) Node(id string) *PathNode {
	return m.Nodes[id]
}

// FacilityAt returns the facility attached to the obstacle containing the
// given node, if any.
func (m *Map) FacilityAt(nodeID string) *Facility {
	n, ok := m.Nodes[nodeID]
	if !ok {
		return nil
	}
	row, col := int(n.Y), int(n.X)
	for _, o := range m.Obstacles {
		if o.Facility != nil && o.ContainsTile(row, col) {
			return o.Facility
		}
	}
	return nil
}

// Facilities returns every facility defined on the map, paired with the
// obstacle id it is attached to.
func (m *Map) Facilities() map[string]*Facility {
	out := map[string]*Facility{}
	for _, o := range m.Obstacles {
		if o.Facility != nil {
			out[o.ID] = o.Facility
		}
	}
	return out
}

// ObstacleByID returns the obstacle with the given id, or nil.
func (m *Map) ObstacleByID(id string) *Obstacle {
	for _, o := range m.Obstacles {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// FacilityNode returns a node lying within the tile bounds of the obstacle
// carrying facilityObstacleID, so the Character Simulator has somewhere to
// stand when targeting a facility rather than a bare node id.
func (m *Map) FacilityNode(facilityObstacleID string) (*PathNode, bool) {
	o := m.ObstacleByID(facilityObstacleID)
	if o == nil || o.Facility == nil {
		return nil, false
	}
	for _, n := range m.Nodes {
		row, col := int(n.Y), int(n.X)
		if o.ContainsTile(row, col) {
			return n, true
		}
	}
	return nil, false
}

// Entrances returns every node of type NodeEntrance on the map that has a
// LeadsTo target.
func (m *Map) Entrances() []*PathNode {
	var out []*PathNode
	for _, n := range m.Nodes {
		if n.Type == NodeEntrance && n.LeadsTo != nil {
			out = append(out, n)
		}
	}
	return out
}

func (n *PathNode) String() string {
	return fmt.Sprintf("%s(%s)", n.ID, n.Type)
}
