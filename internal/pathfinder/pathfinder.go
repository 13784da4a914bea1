// Package pathfinder implements intra-map shortest-path search and
// cross-map route planning over the entrance graph. The intra-map algorithm
// is a direct generalisation of the teacher's tile-grid flood fill to an
// arbitrary node/edge graph.
package pathfinder

import (
	"sort"

	"github.com/worldsim/worldsim/internal/worldmap"
)

// FindPath returns the shortest node path from start to end within a single
// map, avoiding blocked node ids, by breadth-first search over ConnectedTo.
// Ties are broken by insertion order into the BFS queue, which is
// deterministic because Map.Nodes iteration order is only ever used to seed
// the queue with a single start node. Returns a one-element slice
// containing just start if start==end, or nil if unreachable.
func FindPath(m *worldmap.Map, start, end string, blocked map[string]struct{}) []string {
	if start == end {
		return []string{start}
	}

	if _, ok := m.Nodes[start]; !ok {
		return nil
	}
	if _, ok := m.Nodes[end]; !ok {
		return nil
	}

	type queued struct {
		id   string
		path []string
	}

	visited := map[string]struct{}{start: {}}
	queue := []queued{{id: start, path: []string{start}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		node := m.Nodes[cur.id]

		// Deterministic neighbour order.
		neighbours := make([]string, 0, len(node.ConnectedTo))
		for n := range node.ConnectedTo {
			neighbours = append(neighbours, n)
		}
		sort.Strings(neighbours)

		for _, n := range neighbours {
			if _, blk := blocked[n]; blk && n != end {
				continue
			}
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}

			next := make([]string, len(cur.path), len(cur.path)+1)
			copy(next, cur.path)
			next = append(next, n)

			if n == end {
				return next
			}

			queue = append(queue, queued{id: n, path: next})
		}
	}

	return nil
}

// RouteSegment is one map-local leg of a cross-map Route.
type RouteSegment struct {
	MapID          string   `json:"mapId"`
	Path           []string `json:"path"`
	ExitEntranceID string   `json:"exitEntranceId,omitempty"` // empty on the final segment
}

// Route is a sequence of RouteSegments crossing zero or more map boundaries.
type Route struct {
	Segments []RouteSegment `json:"segments"`
}

type mapEdge struct {
	toMap     string
	entranceID string
	fromNode  string
	toNode    string
}

// mapGraph returns, for each mapId, the outgoing entrance edges to other
// maps, sorted deterministically by entrance id.
func mapGraph(maps map[string]*worldmap.Map) map[string][]mapEdge {
	graph := map[string][]mapEdge{}
	for id, m := range maps {
		var edges []mapEdge
		for _, n := range m.Entrances() {
			edges = append(edges, mapEdge{
				toMap:      n.LeadsTo.MapID,
				entranceID: n.ID,
				fromNode:   n.ID,
				toNode:     n.LeadsTo.NodeID,
			})
		}
		sort.Slice(edges, func(i, j int) bool { return edges[i].entranceID < edges[j].entranceID })
		graph[id] = edges
	}
	return graph
}

// PlanRoute finds the shortest sequence of maps (BFS over the entrance
// graph, lexicographically first among ties under deterministic entrance
// ordering) from fromMap to toMap, then resolves an intra-map path for each
// leg. Returns nil if any leg is unreachable.
func PlanRoute(maps map[string]*worldmap.Map, fromMap, fromNode, toMap, toNode string, blocked map[string]map[string]struct{}) *Route {
	if fromMap == toMap {
		blk := blocked[fromMap]
		path := FindPath(maps[fromMap], fromNode, toNode, blk)
		if path == nil {
			return nil
		}
		return &Route{Segments: []RouteSegment{{MapID: fromMap, Path: path}}}
	}

	graph := mapGraph(maps)

	type step struct {
		mapID    string
		viaEntry string // entrance id used to arrive here
		viaNode  string // node id used to arrive here (the leadsTo target)
		prev     int    // index into trail
	}

	visitedMaps := map[string]struct{}{fromMap: {}}
	trail := []step{{mapID: fromMap, prev: -1}}
	queue := []int{0}

	var foundIdx = -1
	for len(queue) > 0 && foundIdx < 0 {
		idx := queue[0]
		queue = queue[1:]
		cur := trail[idx]

		for _, e := range graph[cur.mapID] {
			if _, seen := visitedMaps[e.toMap]; seen {
				continue
			}
			visitedMaps[e.toMap] = struct{}{}
			trail = append(trail, step{mapID: e.toMap, viaEntry: e.entranceID, viaNode: e.toNode, prev: idx})
			newIdx := len(trail) - 1
			if e.toMap == toMap {
				foundIdx = newIdx
				break
			}
			queue = append(queue, newIdx)
		}
	}

	if foundIdx < 0 {
		return nil
	}

	// Backtrace the map sequence.
	var mapSeq []step
	for i := foundIdx; i >= 0; i = trail[i].prev {
		mapSeq = append([]step{trail[i]}, mapSeq...)
		if trail[i].prev == -1 {
			break
		}
	}

	segments := make([]RouteSegment, 0, len(mapSeq))
	entryNode := fromNode
	for i, s := range mapSeq {
		m := maps[s.mapID]

		var segEnd string
		var exitEntrance string
		if i == len(mapSeq)-1 {
			segEnd = toNode
		} else {
			exitEntrance = nextExitEntrance(graph, s.mapID, mapSeq[i+1].mapID)
			segEnd = exitEntrance
		}

		blk := blocked[s.mapID]
		path := FindPath(m, entryNode, segEnd, blk)
		if path == nil {
			return nil
		}

		segments = append(segments, RouteSegment{MapID: s.mapID, Path: path, ExitEntranceID: exitEntrance})

		if i+1 < len(mapSeq) {
			entryNode = mapSeq[i+1].viaNode
		}
	}

	return &Route{Segments: segments}
}

func nextExitEntrance(graph map[string][]mapEdge, fromMap, toMap string) string {
	for _, e := range graph[fromMap] {
		if e.toMap == toMap {
			return e.entranceID
		}
	}
	return ""
}
