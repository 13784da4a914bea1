package pathfinder_test

import (
	"testing"

	"github.com/worldsim/worldsim/internal/pathfinder"
	"github.com/worldsim/worldsim/internal/worldmap"
)

func makeGrid(prefix string, rows, cols int) *worldmap.Map {
	m := &worldmap.Map{
		ID:         prefix,
		GridPrefix: prefix,
		Nodes:      map[string]*worldmap.PathNode{},
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			id := nodeID(prefix, r, c)
			m.Nodes[id] = &worldmap.PathNode{
				ID:          id,
				X:           float64(c),
				Y:           float64(r),
				Type:        worldmap.NodeWaypoint,
				ConnectedTo: map[string]struct{}{},
			}
		}
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			n := m.Nodes[nodeID(prefix, r, c)]
			for _, d := range [][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}} {
				nr, nc := r+d[0], c+d[1]
				if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
					continue
				}
				n.ConnectedTo[nodeID(prefix, nr, nc)] = struct{}{}
			}
		}
	}

	return m
}

func nodeID(prefix string, row, col int) string {
	return prefix + "-" + itoa(row) + "-" + itoa(col)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestSameNode(t *testing.T) {
	m := makeGrid("town", 4, 4)

	path := pathfinder.FindPath(m, "town-0-0", "town-0-0", nil)
	if len(path) != 1 || path[0] != "town-0-0" {
		t.Fatalf("wrong path for same node: %v", path)
	}
}

func TestIntraMapWalk(t *testing.T) {
	m := makeGrid("town", 4, 4)

	path := pathfinder.FindPath(m, "town-0-0", "town-1-1", nil)
	if len(path) != 3 {
		t.Fatalf("expected 3-node path, got %d: %v", len(path), path)
	}
	if path[0] != "town-0-0" || path[len(path)-1] != "town-1-1" {
		t.Fatalf("wrong path endpoints: %v", path)
	}
}

func TestUnreachableWhenBlocked(t *testing.T) {
	m := makeGrid("town", 1, 2)

	blocked := map[string]struct{}{"town-0-1": {}}
	path := pathfinder.FindPath(m, "town-0-0", "town-0-1", blocked)
	if path != nil {
		t.Fatalf("expected nil path when destination blocked through only neighbour, got %v", path)
	}
}

func TestCrossMapRouteOrdersSegmentsAndLinksLeadsTo(t *testing.T) {
	a := makeGrid("a", 2, 2)
	b := makeGrid("b", 2, 2)
	c := makeGrid("c", 2, 2)

	a.Nodes["a-entrance-b"] = &worldmap.PathNode{
		ID: "a-entrance-b", Type: worldmap.NodeEntrance,
		ConnectedTo: map[string]struct{}{"a-1-1": {}},
		LeadsTo:     &worldmap.LeadsTo{MapID: "b", NodeID: "b-0-0"},
	}
	a.Nodes["a-1-1"].ConnectedTo["a-entrance-b"] = struct{}{}

	b.Nodes["b-entrance-c"] = &worldmap.PathNode{
		ID: "b-entrance-c", Type: worldmap.NodeEntrance,
		ConnectedTo: map[string]struct{}{"b-1-1": {}},
		LeadsTo:     &worldmap.LeadsTo{MapID: "c", NodeID: "c-0-0"},
	}
	b.Nodes["b-1-1"].ConnectedTo["b-entrance-c"] = struct{}{}

	maps := map[string]*worldmap.Map{"a": a, "b": b, "c": c}

	route := pathfinder.PlanRoute(maps, "a", "a-0-0", "c", "c-1-1", nil)
	if route == nil {
		t.Fatal("expected a route, got nil")
	}
	if len(route.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(route.Segments))
	}

	wantMaps := []string{"a", "b", "c"}
	for i, seg := range route.Segments {
		if seg.MapID != wantMaps[i] {
			t.Fatalf("segment %d: got map %s, want %s", i, seg.MapID, wantMaps[i])
		}
	}

	if route.Segments[0].ExitEntranceID != "a-entrance-b" {
		t.Fatalf("segment 0 should exit via a-entrance-b, got %s", route.Segments[0].ExitEntranceID)
	}
	if route.Segments[1].ExitEntranceID != "b-entrance-c" {
		t.Fatalf("segment 1 should exit via b-entrance-c, got %s", route.Segments[1].ExitEntranceID)
	}
	if route.Segments[2].ExitEntranceID != "" {
		t.Fatalf("final segment should have no exit entrance, got %s", route.Segments[2].ExitEntranceID)
	}
}
