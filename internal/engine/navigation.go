package engine

import (
	"math"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/decide"
	"github.com/worldsim/worldsim/internal/pathfinder"
	"github.com/worldsim/worldsim/internal/worldmap"
	"github.com/worldsim/worldsim/internal/worldtime"
)

// routeCharacterTo plans a path (same-map BFS or cross-map route) from c's
// current location to (mapID, nodeID) and starts navigation toward it.
// Reports whether a route was found.
func (e *Engine) routeCharacterTo(c *character.Character, mapID, nodeID string, now worldtime.WorldTime) bool {
	if mapID == c.CurrentMapID {
		path := pathfinder.FindPath(e.maps[mapID], c.CurrentNodeID, nodeID, e.blockedNodes(mapID))
		if path == nil {
			return false
		}
		c.CrossMapNavigation = nil
		e.startNavigation(c, mapID, path, now)
		return true
	}

	route := pathfinder.PlanRoute(e.maps, c.CurrentMapID, c.CurrentNodeID, mapID, nodeID, e.blockedNodesAllMaps())
	if route == nil {
		return false
	}
	c.CrossMapNavigation = &character.CrossMapNavigation{Route: route, CurrentSegmentIndex: 0}
	e.startNavigation(c, c.CurrentMapID, route.Segments[0].Path, now)
	return true
}

// startNavigation begins walking path within mapID. A single-element path
// (already at the destination) is resolved immediately rather than entering
// navigation.isMoving, since there is no hop to animate.
func (e *Engine) startNavigation(c *character.Character, mapID string, path []string, now worldtime.WorldTime) {
	if len(path) <= 1 {
		e.arriveAtFinalNode(c, now)
		return
	}

	m := e.maps[mapID]
	start := nodePos(m, path[0])
	target := nodePos(m, path[1])

	c.Navigation = character.Navigation{
		IsMoving:         true,
		Path:             path,
		CurrentPathIndex: 0,
		Progress:         0,
		StartPosition:    &start,
		TargetPosition:   &target,
	}
	c.Position = start
}

func nodePos(m *worldmap.Map, nodeID string) character.Position {
	n := m.Node(nodeID)
	if n == nil {
		return character.Position{}
	}
	return character.Position{X: n.X, Y: n.Y}
}

func distance(a, b character.Position) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// tickNavigation advances one character's movement by one tick's worth of
// world time, per §4.4's progress formula.
func (e *Engine) tickNavigation(c *character.Character, now worldtime.WorldTime) {
	if c.Navigation.StartPosition == nil || c.Navigation.TargetPosition == nil {
		e.arriveAtFinalNode(c, now)
		return
	}

	segDist := distance(*c.Navigation.StartPosition, *c.Navigation.TargetPosition)
	deltaSeconds := e.cfg.WorldMinutesPerTick * 60

	if segDist <= 0 {
		c.Navigation.Progress = 1
	} else {
		c.Navigation.Progress += deltaSeconds * e.cfg.MovementSpeed / segDist
	}

	if c.Navigation.Progress < 1 {
		return
	}

	c.Position = *c.Navigation.TargetPosition
	c.Navigation.CurrentPathIndex++
	arrivedNodeID := c.Navigation.Path[c.Navigation.CurrentPathIndex]
	c.CurrentNodeID = arrivedNodeID

	atFinalOfSegment := int(c.Navigation.CurrentPathIndex) == len(c.Navigation.Path)-1
	if !atFinalOfSegment {
		m := e.maps[c.CurrentMapID]
		start := c.Position
		target := nodePos(m, c.Navigation.Path[c.Navigation.CurrentPathIndex+1])
		c.Navigation.StartPosition = &start
		c.Navigation.TargetPosition = &target
		c.Navigation.Progress = 0
		return
	}

	m := e.maps[c.CurrentMapID]
	node := m.Node(arrivedNodeID)

	if node != nil && node.Type == worldmap.NodeEntrance && node.LeadsTo != nil && c.CrossMapNavigation != nil {
		e.crossMapTransition(c, node, now)
		return
	}

	e.arriveAtFinalNode(c, now)
}

// crossMapTransition moves c onto the next segment of its Route, setting
// WorldState.Transition for this tick so clients can animate the fade (§4.2).
// The map move itself completes within the single tick, per §4.4.
func (e *Engine) crossMapTransition(c *character.Character, entrance *worldmap.PathNode, now worldtime.WorldTime) {
	fromMap := c.CurrentMapID
	toMap := entrance.LeadsTo.MapID

	e.world.Transition = &Transition{CharacterID: c.ID, FromMapID: fromMap, ToMapID: toMap}

	c.CurrentMapID = toMap
	c.CurrentNodeID = entrance.LeadsTo.NodeID

	c.CrossMapNavigation.CurrentSegmentIndex++
	idx := c.CrossMapNavigation.CurrentSegmentIndex
	route := c.CrossMapNavigation.Route

	if idx >= len(route.Segments) {
		e.arriveAtFinalNode(c, now)
		return
	}

	seg := route.Segments[idx]
	m := e.maps[toMap]
	start := nodePos(m, seg.Path[0])

	c.Navigation.Path = seg.Path
	c.Navigation.CurrentPathIndex = 0
	c.Navigation.Progress = 0
	c.Position = start

	if len(seg.Path) > 1 {
		target := nodePos(m, seg.Path[1])
		c.Navigation.StartPosition = &start
		c.Navigation.TargetPosition = &target
		return
	}

	// Single-node final segment: already at the destination node.
	e.arriveAtFinalNode(c, now)
}

// arriveAtFinalNode clears navigation state and, if a pending action was
// queued, atomically promotes it into the action pipeline (§4.4).
func (e *Engine) arriveAtFinalNode(c *character.Character, now worldtime.WorldTime) {
	c.Navigation = character.Navigation{}
	c.CrossMapNavigation = nil

	if c.PendingAction == nil {
		return
	}

	pending := c.PendingAction
	c.PendingAction = nil

	m := e.maps[c.CurrentMapID]
	var facility *worldmap.Facility
	if pending.FacilityID != "" {
		if obs := m.ObstacleByID(pending.FacilityID); obs != nil {
			facility = obs.Facility
		}
	}

	decision := decide.Decision{
		Type:             decide.TypeAction,
		ActionID:         pending.ActionID,
		TargetFacilityID: pending.FacilityID,
		TargetNPCID:      pending.TargetNPCID,
	}
	e.enterAction(c, decision, facility, pending.FacilityID, now)
}

// blockedNodes returns the set of node ids occupied by NPCs on mapID.
func (e *Engine) blockedNodes(mapID string) map[string]struct{} {
	blocked := map[string]struct{}{}
	for _, n := range e.world.NPCs {
		if n.MapID == mapID {
			blocked[n.CurrentNodeID] = struct{}{}
		}
	}
	return blocked
}

func (e *Engine) blockedNodesAllMaps() map[string]map[string]struct{} {
	out := map[string]map[string]struct{}{}
	for mapID := range e.maps {
		out[mapID] = e.blockedNodes(mapID)
	}
	return out
}
