package engine

import (
	"sort"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/decide"
	"github.com/worldsim/worldsim/internal/worldmap"
	"github.com/worldsim/worldsim/internal/worldtime"
)

// buildContext assembles everything a Decider may consult to produce a
// Decision for c, per §4.7: the character's immediate surroundings, what it
// could reach within NearbyMapHops, and its persisted history/memories.
func (e *Engine) buildContext(c *character.Character, now worldtime.WorldTime) decide.BehaviorContext {
	m := e.maps[c.CurrentMapID]
	facility := m.FacilityAt(c.CurrentNodeID)

	currentFacilities := e.facilityInfos(m)
	availableActions := e.availableActionsFor(facility)

	hops := e.nearbyMapHops(c.CurrentMapID)

	var nearbyMaps []string
	for mapID := range hops {
		if mapID == c.CurrentMapID {
			continue
		}
		nearbyMaps = append(nearbyMaps, mapID)
	}
	sort.Strings(nearbyMaps)

	var nearbyFacilities []decide.NearbyFacility
	for _, mapID := range nearbyMaps {
		for _, fi := range e.facilityInfos(e.maps[mapID]) {
			nearbyFacilities = append(nearbyFacilities, decide.NearbyFacility{
				FacilityInfo: fi,
				MapID:        mapID,
				HopDistance:  hops[mapID],
			})
		}
	}

	var nearbyNPCs []decide.NearbyNPC
	for _, n := range e.world.NPCs {
		if n.MapID == c.CurrentMapID {
			nearbyNPCs = append(nearbyNPCs, decide.NearbyNPC{ID: n.ID, Name: n.Name, HopDistance: 0})
			continue
		}
		if d, ok := hops[n.MapID]; ok {
			nearbyNPCs = append(nearbyNPCs, decide.NearbyNPC{ID: n.ID, Name: n.Name, HopDistance: d})
		}
	}
	sort.Slice(nearbyNPCs, func(i, j int) bool { return nearbyNPCs[i].ID < nearbyNPCs[j].ID })

	todayActions, _ := e.deps.Store.LoadActionHistoryForDay(c.ID, now.Day)
	midTermMemories, _ := e.deps.Store.LoadActiveMidTermMemories(c.ID, now.Day)
	schedule := e.scheduleFor(c.ID, now.Day)

	return decide.BehaviorContext{
		Character:            c,
		Now:                  now,
		Schedule:             schedule,
		AvailableActions:     availableActions,
		CurrentMapFacilities: currentFacilities,
		NearbyMaps:           nearbyMaps,
		NearbyFacilities:     nearbyFacilities,
		NearbyNPCs:           nearbyNPCs,
		TodayActions:         todayActions,
		MidTermMemories:      midTermMemories,
	}
}

// availableActionsFor returns the sorted ids of every catalogue action whose
// requirements name neither a facility tag nor an adjacent NPC (always
// available, e.g. "thinking") or whose facility tag requirement is met by
// facility. Actions that need an adjacent NPC (e.g. "talk") are not listed.
func (e *Engine) availableActionsFor(facility *worldmap.Facility) []string {
	var out []string
	for id, def := range e.cfg.Catalogue {
		req := def.Requirements
		if len(req.FacilityTags) == 0 && !req.NearNPC {
			out = append(out, id)
			continue
		}
		for _, tag := range req.FacilityTags {
			if facility.HasTag(tag) {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// actionsForFacility lists every catalogue action facility satisfies, sorted.
func (e *Engine) actionsForFacility(facility *worldmap.Facility) []string {
	var out []string
	for id, def := range e.cfg.Catalogue {
		for _, tag := range def.Requirements.FacilityTags {
			if facility.HasTag(tag) {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func (e *Engine) facilityInfos(m *worldmap.Map) []decide.FacilityInfo {
	if m == nil {
		return nil
	}
	var out []decide.FacilityInfo
	for id, fac := range m.Facilities() {
		tags := make([]string, len(fac.Tags))
		for i, t := range fac.Tags {
			tags[i] = string(t)
		}
		out = append(out, decide.FacilityInfo{ID: id, Tags: tags, AvailableActions: e.actionsForFacility(fac)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// nearbyMapHops runs a breadth-first search over the entrance graph starting
// at startMapID, bounded by NearbyMapHops, returning each reachable map's hop
// distance (startMapID itself included at distance 0).
func (e *Engine) nearbyMapHops(startMapID string) map[string]int {
	hops := map[string]int{startMapID: 0}
	frontier := []string{startMapID}

	for depth := 1; depth <= e.cfg.NearbyMapHops && len(frontier) > 0; depth++ {
		var next []string
		for _, mapID := range frontier {
			m := e.maps[mapID]
			if m == nil {
				continue
			}
			for _, entrance := range m.Entrances() {
				toMap := entrance.LeadsTo.MapID
				if _, seen := hops[toMap]; seen {
					continue
				}
				hops[toMap] = depth
				next = append(next, toMap)
			}
		}
		frontier = next
	}

	return hops
}
