package action

import (
	"fmt"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/worldmap"
)

// PreconditionError explains why an action's requirements were not met.
// The Character Simulator treats this as a decision rejection, not an
// ActionExecutionError -- see §4.5 failure semantics.
type PreconditionError struct {
	ActionID string
	Reason   string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("action %s: %s", e.ActionID, e.Reason)
}

// Context gathers what CheckPreconditions needs to evaluate a Definition's
// Requirements against the world at the moment of the decision.
type Context struct {
	Character *character.Character
	Facility  *worldmap.Facility
	NearNPCID string // non-empty when an NPC is adjacent on the navigation graph
}

// CheckPreconditions evaluates def.Requirements against ctx, returning a
// *PreconditionError on the first failing requirement, or nil if all are
// satisfied.
func CheckPreconditions(def *Definition, ctx Context) error {
	req := def.Requirements

	if len(req.FacilityTags) > 0 {
		if ctx.Facility == nil {
			return &PreconditionError{def.ActionID, "no facility at this location"}
		}
		ok := false
		for _, tag := range req.FacilityTags {
			if ctx.Facility.HasTag(tag) {
				ok = true
				break
			}
		}
		if !ok {
			return &PreconditionError{def.ActionID, "facility lacks a required tag"}
		}
	}

	if req.Ownership {
		if ctx.Facility == nil || ctx.Facility.Owner != ctx.Character.ID {
			return &PreconditionError{def.ActionID, "facility not owned by character"}
		}
	}

	for stat, min := range req.MinStats {
		v, ok := ctx.Character.Stats.Get(stat)
		if !ok || v < min {
			return &PreconditionError{def.ActionID, fmt.Sprintf("stat %s below required minimum %v", stat, min)}
		}
	}

	if req.NearNPC && ctx.NearNPCID == "" {
		return &PreconditionError{def.ActionID, "no NPC adjacent"}
	}

	if req.Employment {
		emp := ctx.Character.Employment
		if emp == nil || ctx.Facility == nil || ctx.Facility.Job != emp.Job {
			return &PreconditionError{def.ActionID, "character not employed for this facility's job"}
		}
	}

	return nil
}

// ResolveMoney computes the money delta to apply at action completion for an
// action, resolving the symbolic "hourlyWage" against the
// character's employment and the actual minutes the action ran.
func ResolveMoney(delta *MoneyDelta, emp *character.Employment, minutesRun float64) int {
	if delta == nil {
		return 0
	}
	if delta.HourlyWage {
		if emp == nil {
			return 0
		}
		return int(emp.HourlyWage / 60 * minutesRun)
	}
	if delta.Literal != nil {
		return *delta.Literal
	}
	return 0
}
