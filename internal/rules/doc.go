// Package rules implements declarative systems: "when an event of these
// types arrives, for each matching entity, run these actions".
//
// A rule names the event types it reacts to, optionally a payload match,
// a component query or a single target entity, and an ordered action list.
// Actions run once per target entity, or once when the rule has no query
// and no target. A query matching nothing runs no actions.
//
// Action arguments are templates. "${payload.hp}" alone keeps the
// referenced value's type; embedded in a longer string it is formatted.
// References:
//
//	payload.<path>   event payload (structs are viewed through their json tags)
//	event.type       event.id  event.seq
//	entity.id        entity.<component>.<path>
//	params.<path>    world parameters
//	result.ok        result.data  result.error   (last stack action)
package rules
