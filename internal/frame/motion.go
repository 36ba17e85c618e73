package frame

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/scheduler"
	"github.com/roach88/playstate/internal/system"
	"github.com/roach88/playstate/internal/world"
)

const (
	PositionName = "position"
	VelocityName = "velocity"
	MotionSystem = "#motion"
)

var (
	Position = ecs.NewComponent[mgl64.Vec2](PositionName)
	Velocity = ecs.NewComponent[mgl64.Vec2](VelocityName)
)

// Motion registers position and velocity components and a system that, on
// every update, moves each entity holding both by velocity * delta seconds.
// Velocity is in units per second. Values decoded from world files ([x, y]
// or {x, y}) are accepted and replaced by mgl64.Vec2 on first move.
func Motion() world.Plugin {
	return func(b *world.Builder) {
		b.WithComponent(PositionName, nil).
			WithComponent(VelocityName, nil).
			WithSystem(system.Static(system.Handle(MotionSystem, integrate)))
	}
}

func integrate(c *scheduler.Context) error {
	if c.Event().Type != EventUpdate {
		return nil
	}
	d, ok := FromPayload(c.Event().Payload)
	if !ok || d.Delta <= 0 {
		return nil
	}
	dt := d.Delta.Seconds()
	for e := range c.Store().QueryByTypes(PositionName, VelocityName) {
		p, okP := Vec2(e.Data[PositionName])
		v, okV := Vec2(e.Data[VelocityName])
		if !okP || !okV {
			continue
		}
		Position.Set(e, p.Add(v.Mul(dt)))
	}
	return nil
}

// Vec2 converts a decoded value ([]any or map with x/y) into a vector.
// World files use it to seed motion components.
func Vec2(v any) (mgl64.Vec2, bool) {
	switch t := v.(type) {
	case mgl64.Vec2:
		return t, true
	case []any:
		if len(t) != 2 {
			return mgl64.Vec2{}, false
		}
		x, ok1 := number(t[0])
		y, ok2 := number(t[1])
		return mgl64.Vec2{x, y}, ok1 && ok2
	case map[string]any:
		x, ok1 := number(t["x"])
		y, ok2 := number(t["y"])
		return mgl64.Vec2{x, y}, ok1 && ok2
	default:
		return mgl64.Vec2{}, false
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
