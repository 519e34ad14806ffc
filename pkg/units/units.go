package units

import "math"

// Speed units selectable for velocity conversions
const (
	SpeedUnitRPM              = 0 // revolutions per minute
	SpeedUnitDegreesPerSecond = 1
)

// Torque values are in permille of the rated torque
const torqueStep = 0.1

// Context holds the scale constants of a drive, derived once at
// initialization.
// When GearRatio is strictly positive, position and velocity are converted
// to the load side, i.e. divided by the gear ratio. Torque is never geared.
type Context struct {
	PulsesPerRevolution uint32
	SpeedUnit           int
	RatedTorque         float64
	GearRatio           float64
	velocityScale       float64
}

func NewContext(pulsesPerRevolution uint32, speedUnit int, ratedTorque float64, gearRatio float64) *Context {
	ctx := &Context{
		PulsesPerRevolution: pulsesPerRevolution,
		SpeedUnit:           speedUnit,
		RatedTorque:         ratedTorque,
		GearRatio:           gearRatio,
		velocityScale:       1.0,
	}
	if pulsesPerRevolution != 0 {
		switch speedUnit {
		case SpeedUnitRPM:
			ctx.velocityScale = 60 / float64(pulsesPerRevolution)
		case SpeedUnitDegreesPerSecond:
			ctx.velocityScale = 360 / float64(pulsesPerRevolution)
		}
	}
	return ctx
}

// Velocity scale selected from the speed unit
func (ctx *Context) VelocityScale() float64 {
	return ctx.velocityScale
}

func (ctx *Context) gear() float64 {
	if ctx.GearRatio > 0 {
		return ctx.GearRatio
	}
	return 1
}

// Convert a velocity in pulses per second to the selected speed unit
func (ctx *Context) VelocityStepToUnit(raw int64) float64 {
	return float64(raw) * ctx.velocityScale / ctx.gear()
}

// Convert a position in pulses to degrees
func (ctx *Context) PositionStepToDegree(raw int64) float64 {
	if ctx.PulsesPerRevolution == 0 {
		return 0
	}
	return float64(raw) / float64(ctx.PulsesPerRevolution) * 360 / ctx.gear()
}

// Convert a torque in permille of the rated torque to Nm
func (ctx *Context) TorqueStepToNm(raw int64) float64 {
	return float64(raw) * torqueStep * ctx.RatedTorque
}

// Convert a velocity in the selected speed unit back to pulses per second
func (ctx *Context) UnitToVelocityStep(value float64) int64 {
	if ctx.velocityScale == 0 {
		return 0
	}
	return int64(math.Round(value * ctx.gear() / ctx.velocityScale))
}

// Convert a position in degrees back to pulses
func (ctx *Context) DegreeToPositionStep(degrees float64) int64 {
	return int64(math.Round(degrees * ctx.gear() / 360 * float64(ctx.PulsesPerRevolution)))
}

// Convert a torque in Nm back to permille of the rated torque
func (ctx *Context) NmToTorqueStep(torque float64) int64 {
	if ctx.RatedTorque == 0 {
		return 0
	}
	return int64(math.Round(torque / (torqueStep * ctx.RatedTorque)))
}
