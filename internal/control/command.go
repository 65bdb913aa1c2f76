// Package control applies configuration commands from the wireless
// configuration collaborator to the core state. Commands are queued while
// the device sleeps and applied in one session on an external wake,
// strictly between timeline appends.
package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chrissnell/barograph/internal/rescale"
	"github.com/chrissnell/barograph/internal/types"
)

// ErrInvalidCommand wraps every rejected command.
var ErrInvalidCommand = errors.New("invalid command")

// MaxPressureCorrection bounds the pressure correction value in hPa.
const MaxPressureCorrection = 300

type Op int

const (
	OpInvert Op = iota + 1
	OpSetPressureCorrection
	OpSetPressureCorrectionValue
	OpSetTimeRange
	OpSetGraphicsMode
	OpRescale
	OpExit
)

var opNames = map[Op]string{
	OpInvert:                     "invert",
	OpSetPressureCorrection:      "correction",
	OpSetPressureCorrectionValue: "correction-value",
	OpSetTimeRange:               "time-range",
	OpSetGraphicsMode:            "graphics",
	OpRescale:                    "rescale",
	OpExit:                       "exit",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Command is one configuration request. Only the field matching Op is
// meaningful.
type Command struct {
	Op        Op
	Enabled   bool
	Value     float32
	Hours     uint32
	Mode      types.GraphicsMode
	Transform rescale.Transform
}

func Invert() Command { return Command{Op: OpInvert} }

func SetPressureCorrection(on bool) Command {
	return Command{Op: OpSetPressureCorrection, Enabled: on}
}

func SetPressureCorrectionValue(hPa float32) Command {
	return Command{Op: OpSetPressureCorrectionValue, Value: hPa}
}

func SetTimeRange(hours uint32) Command {
	return Command{Op: OpSetTimeRange, Hours: hours}
}

func SetGraphicsMode(m types.GraphicsMode) Command {
	return Command{Op: OpSetGraphicsMode, Mode: m}
}

func Rescale(tr rescale.Transform) Command {
	return Command{Op: OpRescale, Transform: tr}
}

func Exit() Command { return Command{Op: OpExit} }

func (c Command) String() string {
	switch c.Op {
	case OpSetPressureCorrection:
		return fmt.Sprintf("%s=%t", c.Op, c.Enabled)
	case OpSetPressureCorrectionValue:
		return fmt.Sprintf("%s=%g", c.Op, c.Value)
	case OpSetTimeRange:
		return fmt.Sprintf("%s=%d", c.Op, c.Hours)
	case OpSetGraphicsMode:
		return fmt.Sprintf("%s=%d", c.Op, c.Mode)
	case OpRescale:
		return fmt.Sprintf("%s=%s", c.Op, c.Transform)
	default:
		return c.Op.String()
	}
}

// Validate checks the command's argument without looking at any state.
func (c Command) Validate() error {
	switch c.Op {
	case OpInvert, OpSetPressureCorrection, OpExit:
		return nil
	case OpSetPressureCorrectionValue:
		if c.Value < -MaxPressureCorrection || c.Value > MaxPressureCorrection {
			return fmt.Errorf("%w: pressure correction %g hPa outside ±%d", ErrInvalidCommand, c.Value, MaxPressureCorrection)
		}
		return nil
	case OpSetTimeRange:
		switch c.Hours {
		case 21, 42, 84, 18, 36, 72:
			return nil
		}
		return fmt.Errorf("%w: time range %d h not one of 21, 42, 84, 18, 36, 72", ErrInvalidCommand, c.Hours)
	case OpSetGraphicsMode:
		if !c.Mode.Valid() {
			return fmt.Errorf("%w: graphics mode %d", ErrInvalidCommand, c.Mode)
		}
		return nil
	case OpRescale:
		for _, tr := range rescale.Transforms {
			if c.Transform == tr {
				return nil
			}
		}
		return fmt.Errorf("%w: unknown rescale transform %d", ErrInvalidCommand, int(c.Transform))
	default:
		return fmt.Errorf("%w: unknown operation %d", ErrInvalidCommand, int(c.Op))
	}
}

// Parse builds a command from an operation name and an optional argument,
// e.g. Parse("graphics", "5") or Parse("rescale", "half").
func Parse(op, arg string) (Command, error) {
	arg = strings.TrimSpace(arg)
	var c Command
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "invert":
		c = Invert()
	case "correction":
		on, err := strconv.ParseBool(arg)
		if err != nil {
			return Command{}, fmt.Errorf("%w: correction wants true or false, got %q", ErrInvalidCommand, arg)
		}
		c = SetPressureCorrection(on)
	case "correction-value":
		v, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			return Command{}, fmt.Errorf("%w: correction value %q: %v", ErrInvalidCommand, arg, err)
		}
		c = SetPressureCorrectionValue(float32(v))
	case "time-range":
		h, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return Command{}, fmt.Errorf("%w: time range %q: %v", ErrInvalidCommand, arg, err)
		}
		c = SetTimeRange(uint32(h))
	case "graphics":
		m, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return Command{}, fmt.Errorf("%w: graphics mode %q: %v", ErrInvalidCommand, arg, err)
		}
		c = SetGraphicsMode(types.GraphicsMode(m))
	case "rescale":
		tr, err := rescale.ParseTransform(arg)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		c = Rescale(tr)
	case "exit":
		c = Exit()
	default:
		return Command{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidCommand, op)
	}
	return c, c.Validate()
}
