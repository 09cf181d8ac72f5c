package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// applyAssignment parses "key=value" and writes value into bb with the key's
// type. Vectors and rotations take three comma-separated numbers.
func applyAssignment(bb *blackboard.Instance, assignment string) error {
	name, raw, ok := strings.Cut(assignment, "=")
	name, raw = strings.TrimSpace(name), strings.TrimSpace(raw)
	if !ok || name == "" {
		return fmt.Errorf("%q: expected key=value", assignment)
	}

	k, err := bb.Schema().Key(name)
	if err != nil {
		return err
	}

	switch k.Type {
	case blackboard.KeyTypeBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return bb.SetBool(name, v, true)

	case blackboard.KeyTypeEnum8:
		v, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return bb.SetEnum(name, uint8(v), true)

	case blackboard.KeyTypeInt:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return bb.SetInt(name, int32(v), true)

	case blackboard.KeyTypeFloat:
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return bb.SetFloat(name, float32(v), true)

	case blackboard.KeyTypeObjectRef:
		if raw == "" || raw == "nil" {
			return bb.SetObject(name, nil, true)
		}
		return bb.SetObject(name, raw, true)

	case blackboard.KeyTypeVector3, blackboard.KeyTypeQuaternion:
		fields := strings.Split(raw, ",")
		if len(fields) != 3 {
			return fmt.Errorf("%s: expected three comma-separated numbers, got %q", name, raw)
		}
		var c [3]float32
		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			c[i] = float32(v)
		}
		if k.Type == blackboard.KeyTypeVector3 {
			return bb.SetVector(name, blackboard.Vector3{X: c[0], Y: c[1], Z: c[2]}, true)
		}
		return bb.SetQuaternion(name, blackboard.Rotation{Pitch: c[0], Yaw: c[1], Roll: c[2]}, true)
	}

	return fmt.Errorf("%s: unsupported key type %s", name, k.Type)
}
