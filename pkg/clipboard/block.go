package clipboard

import (
	"fmt"
	"sort"
	"strings"
)

// AirName is the block id of an empty cell.
const AirName = "minecraft:air"

// BlockState is a block id plus its state properties, e.g.
// minecraft:oak_stairs[facing=north,half=bottom].
type BlockState struct {
	Name       string            `json:"name" cbor:"name"`
	Properties map[string]string `json:"properties,omitempty" cbor:"properties,omitempty"`
}

// Air returns the empty block.
func Air() BlockState { return BlockState{Name: AirName} }

func (b BlockState) IsAir() bool { return b.Name == AirName || b.Name == "" }

// With returns a copy of b with property key set to value.
func (b BlockState) With(key, value string) BlockState {
	props := make(map[string]string, len(b.Properties)+1)
	for k, v := range b.Properties {
		props[k] = v
	}
	props[key] = value
	return BlockState{Name: b.Name, Properties: props}
}

// String returns the canonical form with property keys sorted.
func (b BlockState) String() string {
	name := b.Name
	if name == "" {
		name = AirName
	}
	if len(b.Properties) == 0 {
		return name
	}
	keys := make([]string, 0, len(b.Properties))
	for k := range b.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(b.Properties[k])
	}
	sb.WriteByte(']')
	return sb.String()
}

// ParseBlockState parses the canonical string form. A name without a
// namespace gets the minecraft namespace.
func ParseBlockState(s string) (BlockState, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return BlockState{}, fmt.Errorf("empty block state")
	}

	name, rest, hasProps := strings.Cut(s, "[")
	name = strings.TrimSpace(name)
	if name == "" {
		return BlockState{}, fmt.Errorf("block state %q has no name", s)
	}
	if !strings.Contains(name, ":") {
		name = "minecraft:" + name
	}
	state := BlockState{Name: strings.ToLower(name)}
	if !hasProps {
		return state, nil
	}

	body, ok := strings.CutSuffix(rest, "]")
	if !ok {
		return BlockState{}, fmt.Errorf("block state %q is missing ']'", s)
	}
	if strings.TrimSpace(body) == "" {
		return state, nil
	}
	state.Properties = make(map[string]string)
	for _, pair := range strings.Split(body, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return BlockState{}, fmt.Errorf("block state %q has malformed property %q", s, pair)
		}
		state.Properties[k] = v
	}
	return state, nil
}

// MustParseBlockState is ParseBlockState for literals known to be valid.
func MustParseBlockState(s string) BlockState {
	b, err := ParseBlockState(s)
	if err != nil {
		panic(err)
	}
	return b
}
