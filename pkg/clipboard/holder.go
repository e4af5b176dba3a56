package clipboard

import "schemctl/pkg/geom"

// WorldData is the world context a writer records alongside the blocks.
type WorldData struct {
	DataVersion int    `json:"data_version" yaml:"data_version"`
	Platform    string `json:"platform" yaml:"platform"`
}

// DefaultWorld is used when no world context is configured.
var DefaultWorld = WorldData{DataVersion: 3465, Platform: "schemctl"}

// Holder is the clipboard bound to a session together with the transform
// that has not been baked into it yet.
type Holder struct {
	Clipboard *Clipboard
	Transform geom.Transform
	World     WorldData
}

// NewHolder wraps c with an identity transform.
func NewHolder(c *Clipboard) *Holder {
	return &Holder{Clipboard: c, World: DefaultWorld}
}

// Baked returns the clipboard with the pending transform applied.
func (h *Holder) Baked() (*Clipboard, error) {
	return Bake(h.Clipboard, h.Transform)
}
