package slot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrNoSlot is returned when neither the compiler layout nor the caller knows
// where a variable lives.
var ErrNoSlot = errors.New("no storage slot for variable")

// Variable is one entry of a compiler storage layout.
type Variable struct {
	Label    string `json:"label"`
	Slot     string `json:"slot"`
	Offset   int    `json:"offset"`
	Type     string `json:"type"`
	Contract string `json:"contract,omitempty"`
}

// Layout is the storage layout emitted by the compiler.
type Layout struct {
	Storage []Variable                 `json:"storage"`
	Types   map[string]json.RawMessage `json:"types,omitempty"`
}

// ParseLayout decodes a storage layout. Empty input yields a nil layout.
func ParseLayout(data []byte) (*Layout, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var layout Layout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to parse storage layout: %w", err)
	}
	return &layout, nil
}

// SlotOf returns the declared slot of label.
func (l *Layout) SlotOf(label string) (uint64, bool) {
	if l == nil {
		return 0, false
	}
	for _, v := range l.Storage {
		if v.Label != label {
			continue
		}
		n, err := strconv.ParseUint(v.Slot, 0, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Choice is the outcome of reconciling a layout with a caller override.
type Choice struct {
	Slot       uint64
	FromLayout bool
	LayoutSlot uint64
	Mismatch   bool // both sources present and disagreeing
}

// Reconcile picks the base slot for label. The compiler layout is preferred.
// An explicit override wins, but a disagreement with the layout is flagged.
func Reconcile(layout *Layout, label string, override *uint64) (Choice, error) {
	declared, ok := layout.SlotOf(label)
	switch {
	case ok && override != nil:
		return Choice{
			Slot:       *override,
			LayoutSlot: declared,
			Mismatch:   declared != *override,
		}, nil
	case ok:
		return Choice{Slot: declared, FromLayout: true, LayoutSlot: declared}, nil
	case override != nil:
		return Choice{Slot: *override}, nil
	}
	return Choice{}, fmt.Errorf("%w %q", ErrNoSlot, label)
}
