package domain

import (
	"github.com/stretchr/testify/require"
	"testing"
)

func stroke(id string, z int64) Stroke {
	return Stroke{Element: Element{ID: id, Z: z}, Points: []Point{{X: 1, Y: 1}}, Color: "#000", Width: 1}
}

func TestCanvasState_RenderOrderIgnoresArrival(t *testing.T) {
	req := require.New(t)
	a, b, c := stroke("003", 0), stroke("001", 2), stroke("002", 0)

	// Given the same elements arriving in two different orders
	first := NewCanvasState()
	for _, s := range []Stroke{a, b, c} {
		first = first.Apply(CanvasEvent{Stroke: &s})
	}
	second := NewCanvasState()
	for _, s := range []Stroke{b, c, a} {
		second = second.Apply(CanvasEvent{Stroke: &s})
	}

	// Then both replicas hold them in (z, id) order
	req.Equal(first, second)
	req.Equal([]string{"002", "003", "001"}, []string{first.Strokes[0].ID, first.Strokes[1].ID, first.Strokes[2].ID})
}

func TestCanvasState_ReapplyIsNoop(t *testing.T) {
	s := stroke("001", 0)
	state := NewCanvasState().Apply(CanvasEvent{Stroke: &s})
	state = state.Apply(CanvasEvent{Stroke: &s})
	require.Len(t, state.Strokes, 1)
}

func TestCanvasState_OrderedMergesKinds(t *testing.T) {
	req := require.New(t)
	s := stroke("001", 5)
	shape := Shape{Element: Element{ID: "002", Z: 1}, Kind: ShapeRect, Color: "#fff"}
	text := TextBox{Element: Element{ID: "003", Z: 3}, Text: "hi", FontSize: 12, Color: "#000"}

	state := NewCanvasState().
		Apply(CanvasEvent{Stroke: &s}).
		Apply(CanvasEvent{Shape: &shape}).
		Apply(CanvasEvent{TextBox: &text})

	ordered := state.Ordered()
	req.Len(ordered, 3)
	req.Equal(KindShape, ordered[0].Kind)
	req.Equal(KindTextBox, ordered[1].Kind)
	req.Equal(KindStroke, ordered[2].Kind)
}

func TestCanvasState_SnapshotReplacesAndCloneIsDetached(t *testing.T) {
	req := require.New(t)
	s := stroke("001", 0)
	snap := NewCanvasState().Apply(CanvasEvent{Stroke: &s})

	state := NewCanvasState().Apply(CanvasEvent{Snapshot: &snap})
	snap.Strokes[0].Color = "#fff"

	req.Equal("#000", state.Strokes[0].Color)
	req.Equal(DefaultSettings(), state.Settings)
}
