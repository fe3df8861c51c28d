package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// ElementKind doubles as the store collection name of an element.
type ElementKind string

const (
	KindStroke  ElementKind = "strokes"
	KindShape   ElementKind = "shapes"
	KindTextBox ElementKind = "textBoxes"
)

// Element carries what every canvas element needs to be rendered
// deterministically: a unique id and an explicit z-order.
type Element struct {
	ID        string    `json:"id,omitempty"`
	AuthorID  string    `json:"authorId"`
	Z         int64     `json:"z"`
	CreatedAt time.Time `json:"createdAt"`
}

type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty"`
}

type Stroke struct {
	Element
	Points []Point `json:"points" validate:"required,min=1"`
	Color  string  `json:"color" validate:"required,max=32"`
	Width  float64 `json:"width" validate:"gt=0,lte=200"`
}

type ShapeKind string

const (
	ShapeRect    ShapeKind = "rect"
	ShapeEllipse ShapeKind = "ellipse"
	ShapeLine    ShapeKind = "line"
	ShapeArrow   ShapeKind = "arrow"
)

type Shape struct {
	Element
	Kind     ShapeKind `json:"kind" validate:"required,oneof=rect ellipse line arrow"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	W        float64   `json:"w"`
	H        float64   `json:"h"`
	Color    string    `json:"color" validate:"required,max=32"`
	Fill     bool      `json:"fill"`
	Rotation float64   `json:"rotation,omitempty"`
}

type TextBox struct {
	Element
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	Text     string  `json:"text" validate:"max=10000"`
	FontSize float64 `json:"fontSize" validate:"gt=0,lte=512"`
	Color    string  `json:"color" validate:"required,max=32"`
}

// CanvasState is the replicated canvas. Element slices are kept in render
// order, (Z, ID) ascending, so arrival order never leaks into rendering.
type CanvasState struct {
	Strokes   []Stroke  `json:"strokes"`
	Shapes    []Shape   `json:"shapes"`
	TextBoxes []TextBox `json:"textBoxes"`
	Settings  Settings  `json:"settings"`
}

func NewCanvasState() CanvasState {
	return CanvasState{Settings: DefaultSettings()}
}

// CanvasEvent is one delivery of a canvas watch. The first event of a
// subscription carries a Snapshot, later ones carry exactly one delta.
type CanvasEvent struct {
	Snapshot *CanvasState `json:"snapshot,omitempty"`
	Stroke   *Stroke      `json:"stroke,omitempty"`
	Shape    *Shape       `json:"shape,omitempty"`
	TextBox  *TextBox     `json:"textBox,omitempty"`
	Settings *Settings    `json:"settings,omitempty"`
}

// Apply folds an event into the state and returns the new state.
// Re-applying an element already present is a no-op.
func (c CanvasState) Apply(e CanvasEvent) CanvasState {
	switch {
	case e.Snapshot != nil:
		return e.Snapshot.Clone()
	case e.Stroke != nil:
		c.Strokes = insertOrdered(c.Strokes, *e.Stroke, func(s Stroke) Element { return s.Element })
	case e.Shape != nil:
		c.Shapes = insertOrdered(c.Shapes, *e.Shape, func(s Shape) Element { return s.Element })
	case e.TextBox != nil:
		c.TextBoxes = insertOrdered(c.TextBoxes, *e.TextBox, func(t TextBox) Element { return t.Element })
	case e.Settings != nil:
		c.Settings = *e.Settings
	}
	return c
}

func (c CanvasState) Clone() CanvasState {
	return CanvasState{
		Strokes:   slices.Clone(c.Strokes),
		Shapes:    slices.Clone(c.Shapes),
		TextBoxes: slices.Clone(c.TextBoxes),
		Settings:  c.Settings,
	}
}

// Len is the number of elements on the canvas.
func (c CanvasState) Len() int {
	return len(c.Strokes) + len(c.Shapes) + len(c.TextBoxes)
}

// Drawable is one element of any kind, as handed to a renderer.
type Drawable struct {
	Kind    ElementKind `json:"kind"`
	Stroke  *Stroke     `json:"stroke,omitempty"`
	Shape   *Shape      `json:"shape,omitempty"`
	TextBox *TextBox    `json:"textBox,omitempty"`
}

func (d Drawable) Element() Element {
	switch d.Kind {
	case KindStroke:
		return d.Stroke.Element
	case KindShape:
		return d.Shape.Element
	default:
		return d.TextBox.Element
	}
}

// Ordered merges every element into a single render list, bottom first.
func (c CanvasState) Ordered() []Drawable {
	out := make([]Drawable, 0, c.Len())
	for i := range c.Strokes {
		out = append(out, Drawable{Kind: KindStroke, Stroke: &c.Strokes[i]})
	}
	for i := range c.Shapes {
		out = append(out, Drawable{Kind: KindShape, Shape: &c.Shapes[i]})
	}
	for i := range c.TextBoxes {
		out = append(out, Drawable{Kind: KindTextBox, TextBox: &c.TextBoxes[i]})
	}
	slices.SortStableFunc(out, func(a, b Drawable) int {
		return CompareElements(a.Element(), b.Element())
	})
	return out
}

// CompareElements orders elements by explicit z-order, then by id.
func CompareElements(a, b Element) int {
	if c := cmp.Compare(a.Z, b.Z); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func insertOrdered[T any](items []T, item T, elem func(T) Element) []T {
	e := elem(item)
	i, found := slices.BinarySearchFunc(items, e, func(x T, target Element) int {
		return CompareElements(elem(x), target)
	})
	if found {
		return items
	}
	out := make([]T, 0, len(items)+1)
	out = append(out, items[:i]...)
	out = append(out, item)
	return append(out, items[i:]...)
}

// CanvasDelta is one change submitted by a participant. Exactly one of the
// change fields must be set.
type CanvasDelta struct {
	AuthorID      string         `json:"authorId" validate:"required,max=128"`
	AppendStroke  *Stroke        `json:"appendStroke,omitempty"`
	AppendShape   *Shape         `json:"appendShape,omitempty"`
	AppendTextBox *TextBox       `json:"appendTextBox,omitempty"`
	PatchSettings *SettingsPatch `json:"patchSettings,omitempty"`
}

// Changes counts the change fields that are set.
func (d CanvasDelta) Changes() int {
	n := 0
	for _, set := range []bool{d.AppendStroke != nil, d.AppendShape != nil, d.AppendTextBox != nil, d.PatchSettings != nil} {
		if set {
			n++
		}
	}
	return n
}
