package domain

import (
	"encoding/json"
	"strings"
)

type Tool string

const (
	ToolBrush       Tool = "brush"
	ToolEraser      Tool = "eraser"
	ToolHighlighter Tool = "highlighter"
	ToolShape       Tool = "shape"
	ToolText        Tool = "text"
	ToolSelect      Tool = "select"
)

// Settings are the shared tool settings of a canvas.
type Settings struct {
	Color     string  `json:"color"`
	LineWidth float64 `json:"lineWidth"`
	Tool      Tool    `json:"tool"`
	FontSize  float64 `json:"fontSize"`
	Opacity   float64 `json:"opacity"`
	Fill      bool    `json:"fill"`
}

func DefaultSettings() Settings {
	return Settings{
		Color:     "#000000",
		LineWidth: 2,
		Tool:      ToolBrush,
		FontSize:  16,
		Opacity:   1,
		Fill:      false,
	}
}

// FieldStamp is one settings field as stored, with the write that produced it.
type FieldStamp struct {
	Value json.RawMessage `json:"value"`
	Rev   uint64          `json:"rev"`
	By    string          `json:"by"`
}

// Beats is the last-write-wins order: higher revision wins, equal revisions
// are broken by participant id so every replica picks the same winner.
func (s FieldStamp) Beats(other FieldStamp) bool {
	if s.Rev != other.Rev {
		return s.Rev > other.Rev
	}
	return strings.Compare(s.By, other.By) > 0
}

// SettingsRecord is the stored form of Settings, one stamp per field.
type SettingsRecord map[string]FieldStamp

func (r SettingsRecord) MaxRev() uint64 {
	var rev uint64
	for _, st := range r {
		rev = max(rev, st.Rev)
	}
	return rev
}

// Merge applies every stamp of other that beats the current one.
// It is commutative, associative and idempotent.
func (r SettingsRecord) Merge(other SettingsRecord) (SettingsRecord, bool) {
	out := make(SettingsRecord, len(r)+len(other))
	for k, v := range r {
		out[k] = v
	}
	changed := false
	for k, st := range other {
		cur, ok := out[k]
		if !ok || st.Beats(cur) {
			out[k] = st
			changed = true
		}
	}
	return out, changed
}

// Settings resolves the record onto the defaults. Unknown fields and values of
// the wrong type are ignored so the result is always fully populated.
func (r SettingsRecord) Settings() Settings {
	s := DefaultSettings()
	for field, st := range r {
		raw, err := json.Marshal(map[string]json.RawMessage{field: st.Value})
		if err != nil {
			continue
		}
		next := s
		if err = json.Unmarshal(raw, &next); err != nil {
			continue
		}
		s = next
	}
	return s
}

// DefaultSettingsRecord stamps every default at revision zero.
func DefaultSettingsRecord() SettingsRecord {
	d := DefaultSettings()
	return SettingsPatch{
		Color:     &d.Color,
		LineWidth: &d.LineWidth,
		Tool:      &d.Tool,
		FontSize:  &d.FontSize,
		Opacity:   &d.Opacity,
		Fill:      &d.Fill,
	}.Record(0, "")
}

// SettingsPatch is a field-wise change of the settings. Nil fields are left
// untouched. A zero Rev asks the replicator to pick the next revision.
type SettingsPatch struct {
	Rev       uint64   `json:"rev"`
	Color     *string  `json:"color,omitempty" validate:"omitempty,max=32"`
	LineWidth *float64 `json:"lineWidth,omitempty" validate:"omitempty,gt=0,lte=200"`
	Tool      *Tool    `json:"tool,omitempty" validate:"omitempty,oneof=brush eraser highlighter shape text select"`
	FontSize  *float64 `json:"fontSize,omitempty" validate:"omitempty,gt=0,lte=512"`
	Opacity   *float64 `json:"opacity,omitempty" validate:"omitempty,gte=0,lte=1"`
	Fill      *bool    `json:"fill,omitempty"`
}

func (p SettingsPatch) Empty() bool {
	return p.Color == nil && p.LineWidth == nil && p.Tool == nil &&
		p.FontSize == nil && p.Opacity == nil && p.Fill == nil
}

// Record stamps every set field of the patch with rev and by.
func (p SettingsPatch) Record(rev uint64, by string) SettingsRecord {
	record := make(SettingsRecord)
	stamp := func(field string, v any) {
		raw, err := json.Marshal(v)
		if err != nil {
			return
		}
		record[field] = FieldStamp{Value: raw, Rev: rev, By: by}
	}
	if p.Color != nil {
		stamp("color", *p.Color)
	}
	if p.LineWidth != nil {
		stamp("lineWidth", *p.LineWidth)
	}
	if p.Tool != nil {
		stamp("tool", *p.Tool)
	}
	if p.FontSize != nil {
		stamp("fontSize", *p.FontSize)
	}
	if p.Opacity != nil {
		stamp("opacity", *p.Opacity)
	}
	if p.Fill != nil {
		stamp("fill", *p.Fill)
	}
	return record
}
