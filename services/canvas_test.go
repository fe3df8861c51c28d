package services

import (
	"board-lab/domain"
	"board-lab/errors"
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func stroke(z int64) *domain.Stroke {
	return &domain.Stroke{
		Element: domain.Element{Z: z},
		Points:  []domain.Point{{X: 0, Y: 0}, {X: 10, Y: 10, Pressure: 0.5}},
		Color:   "#112233",
		Width:   3,
	}
}

func TestCanvasReplicator_SettingsConvergeInEitherOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	e.join(t, "ab", "u-a", "a")
	e.join(t, "ba", "u-a", "a")

	a := domain.CanvasDelta{AuthorID: "u-a", PatchSettings: &domain.SettingsPatch{
		Rev: 5, Color: lo.ToPtr("#ff0000"), LineWidth: lo.ToPtr(8.0),
	}}
	b := domain.CanvasDelta{AuthorID: "u-b", PatchSettings: &domain.SettingsPatch{
		Rev: 5, Color: lo.ToPtr("#0000ff"),
	}}

	// When the same two patches land in opposite orders
	for _, d := range []domain.CanvasDelta{a, b} {
		_, err := e.canvas.SubmitDelta(ctx, "ab", d)
		req.NoError(err)
	}
	for _, d := range []domain.CanvasDelta{b, a} {
		_, err := e.canvas.SubmitDelta(ctx, "ba", d)
		req.NoError(err)
	}

	// Then both sessions hold the same settings
	ab, err := e.registry.Get(ctx, "ab")
	req.NoError(err)
	ba, err := e.registry.Get(ctx, "ba")
	req.NoError(err)
	req.Equal(ab.Canvas.Settings, ba.Canvas.Settings)
	req.Equal("#0000ff", ab.Canvas.Settings.Color)
	req.Equal(8.0, ab.Canvas.Settings.LineWidth)
	req.Equal(domain.ToolBrush, ab.Canvas.Settings.Tool)
}

func TestCanvasReplicator_PatchWithoutRevisionWinsNextRevision(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	e.join(t, "s1", "u-x", "x")

	// Given a patch without revision
	_, err := e.canvas.SubmitDelta(ctx, "s1", domain.CanvasDelta{AuthorID: "u-x", PatchSettings: &domain.SettingsPatch{
		Color: lo.ToPtr("#00ff00"),
	}})
	req.NoError(err)

	// When a patch stamped with the same revision by a smaller id arrives
	_, err = e.canvas.SubmitDelta(ctx, "s1", domain.CanvasDelta{AuthorID: "u-a", PatchSettings: &domain.SettingsPatch{
		Rev: 1, Color: lo.ToPtr("#ff0000"),
	}})

	// Then it is absorbed without error
	req.NoError(err)
	s, err := e.registry.Get(ctx, "s1")
	req.NoError(err)
	req.Equal("#00ff00", s.Canvas.Settings.Color)
}

func TestCanvasReplicator_RejectsMalformedDeltas(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.join(t, "s1", "u-a", "a")

	tests := []struct {
		name  string
		delta domain.CanvasDelta
		err   error
	}{
		{"no change", domain.CanvasDelta{AuthorID: "u-a"}, errors.ErrInvalidDelta},
		{"two changes", domain.CanvasDelta{AuthorID: "u-a", AppendStroke: stroke(0), AppendShape: &domain.Shape{Kind: domain.ShapeRect, Color: "#000"}}, errors.ErrInvalidDelta},
		{"empty patch", domain.CanvasDelta{AuthorID: "u-a", PatchSettings: &domain.SettingsPatch{Rev: 3}}, errors.ErrInvalidDelta},
		{"stroke without points", domain.CanvasDelta{AuthorID: "u-a", AppendStroke: &domain.Stroke{Color: "#000", Width: 1}}, errors.ErrInvalidInput},
		{"unknown shape", domain.CanvasDelta{AuthorID: "u-a", AppendShape: &domain.Shape{Kind: "star", Color: "#000"}}, errors.ErrInvalidInput},
		{"no author", domain.CanvasDelta{AppendStroke: stroke(0)}, errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, err := e.canvas.SubmitDelta(ctx, "s1", tt.delta)
			req.ErrorIs(err, tt.err)
		})
	}
}

func TestCanvasReplicator_StrokePropagatesToEveryWatcher(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newEnv(t)

	// Given alice creates a session and bob joins it
	e.join(t, "s1", "u-alice", "alice")
	e.join(t, "s1", "u-bob", "bob")

	aliceView, err := e.canvas.Watch(ctx, "s1")
	req.NoError(err)
	bobView, err := e.canvas.Watch(ctx, "s1")
	req.NoError(err)
	aliceFirst := receive(t, aliceView)
	req.NotNil(aliceFirst.Snapshot)
	req.Zero(aliceFirst.Snapshot.Len())
	bobState := domain.NewCanvasState().Apply(receive(t, bobView))
	req.Zero(bobState.Len())

	// When alice draws two strokes, the second one below the first
	top, err := e.canvas.SubmitDelta(ctx, "s1", domain.CanvasDelta{AuthorID: "u-alice", AppendStroke: stroke(2)})
	req.NoError(err)
	bottom, err := e.canvas.SubmitDelta(ctx, "s1", domain.CanvasDelta{AuthorID: "u-alice", AppendStroke: stroke(1)})
	req.NoError(err)
	req.NotEqual(top, bottom)

	// Then bob receives one delta per stroke and folds them in z-order
	for range 2 {
		delta := receive(t, bobView)
		req.Nil(delta.Snapshot)
		req.NotNil(delta.Stroke)
		bobState = bobState.Apply(delta)
	}
	req.Len(bobState.Strokes, 2)
	req.Equal(bottom, bobState.Strokes[0].ID)
	req.Equal(top, bobState.Strokes[1].ID)
	req.Equal("u-alice", bobState.Strokes[0].AuthorID)
	req.True(t0.Equal(bobState.Strokes[0].CreatedAt))

	// And alice converges to the same state
	aliceState := domain.NewCanvasState().Apply(aliceFirst)
	aliceState = aliceState.Apply(receive(t, aliceView))
	aliceState = aliceState.Apply(receive(t, aliceView))
	req.Equal(bobState.Strokes, aliceState.Strokes)
}

func TestCanvasReplicator_WatchSendsOnlyDeltasAfterSnapshot(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newEnv(t)
	e.join(t, "s1", "u-alice", "alice")

	// Given a canvas that already holds a stroke
	_, err := e.canvas.SubmitDelta(ctx, "s1", domain.CanvasDelta{AuthorID: "u-alice", AppendStroke: stroke(1)})
	req.NoError(err)

	view, err := e.canvas.Watch(ctx, "s1")
	req.NoError(err)
	first := receive(t, view)
	req.NotNil(first.Snapshot)
	req.Len(first.Snapshot.Strokes, 1)

	// When two more strokes are submitted
	_, err = e.canvas.SubmitDelta(ctx, "s1", domain.CanvasDelta{AuthorID: "u-alice", AppendStroke: stroke(2)})
	req.NoError(err)
	_, err = e.canvas.SubmitDelta(ctx, "s1", domain.CanvasDelta{AuthorID: "u-alice", AppendStroke: stroke(3)})
	req.NoError(err)

	// Then every later event carries exactly one delta and no snapshot
	for range 2 {
		ev := receive(t, view)
		req.Nil(ev.Snapshot)
		req.NotNil(ev.Stroke)
		req.Nil(ev.Shape)
		req.Nil(ev.TextBox)
		req.Nil(ev.Settings)
	}
}

func TestCanvasReplicator_WatchEndsWithContext(t *testing.T) {
	req := require.New(t)
	e := newEnv(t)
	e.join(t, "s1", "u-alice", "alice")
	ctx, cancel := context.WithCancel(context.Background())

	view, err := e.canvas.Watch(ctx, "s1")
	req.NoError(err)
	receive(t, view)

	// When the watcher goes away
	cancel()

	// Then the stream is closed
	req.Eventually(func() bool {
		select {
		case _, ok := <-view:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
