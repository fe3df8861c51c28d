package e2e

import (
	"board-lab/domain"
	"board-lab/errors"
	"board-lab/infrastructure/http/client"
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type testSessionSuite struct {
	BaseSuite
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, &testSessionSuite{})
}

func (s *testSessionSuite) TestWhiteboardSessionFlow() {
	sessionID := s.SessionID()
	alice := s.Participant("alice")
	bob := s.Participant("bob")

	streamCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// --- STEP 1: CREATE AND JOIN ---
	s.Run("Step 1: First joiner becomes host", func() {
		s.Step("Alice creates, Bob joins", func(ctx context.Context) {
			session, err := alice.Join(ctx, sessionID, "alice", "")
			s.Require().NoError(err)
			s.Require().Equal(alice.UID(), session.HostID)

			session, err = bob.Join(ctx, sessionID, "bob", "")
			s.Require().NoError(err)
			s.Require().Equal(alice.UID(), session.HostID)
			s.Require().Len(session.Participants, 2)
		})
	})

	// --- STEP 2: CANVAS REPLICATION ---
	s.Run("Step 2: A stroke reaches the other participant", func() {
		canvas, err := client.Stream[domain.CanvasEvent](streamCtx, bob, sessionID, "canvas")
		s.Require().NoError(err)
		state := domain.NewCanvasState().Apply(<-canvas)
		s.Require().Zero(state.Len())

		s.Step("Alice draws", func(ctx context.Context) {
			stroke := domain.Stroke{Points: []domain.Point{{X: 10, Y: 10}, {X: 20, Y: 25}}, Color: "#1e90ff", Width: 4}
			id, err := alice.SubmitDelta(ctx, sessionID, domain.CanvasDelta{AuthorID: alice.UID(), AppendStroke: &stroke})
			s.Require().NoError(err)
			s.Require().NotEmpty(id)

			state = state.Apply(<-canvas)
			s.Require().Len(state.Strokes, 1)
			s.Require().Equal(id, state.Strokes[0].ID)
		})
	})

	// --- STEP 3: CHAT AND MENTIONS ---
	s.Run("Step 3: A mention lands in Bob's queue", func() {
		s.Step("Alice mentions Bob", func(ctx context.Context) {
			_, err := alice.Chat(ctx, sessionID, "alice", "@bob can you check the arrow?")
			s.Require().NoError(err)

			s.Require().Eventually(func() bool {
				queue, err := bob.Notifications(ctx, sessionID)
				return err == nil && len(queue) == 1 && queue[0].SenderID == alice.UID()
			}, 5*time.Second, 100*time.Millisecond)

			s.Require().NoError(bob.AckAll(ctx, sessionID))
			queue, err := bob.Notifications(ctx, sessionID)
			s.Require().NoError(err)
			s.Require().Empty(queue)
		})
	})

	// --- STEP 4: PRESENCE ---
	s.Run("Step 4: Both participants are online", func() {
		s.Step("Reading roster", func(ctx context.Context) {
			roster, err := alice.Roster(ctx, sessionID)
			s.Require().NoError(err)
			s.Require().Len(roster, 2)
			s.Require().True(lo.EveryBy(roster, func(e domain.RosterEntry) bool {
				return e.Status == domain.StatusOnline
			}))
		})
	})

	// --- STEP 5: END ---
	s.Run("Step 5: Only the host ends the session", func() {
		s.Step("Bob then Alice try to end", func(ctx context.Context) {
			s.Require().ErrorIs(bob.End(ctx, sessionID), errors.ErrNotHost)
			s.Require().NoError(alice.End(ctx, sessionID))

			_, err := bob.Chat(ctx, sessionID, "bob", "too late")
			s.Require().ErrorIs(err, errors.ErrSessionEnded)
		})
	})
}
