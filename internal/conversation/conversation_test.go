package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldsim/worldsim/internal/worldtime"
)

type stubGateway struct {
	textOut string
	textErr error
	objErr  error
	fill    func(out any)
}

func (g *stubGateway) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	return g.textOut, g.textErr
}

func (g *stubGateway) GenerateObject(ctx context.Context, prompt string, schema []byte, system string, out any) error {
	if g.objErr != nil {
		return g.objErr
	}
	if g.fill != nil {
		g.fill(out)
	}
	return nil
}

func turnFiller(utterance string, end, achieved bool) func(out any) {
	return func(out any) {
		to := out.(*TurnOutput)
		*to = TurnOutput{Utterance: utterance, Speaker: SpeakerNPC, EndConversation: end, GoalAchieved: achieved}
	}
}

func TestAdvanceAppendsMessageAndTracksTurn(t *testing.T) {
	s := New("alice", "bob", Goal{Goal: "borrow a cup of sugar"}, worldtime.New(0, 9, 0))
	gw := &stubGateway{fill: turnFiller("sure, here you go", false, false)}

	effect, err := Advance(context.Background(), gw, s, Profile{ID: "alice", Name: "Alice"}, Profile{ID: "bob", Name: "Bob"}, worldtime.New(0, 9, 1))
	require.NoError(t, err)
	assert.False(t, effect.SessionEnded, "did not expect the session to end on a non-terminal turn")
	assert.EqualValues(t, 1, s.CurrentTurn)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "bob", s.Messages[0].SpeakerID)
	assert.Equal(t, StatusActive, s.Status)
}

func TestAdvanceEndsOnExplicitEndConversation(t *testing.T) {
	s := New("alice", "bob", Goal{Goal: "chat"}, worldtime.New(0, 9, 0))
	gw := &stubGateway{fill: turnFiller("goodbye", true, false)}

	effect, err := Advance(context.Background(), gw, s, Profile{ID: "alice"}, Profile{ID: "bob"}, worldtime.New(0, 9, 1))
	require.NoError(t, err)
	assert.True(t, effect.SessionEnded)
	assert.Equal(t, StatusCompleted, s.Status)
}

func TestAdvanceEndsOnGoalAchieved(t *testing.T) {
	s := New("alice", "bob", Goal{Goal: "chat"}, worldtime.New(0, 9, 0))
	gw := &stubGateway{fill: turnFiller("great, deal!", false, true)}

	effect, err := Advance(context.Background(), gw, s, Profile{ID: "alice"}, Profile{ID: "bob"}, worldtime.New(0, 9, 1))
	require.NoError(t, err)
	assert.True(t, effect.SessionEnded)
	assert.True(t, s.GoalAchieved)
}

func TestAdvanceEndsAtMaxTurns(t *testing.T) {
	s := New("alice", "bob", Goal{Goal: "chat"}, worldtime.New(0, 9, 0))
	s.CurrentTurn = MaxTurns - 1
	gw := &stubGateway{fill: turnFiller("one more thing", false, false)}

	effect, err := Advance(context.Background(), gw, s, Profile{ID: "alice"}, Profile{ID: "bob"}, worldtime.New(0, 9, 1))
	require.NoError(t, err)
	assert.True(t, effect.SessionEnded, "expected hitting MaxTurns to end the session even without an explicit end signal")
}

func TestAdvanceRejectsInactiveSession(t *testing.T) {
	s := New("alice", "bob", Goal{Goal: "chat"}, worldtime.New(0, 9, 0))
	s.Status = StatusCompleted
	gw := &stubGateway{fill: turnFiller("hi", false, false)}

	_, err := Advance(context.Background(), gw, s, Profile{}, Profile{}, worldtime.New(0, 9, 1))
	assert.Error(t, err)
}

func TestAdvancePropagatesGatewayError(t *testing.T) {
	s := New("alice", "bob", Goal{Goal: "chat"}, worldtime.New(0, 9, 0))
	gw := &stubGateway{objErr: errors.New("boom")}

	_, err := Advance(context.Background(), gw, s, Profile{}, Profile{}, worldtime.New(0, 9, 1))
	assert.Error(t, err)
}

func TestSummarizeCarriesOverAffinityAndGoalAchieved(t *testing.T) {
	s := New("alice", "bob", Goal{Goal: "chat"}, worldtime.New(0, 9, 0))
	s.GoalAchieved = true
	gw := &stubGateway{fill: func(out any) {
		sum := out.(*Summary)
		*sum = Summary{Summary: "they talked about the weather", NPCMood: "content"}
	}}

	got, err := Summarize(context.Background(), gw, s, Profile{}, Profile{}, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, got.AffinityChange, "expected the caller-supplied affinity change to be preserved")
	assert.True(t, got.GoalAchieved, "expected GoalAchieved to carry over from the session")
}
