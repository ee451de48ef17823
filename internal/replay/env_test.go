package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func loadTestEnv(t *testing.T) *OfflineEnv {
	t.Helper()
	env, err := LoadOfflineEnv("testdata/demos.json", zaptest.NewLogger(t))
	require.NoError(t, err)
	return env
}

func TestOfflineEnvReset(t *testing.T) {
	env := loadTestEnv(t)

	_, err := env.Reset(404)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = env.Reset(9)
	assert.ErrorIs(t, err, ErrEmptyTrajectory)

	obs, err := env.Reset(3)
	require.NoError(t, err)
	assert.Contains(t, obs, "Instruction:")

	instr, ok := env.Instruction(3)
	assert.True(t, ok)
	assert.Contains(t, instr, "hair extension")
}

func TestOfflineEnvStep(t *testing.T) {
	env := loadTestEnv(t)
	ctx := context.Background()
	_, err := env.Reset(3)
	require.NoError(t, err)

	obs, _, done, info := env.Step(ctx, "search[long clip-in hair extension natural] ")
	assert.True(t, info.Match, "surrounding whitespace is ignored")
	assert.False(t, done)
	assert.Equal(t, 1, info.Label())
	assert.Contains(t, obs, "B09QQLDJ93")

	_, _, _, info = env.Step(ctx, "click[B0WRONG]")
	assert.False(t, info.Match)
	assert.Equal(t, "B09QQLDJ93", info.SelectedItemID)

	_, _, _, info = env.Step(ctx, "click[description]")
	assert.True(t, info.Match)
	assert.Equal(t, 2, info.Label(), "unnumbered steps are labelled by index")

	step, ok := env.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, "buy_now", step.ActionName)

	obs, reward, done, _ := env.Step(ctx, "click[Buy Now]")
	assert.True(t, done, "the last step always ends the episode")
	assert.Equal(t, 0.75, reward)
	assert.Equal(t, "Thank you for shopping with us!", obs)

	_, _, done, info = env.Step(ctx, "click[Buy Now]")
	assert.True(t, done)
	assert.NotEmpty(t, info.Error)
}

func TestRunnerWithStubPolicyMatchesEverything(t *testing.T) {
	env := loadTestEnv(t)
	r := NewRunner(env, zaptest.NewLogger(t))

	report, err := r.RunEpisode(context.Background(), 3, StubPolicy{})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 4, report.Matched)
	assert.Equal(t, 100.0, report.Accuracy)
	assert.Equal(t, 0.75, report.FinalReward)
	assert.Len(t, report.Steps, 4)
}

type fixedPolicy string

func (p fixedPolicy) PredictAction(context.Context, string, Step) string { return string(p) }

func TestRunnerScoresMismatches(t *testing.T) {
	env := loadTestEnv(t)
	r := NewRunner(env, zaptest.NewLogger(t))

	report, err := r.RunEpisode(context.Background(), 3, fixedPolicy("click[Buy Now]"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 25.0, report.Accuracy)

	_, err = r.RunEpisode(context.Background(), 404, StubPolicy{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
