package agentq

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/browser"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/llmclient"
)

func testAgentQConfig() config.AgentQConfig {
	return config.AgentQConfig{
		MaxLoops:          5,
		MinLoops:          2,
		CriticWeight:      0.7,
		ExplorationC:      0.5,
		NoProgressLimit:   3,
		ScratchpadEntries: 10,
	}
}

func newTestAgent(t *testing.T, llm schemas.LLMClient, cfg config.AgentQConfig) (*Agent, *MockBrowser) {
	t.Helper()
	b := new(MockBrowser)
	t.Cleanup(func() { b.AssertExpectations(t) })
	logger := zaptest.NewLogger(t)
	return NewAgent(llm, NewExecutor(b, logger), NewCritic(llm, logger), cfg, logger), b
}

func TestRunReachesObjective(t *testing.T) {
	llm := llmclient.NewScriptedClient(
		"1. Search for red shoes\n2. Open the first result",
		"THOUGHT:\nI should search first.\nCOMMANDS:\n- SEARCH [TEXT=red shoes]\nSTATUS:\nCONTINUE",
		"The search returned three results.",
		"COMPLETE - results are visible",
		"THOUGHT:\nOpen the first product.\nCOMMANDS:\n1. CLICK [ID=el_1]\n2. SCROLL [DOWN]\nSTATUS:\nCOMPLETE",
		`[{"command": "CLICK -> el_1", "score": 0.9}, {"command": "SCROLL -> down", "score": 0.2}]`,
		"The product page for Red Runner is open.",
		"COMPLETE",
	)
	a, b := newTestAgent(t, llm, testAgentQConfig())

	productPage := &browser.PageSnapshot{Title: "Red Runner", URL: "https://shop.test/p/1", Content: "Red Runner $59"}
	b.On("FindAndUseSearchBar", mock.Anything, "red shoes").Return(true, nil).Once()
	b.On("ClickByID", mock.Anything, "el_1").Return(nil).Once()
	b.On("Snapshot", mock.Anything).Return(resultsPage, nil).Once()
	b.On("Snapshot", mock.Anything).Return(productPage, nil).Once()

	res, err := a.Run(context.Background(), "Find red shoes")
	require.NoError(t, err)
	assert.Equal(t, schemas.RunSucceeded, res.Status)
	assert.True(t, res.Done)
	assert.Equal(t, 2, res.Loops)
	assert.Equal(t, "The product page for Red Runner is open.", res.Answer)
	assert.Equal(t, "https://shop.test/p/1", res.FinalURL)
	assert.Zero(t, res.ErrorCount)

	pad := res.Scratchpad
	require.Len(t, pad, 11)
	assert.Equal(t, "[PLAN] 1. Search for red shoes\n2. Open the first result", pad[0])
	assert.Equal(t, "[THOUGHT-1] I should search first.", pad[1])
	assert.Equal(t, "[ACTION-1] SEARCH (red shoes)", pad[2])
	assert.Equal(t, "[OBSERVATION-1] Searched on page: red shoes\nPage content: 3 results for red shoes......", pad[3])
	assert.True(t, strings.HasPrefix(pad[5], "[CRITIQUE-1] CONTINUE - COMPLETE - results are visible\nContinuing"), pad[5])
	assert.Equal(t, "[ACTION-2] CLICK -> el_1", pad[7])
	assert.Equal(t, "[CRITIQUE-2] COMPLETE - COMPLETE", pad[10])

	reqs := llm.Requests()
	require.Len(t, reqs, 8)
	assert.Equal(t, planSystemPrompt, reqs[0].SystemPrompt)
	assert.Equal(t, criticSystemPrompt, reqs[5].SystemPrompt, "two candidates go to the critic")
	assert.Contains(t, reqs[5].UserPrompt, "1. CLICK -> el_1")
	assert.Contains(t, reqs[4].UserPrompt, `[el_1] a "Red Runner" (href=/p/1)`, "the thought sees the element list")
}

func TestRunExhaustsLoopsAndWarnsOnNoProgress(t *testing.T) {
	thought := "THOUGHT:\nScroll for more.\nCOMMANDS:\nSCROLL [DOWN]\nSTATUS:\nCONTINUE"
	script := []string{"1. Scroll"}
	for range 4 {
		script = append(script, thought, "Nothing changed.", "CONTINUE")
	}
	llm := llmclient.NewScriptedClient(script...)

	cfg := testAgentQConfig()
	cfg.MaxLoops, cfg.MinLoops, cfg.NoProgressLimit = 4, 0, 2
	a, b := newTestAgent(t, llm, cfg)
	b.On("Scroll", mock.Anything, "down", 3).Return(nil).Times(4)
	b.On("Snapshot", mock.Anything).Return(resultsPage, nil).Times(4)

	res, err := a.Run(context.Background(), "Read the whole page")
	require.NoError(t, err)
	assert.Equal(t, schemas.RunExhausted, res.Status)
	assert.Equal(t, 4, res.Loops)
	assert.Contains(t, res.Scratchpad[len(res.Scratchpad)-1], "Reached the maximum of 4 loops.")

	reqs := llm.Requests()
	require.Len(t, reqs, 13)
	assert.NotContains(t, reqs[7].UserPrompt, "Change strategy")
	assert.Contains(t, reqs[10].UserPrompt, "Change strategy")
}

func TestRunStopsToAskUser(t *testing.T) {
	llm := llmclient.NewScriptedClient(
		"1. Log in",
		"THOUGHT:\nA login is required.\nCOMMANDS:\nASK USER HELP [TEXT=What are the credentials?]\nSTATUS:\nCONTINUE",
	)
	cfg := testAgentQConfig()
	cfg.StartURL = "https://shop.test/login"
	a, b := newTestAgent(t, llm, cfg)
	b.On("Navigate", mock.Anything, "https://shop.test/login").Return(nil).Once()
	b.On("Snapshot", mock.Anything).Return(&browser.PageSnapshot{URL: "https://shop.test/login", Title: "Login"}, nil).Once()

	res, err := a.Run(context.Background(), "Check my orders")
	require.NoError(t, err)
	assert.Equal(t, "What are the credentials?", res.NeedsUser)
	assert.Equal(t, 1, res.Loops)
	assert.Equal(t, "https://shop.test/login", res.FinalURL)
	assert.Len(t, llm.Requests(), 2)
}

func TestRunCritiqueFailureStops(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, bySystemPrompt(planSystemPrompt)).Return("1. Look", nil)
	llm.On("Generate", mock.Anything, bySystemPrompt(thoughtSystemPrompt)).Return("COMMANDS:\nGET_DOM", nil)
	llm.On("Generate", mock.Anything, bySystemPrompt(explanationSystemPrompt)).Return("Read the page.", nil)
	llm.On("Generate", mock.Anything, bySystemPrompt(critiqueSystemPrompt)).Return("", errors.New("rate limited"))

	a, b := newTestAgent(t, llm, testAgentQConfig())
	b.On("Snapshot", mock.Anything).Return(resultsPage, nil).Once()

	res, err := a.Run(context.Background(), "Describe the page")
	require.NoError(t, err)
	assert.Equal(t, schemas.RunFailed, res.Status)
	assert.True(t, res.Done)
	assert.Equal(t, 1, res.ErrorCount)
	llm.AssertExpectations(t)
}

func TestRunCountsUnparseableThoughts(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, bySystemPrompt(planSystemPrompt)).Return("1. Think", nil)
	llm.On("Generate", mock.Anything, bySystemPrompt(thoughtSystemPrompt)).Return("I am not sure.", nil)
	llm.On("Generate", mock.Anything, bySystemPrompt(explanationSystemPrompt)).Return("Nothing happened.", nil)
	llm.On("Generate", mock.Anything, bySystemPrompt(critiqueSystemPrompt)).Return("CONTINUE", nil)

	cfg := testAgentQConfig()
	cfg.MaxLoops = 2
	a, _ := newTestAgent(t, llm, cfg)

	res, err := a.Run(context.Background(), "Anything")
	require.NoError(t, err)
	assert.Equal(t, schemas.RunExhausted, res.Status)
	assert.Equal(t, int64(2), res.ParseFailures)
	assert.Contains(t, res.Scratchpad, "[OBSERVATION-1] No action to execute....")
}

func TestRunCanceled(t *testing.T) {
	a, _ := newTestAgent(t, llmclient.NewMockClient("1. Plan"), testAgentQConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := a.Run(ctx, "Anything")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, schemas.RunCanceled, res.Status)
}

func TestCritiqueGating(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		loop       int
		status     string
		url        string
		content    string
		wantDone   bool
		wantStatus schemas.RunStatus
	}{
		{"early complete is deferred", "COMPLETE", 1, "CONTINUE", "", "", false, schemas.RunSucceeded},
		{"early complete with complete status", "COMPLETE", 1, "COMPLETE", "", "", true, schemas.RunSucceeded},
		{"complete after min loops", "COMPLETE", 3, "", "", "", true, schemas.RunSucceeded},
		{"opentable confirmation", "CONTINUE", 1, "", "https://www.opentable.com/booking/view", "You're all set! Reservation confirmed.", true, schemas.RunSucceeded},
		{"confirmation text elsewhere", "CONTINUE", 1, "", "https://example.com", "Reservation confirmed", false, schemas.RunSucceeded},
		{"loop limit", "CONTINUE", 5, "", "", "", true, schemas.RunExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAgent(t, llmclient.NewMockClient(tt.response), testAgentQConfig())
			st := NewState("Book a table", 5, 3)
			st.LoopCount, st.Status, st.CurrentURL, st.PageContent = tt.loop, tt.status, tt.url, tt.content

			status, err := a.critique(context.Background(), st)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDone, st.Done)
			if tt.wantDone {
				assert.Equal(t, tt.wantStatus, status)
			}
		})
	}
}

func TestDescribeOutcome(t *testing.T) {
	long := strings.Repeat("x", observationContentChars+50)

	got := describeOutcome(Outcome{Success: true, Message: "Searched the web: tacos", Data: long}, "")
	assert.Equal(t, "Searched the web: tacos\nResult: "+strings.Repeat("x", observationContentChars)+"...", got)
	assert.False(t, strings.HasSuffix(got, "...."))

	got = describeOutcome(Outcome{Success: true, Message: "Extracted page content", Data: "[1] button Search"}, "")
	assert.Equal(t, "Extracted page content\nResult: [1] button Search", got)

	got = describeOutcome(Outcome{Success: true, Message: "Clicked 3"}, "Welcome")
	assert.Equal(t, "Clicked 3\nPage content: Welcome...", got)

	got = describeOutcome(Outcome{Message: "no element", Code: browser.ErrCodeElementNotFound}, "Welcome")
	assert.Equal(t, "Action failed [ELEMENT_NOT_FOUND]: no element", got)
}
