package agentq

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/browser"
)

// MockBrowser is a testify mock of Browser.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockBrowser) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockBrowser) ClickByID(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBrowser) SetInput(ctx context.Context, id, text string) error {
	return m.Called(ctx, id, text).Error(0)
}

func (m *MockBrowser) Clear(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBrowser) Submit(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBrowser) Scroll(ctx context.Context, direction string, amount int) error {
	return m.Called(ctx, direction, amount).Error(0)
}

func (m *MockBrowser) Screenshot(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockBrowser) Snapshot(ctx context.Context) (*browser.PageSnapshot, error) {
	args := m.Called(ctx)
	snap, _ := args.Get(0).(*browser.PageSnapshot)
	return snap, args.Error(1)
}

func (m *MockBrowser) FindAndUseSearchBar(ctx context.Context, query string) (bool, error) {
	args := m.Called(ctx, query)
	return args.Bool(0), args.Error(1)
}

// MockLLMClient is a testify mock of schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error { return nil }

// bySystemPrompt matches generation requests for one stage of the loop.
func bySystemPrompt(system string) any {
	return mock.MatchedBy(func(req schemas.GenerationRequest) bool { return req.SystemPrompt == system })
}
