package ai

import "context"

// MockProvider is a canned-reply Provider for tests and offline runs.
type MockProvider struct {
	// Reply is returned from every Complete call.
	Reply string

	// Err, when set, is returned from Complete and TestConnection.
	Err error

	// Calls records the conversations passed to Complete.
	Calls [][]Message
}

// Complete implements Provider.
func (m *MockProvider) Complete(_ context.Context, messages []Message) (string, error) {
	m.Calls = append(m.Calls, messages)
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply == "" {
		return "mock reply", nil
	}
	return m.Reply, nil
}

// TestConnection implements Provider.
func (m *MockProvider) TestConnection(context.Context) error {
	return m.Err
}

// Model implements Provider.
func (m *MockProvider) Model() string {
	return "mock"
}
