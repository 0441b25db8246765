package llm

import (
	"context"
	"fmt"
	"iter"

	"github.com/sorafy/sorafy-agent/internal/domain"
)

// MockModel is a scripted stand-in for the Gemini client, used in tests and
// in local mode. It yields Chunks in order; when FailAfter >= 0 it raises
// FailWith after that many chunks instead of finishing.
type MockModel struct {
	Chunks    []string
	FailAfter int
	FailWith  error

	// Calls records the request of each StreamMessage invocation.
	Calls []MockCall
}

type MockCall struct {
	System  string
	History []domain.ModelTurn
	Parts   []domain.TurnPart
}

func NewMockModel() *MockModel {
	return &MockModel{
		Chunks:    []string{"Style: a mock prompt ", "for your idea."},
		FailAfter: -1,
	}
}

func (m *MockModel) StreamMessage(
	ctx context.Context,
	system string,
	history []domain.ModelTurn,
	parts []domain.TurnPart,
) (iter.Seq2[string, error], error) {
	m.Calls = append(m.Calls, MockCall{System: system, History: history, Parts: parts})

	chunks := append([]string(nil), m.Chunks...)
	failAfter := m.FailAfter
	failWith := m.FailWith
	if failWith == nil {
		failWith = fmt.Errorf("mock stream failure")
	}

	return func(yield func(string, error) bool) {
		for i, chunk := range chunks {
			if failAfter >= 0 && i == failAfter {
				yield("", failWith)
				return
			}
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if failAfter >= 0 && failAfter >= len(chunks) {
			yield("", failWith)
		}
	}, nil
}

func (m *MockModel) AnalyzeImage(ctx context.Context, image domain.ImageFile, language domain.Language) (string, error) {
	return fmt.Sprintf("A mock description of %s.", image.Name), nil
}

func (m *MockModel) SuggestTitle(ctx context.Context, messages []domain.Message, language domain.Language) (string, error) {
	return "Mock Title", nil
}
