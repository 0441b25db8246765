package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorafy/sorafy-agent/internal/adapters/llm"
	"github.com/sorafy/sorafy-agent/internal/domain"
)

func TestBuildTitlePromptUnwrapsEnvelope(t *testing.T) {
	content, err := domain.EncodeEnvelope(domain.InitialSettings{
		PromptLanguage: "English",
		Orientation:    domain.OrientationPortrait,
		Duration:       8,
		Idea:           "a paper boat on a rainy street",
	})
	require.NoError(t, err)

	prompt := llm.BuildTitlePrompt([]domain.Message{
		{ID: "1", Role: domain.RoleUser, Content: content},
		{ID: "2", Role: domain.RoleModel, Content: "Style: miniature diorama..."},
	}, domain.LanguageEnglish)

	// The seed message contributes its idea, not the raw JSON.
	assert.Contains(t, prompt, "a paper boat on a rainy street")
	assert.NotContains(t, prompt, "dataUrl")
	assert.Contains(t, prompt, "Answer in English")
	assert.Contains(t, prompt, "Style: miniature diorama")
}

func TestBuildTitlePromptChinese(t *testing.T) {
	prompt := llm.BuildTitlePrompt([]domain.Message{
		{ID: "1", Role: domain.RoleUser, Content: "hello"},
	}, domain.LanguageChinese)
	assert.Contains(t, prompt, "Answer in Chinese")
}
