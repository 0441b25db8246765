package domain_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorafy/sorafy-agent/internal/domain"
)

func TestEncodeDecodeEnvelope(t *testing.T) {
	settings := domain.InitialSettings{
		PromptLanguage: "English",
		Orientation:    domain.OrientationLandscape,
		Duration:       10,
		Idea:           "a cat surfing a wave",
		ReferenceImages: []domain.ImageFile{
			{Name: "ref.png", Type: "image/png", DataURL: "data:image/png;base64,aGVsbG8="},
		},
	}

	content, err := domain.EncodeEnvelope(settings)
	require.NoError(t, err)

	env, ok := domain.DecodeEnvelope(content)
	require.True(t, ok)
	assert.Equal(t, settings.Idea, env.Idea)
	assert.Equal(t, settings.PromptLanguage, env.PromptLanguage)
	assert.Equal(t, settings.Orientation, env.Orientation)
	assert.Equal(t, settings.Duration, env.Duration)

	// The file name is dropped on encode.
	require.Len(t, env.Images, 1)
	assert.Equal(t, "image/png", env.Images[0].Type)
	assert.Equal(t, settings.ReferenceImages[0].DataURL, env.Images[0].DataURL)
	assert.NotContains(t, content, "ref.png")
}

func TestDecodeEnvelopeRejectsNonEnvelopes(t *testing.T) {
	cases := map[string]string{
		"free text":         "make the lighting warmer",
		"broken json":       `{"idea": "x"`,
		"unrelated json":    `{"foo": "bar"}`,
		"missing idea":      `{"orientation":"portrait","promptLanguage":"English"}`,
		"empty orientation": `{"idea":"x","orientation":"","promptLanguage":"English"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := domain.DecodeEnvelope(content)
			assert.False(t, ok)
		})
	}
}

func TestParseMessageContentOnlyClassifiesSeedMessage(t *testing.T) {
	content, err := domain.EncodeEnvelope(domain.InitialSettings{
		PromptLanguage: "English",
		Orientation:    domain.OrientationPortrait,
		Duration:       5,
		Idea:           "a quiet forest",
	})
	require.NoError(t, err)

	msg := domain.Message{ID: "m1", Role: domain.RoleUser, Content: content, Timestamp: time.Now()}

	parsed := domain.ParseMessageContent(0, msg)
	assert.Equal(t, domain.ContentEnvelope, parsed.Kind)
	assert.Equal(t, "a quiet forest", parsed.Envelope.Idea)

	// The same content at any other index stays plain text.
	parsed = domain.ParseMessageContent(3, msg)
	assert.Equal(t, domain.ContentPlainText, parsed.Kind)
	assert.Equal(t, content, parsed.Text)

	// A model message at index 0 is never an envelope.
	msg.Role = domain.RoleModel
	parsed = domain.ParseMessageContent(0, msg)
	assert.Equal(t, domain.ContentPlainText, parsed.Kind)
}

func TestDecodeDataURL(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("pixels"))

	data, err := domain.DecodeDataURL("data:image/png;base64," + payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), data)

	// Bare base64 without the data: prefix is accepted too.
	data, err = domain.DecodeDataURL(payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), data)

	_, err = domain.DecodeDataURL("data:image/png;base64,!!!!")
	assert.Error(t, err)
}
