package timeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorafy/sorafy-agent/internal/app/timeline"
	"github.com/sorafy/sorafy-agent/internal/domain"
)

func msgs(roles ...domain.Role) []domain.Message {
	out := make([]domain.Message, len(roles))
	for i, r := range roles {
		out[i] = domain.Message{
			ID:      domain.MessageID(rune('a' + i)),
			Role:    r,
			Content: "msg-" + string(rune('a'+i)),
		}
	}
	return out
}

func TestAppendDoesNotAliasInput(t *testing.T) {
	original := msgs(domain.RoleUser, domain.RoleModel)
	extended := timeline.Append(original, domain.Message{ID: "x", Role: domain.RoleUser})

	require.Len(t, extended, 3)
	require.Len(t, original, 2)
	extended[0].Content = "mutated"
	assert.Equal(t, "msg-a", original[0].Content)
}

func TestEditInPlaceTruncatesSuffix(t *testing.T) {
	timelineMsgs := msgs(domain.RoleUser, domain.RoleModel, domain.RoleUser, domain.RoleModel)

	edited, msg, ok := timeline.EditInPlace(timelineMsgs, "c", "new content")
	require.True(t, ok)

	// Editing index i leaves exactly i+1 messages.
	require.Len(t, edited, 3)
	assert.Equal(t, domain.MessageID("c"), msg.ID)
	assert.Equal(t, "new content", edited[2].Content)
	assert.Equal(t, domain.RoleUser, edited[2].Role)

	// Id, role and timestamp survive the edit; only content changes.
	assert.Equal(t, timelineMsgs[2].ID, edited[2].ID)
	assert.Equal(t, timelineMsgs[2].Timestamp, edited[2].Timestamp)
}

func TestEditInPlaceUnknownID(t *testing.T) {
	timelineMsgs := msgs(domain.RoleUser)
	_, _, ok := timeline.EditInPlace(timelineMsgs, "zzz", "content")
	assert.False(t, ok)
}

func TestDeleteUserMessageAndDescendants(t *testing.T) {
	timelineMsgs := msgs(domain.RoleUser, domain.RoleModel, domain.RoleUser, domain.RoleModel)

	out, ok := timeline.DeleteUserMessageAndDescendants(timelineMsgs, "c")
	require.True(t, ok)
	require.Len(t, out, 2)
	assert.Equal(t, domain.MessageID("a"), out[0].ID)
	assert.Equal(t, domain.MessageID("b"), out[1].ID)

	// Refuses model messages.
	_, ok = timeline.DeleteUserMessageAndDescendants(timelineMsgs, "b")
	assert.False(t, ok)
}

func TestDeleteModelMessageOnly(t *testing.T) {
	timelineMsgs := msgs(domain.RoleUser, domain.RoleModel, domain.RoleUser, domain.RoleModel)

	out, ok := timeline.DeleteModelMessageOnly(timelineMsgs, "b")
	require.True(t, ok)
	require.Len(t, out, 3)
	assert.Equal(t, domain.MessageID("a"), out[0].ID)
	assert.Equal(t, domain.MessageID("c"), out[1].ID)
	assert.Equal(t, domain.MessageID("d"), out[2].ID)

	// Refuses user messages.
	_, ok = timeline.DeleteModelMessageOnly(timelineMsgs, "c")
	assert.False(t, ok)
}

func TestTruncateLast(t *testing.T) {
	timelineMsgs := msgs(domain.RoleUser, domain.RoleModel)

	out := timeline.TruncateLast(timelineMsgs)
	require.Len(t, out, 1)
	assert.Equal(t, domain.MessageID("a"), out[0].ID)

	assert.Empty(t, timeline.TruncateLast(nil))
}
