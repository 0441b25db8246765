// Package timeline holds the pure mutation operations over one session's
// ordered message list. Functions never alias their input slice; callers
// commit results through the session repository.
package timeline

import "github.com/sorafy/sorafy-agent/internal/domain"

// Append returns the timeline with msg pushed to the end.
func Append(msgs []domain.Message, msg domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs)+1)
	out = append(out, msgs...)
	return append(out, msg)
}

// EditInPlace replaces the content of the message with the given id and
// truncates everything after it: later messages were conditioned on the old
// content and are no longer valid. The edited message keeps its id, role and
// timestamp. Returns the edited message and false when the id is unknown.
func EditInPlace(msgs []domain.Message, id domain.MessageID, content string) ([]domain.Message, domain.Message, bool) {
	idx := indexOf(msgs, id)
	if idx < 0 {
		return msgs, domain.Message{}, false
	}
	out := make([]domain.Message, idx+1)
	copy(out, msgs[:idx+1])
	out[idx].Content = content
	return out, out[idx], true
}

// DeleteUserMessageAndDescendants removes the identified user message and the
// whole suffix after it, since every later turn depended on it.
func DeleteUserMessageAndDescendants(msgs []domain.Message, id domain.MessageID) ([]domain.Message, bool) {
	idx := indexOf(msgs, id)
	if idx < 0 || msgs[idx].Role != domain.RoleUser {
		return msgs, false
	}
	out := make([]domain.Message, idx)
	copy(out, msgs[:idx])
	return out, true
}

// DeleteModelMessageOnly removes exactly the identified model message,
// leaving the rest of the timeline intact so it can be regenerated or
// continued.
func DeleteModelMessageOnly(msgs []domain.Message, id domain.MessageID) ([]domain.Message, bool) {
	idx := indexOf(msgs, id)
	if idx < 0 || msgs[idx].Role != domain.RoleModel {
		return msgs, false
	}
	out := make([]domain.Message, 0, len(msgs)-1)
	out = append(out, msgs[:idx]...)
	return append(out, msgs[idx+1:]...), true
}

// TruncateLast drops exactly the final message. Used by regenerate to remove
// the last model reply before recomputing it.
func TruncateLast(msgs []domain.Message) []domain.Message {
	if len(msgs) == 0 {
		return msgs
	}
	out := make([]domain.Message, len(msgs)-1)
	copy(out, msgs[:len(msgs)-1])
	return out
}

func indexOf(msgs []domain.Message, id domain.MessageID) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}
