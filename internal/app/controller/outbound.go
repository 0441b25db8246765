package controller

import (
	"fmt"
	"strings"

	"github.com/sorafy/sorafy-agent/internal/domain"
)

// buildEnvelopeInstruction spells out the structured creation parameters for
// the model. This is the only point where reference images are transmitted.
func buildEnvelopeInstruction(env domain.Envelope) string {
	var b strings.Builder
	b.WriteString("Generate a sora-2 prompt based on the following requirements:\n")
	fmt.Fprintf(&b, "Idea: %s\n", env.Idea)
	fmt.Fprintf(&b, "Language for response: %s\n", env.PromptLanguage)
	fmt.Fprintf(&b, "Orientation: %s\n", env.Orientation)
	fmt.Fprintf(&b, "Duration: %d seconds.", env.Duration)
	if len(env.Images) > 0 {
		fmt.Fprintf(&b, "\nI have also provided %d reference image(s).", len(env.Images))
	}
	return b.String()
}

// buildContextNote restates the session's original constraints. The remote
// chat is reconstructed fresh on every call and does not retain them.
func buildContextNote(settings domain.InitialSettings) string {
	return fmt.Sprintf(
		"\n\n(System Note: Remember the initial settings: Language for response: %s, Orientation: %s, Duration: %d seconds.)",
		settings.PromptLanguage, settings.Orientation, settings.Duration,
	)
}
