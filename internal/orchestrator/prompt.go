package orchestrator

import (
	"fmt"
	"strings"

	"tiryaq/voice/internal/tenant"
	"tiryaq/voice/internal/types"
)

// promptHistory is how many history entries go into each request: the last
// two exchanges.
const promptHistory = 4

// SystemPrompt builds the grounding prompt for a tenant. The knowledge
// excerpt is included as stored and the model is told to refuse anything
// outside it.
func SystemPrompt(p tenant.Profile, id Identity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# IDENTITY:\nYou are %q, a voice assistant for %s.\n", p.Persona.Name, p.Name)
	b.WriteString("Speak naturally and warmly in the caller's dialect. Keep every answer short, at most 20 words.\n")
	if id.FirstName != "" {
		fmt.Fprintf(&b, "The caller's name is %s.\n", id.FirstName)
	}
	if id.LongTermMemory != "" {
		fmt.Fprintf(&b, "\n# CALLER NOTES:\n%s\n", id.LongTermMemory)
	}

	b.WriteString("\n# KNOWLEDGE BASE GROUNDING:\nUse the following data as your ONLY source for facts about services, prices or company info:\n")
	b.WriteString(p.Knowledge)
	b.WriteString("\n\n# CRITICAL SAFETY:\n")
	fmt.Fprintf(&b, "If a factual question is not answered by the knowledge base, say: %q\nDo not make up any information.\n", p.Persona.Refusal)

	if len(p.Persona.Rules) > 0 {
		b.WriteString("\n# PERSONA CUSTOMIZATION:\n")
		b.WriteString(strings.Join(p.Persona.Rules, "\n"))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n# OUTPUT FORMAT:\nReply in language %q only.", p.Persona.Language)
	return b.String()
}

// BuildMessages assembles one request: system prompt, recent history and the
// new utterance.
func BuildMessages(p tenant.Profile, conv *Conversation, utterance string) []types.Turn {
	recent := conv.Recent(promptHistory)
	msgs := make([]types.Turn, 0, len(recent)+2)
	msgs = append(msgs, types.Turn{Role: types.RoleSystem, Content: SystemPrompt(p, conv.Identity)})
	msgs = append(msgs, recent...)
	msgs = append(msgs, types.Turn{Role: types.RoleUser, Content: utterance})
	return msgs
}
