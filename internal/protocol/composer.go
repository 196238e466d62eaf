package protocol

import "strings"

// Compose builds the exact text sent to the model for a turn.
//
// Critique turns pass through untouched: the model already holds the full
// protocol context, re-framing would only confuse it. Fresh tasks get the
// standing-constraints block (when any constraints exist) and a mode marker
// ahead of the task text. Meta-question turns never reach Compose; the
// introspection redactor builds those prompts wholesale.
//
// Compose never fails: empty constraints simply omit the block.
func Compose(userText string, stage Stage, constraints []string, chain bool) string {
	if stage == StageAwaitingCritique {
		return userText
	}

	var b strings.Builder
	if block := constraintsBlock(constraints); block != "" {
		b.WriteString(block)
		b.WriteString("\n\n")
	}
	if chain {
		b.WriteString(chainMarker)
	} else {
		b.WriteString(standardMarker)
	}
	b.WriteString("\n\nTask:\n")
	b.WriteString(userText)
	return b.String()
}

func constraintsBlock(constraints []string) string {
	var rules []string
	for _, c := range constraints {
		if c = strings.TrimSpace(c); c != "" {
			rules = append(rules, "- "+c)
		}
	}
	if len(rules) == 0 {
		return ""
	}
	return "[" + StandingConstraintsTitle + "]\n" + strings.Join(rules, "\n")
}
