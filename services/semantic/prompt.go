package semantic

import (
	"fmt"
	"strings"

	"github.com/asergian/beacon-sub001/internal/enum"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/utils"
)

const systemPromptTemplate = `You triage email for a busy person.

Do not invent messages, ids or categories. Do not add commentary, markdown or code fences.
Do not use any category that is not in this list: %s.
If no category fits, use "%s".

For every message return one object with:
- "id": the message id exactly as given
- "category": one category from the list
- "priority": integer 0-100, how soon the reader should look at it
- "needsAction": true when the reader has to reply or do something
- "actionItems": list of {"description": string, "dueDate": "YYYY-MM-DD" or null}
- "summary": at most %d characters

Respond with a single JSON object: {"results": [ ... ]}`

const strictSuffix = `

Your previous answer could not be parsed. Return ONLY the JSON object. The first character of your
answer must be "{" and the last must be "}". Include exactly one result per message id.`

func buildSystemPrompt(allowed []string, summaryLength int, strict bool) string {
	quoted := make([]string, len(allowed))
	for i, c := range allowed {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	if summaryLength <= 0 {
		summaryLength = 200
	}
	prompt := fmt.Sprintf(systemPromptTemplate, strings.Join(quoted, ", "), enum.CategoryUnclassified, summaryLength)
	if strict {
		prompt += strictSuffix
	}
	return prompt
}

// buildPrompt renders one chunk. Each body is cut to the smaller of maxRunes and contextLength.
func buildPrompt(inputs []models.AnalysisInput, maxRunes, contextLength int) string {
	if contextLength > 0 && (maxRunes <= 0 || contextLength < maxRunes) {
		maxRunes = contextLength
	}
	var sb strings.Builder
	sb.WriteString("Messages:\n")
	for _, input := range inputs {
		msg := input.Message
		sb.WriteString("\n---\n")
		fmt.Fprintf(&sb, "id: %s\n", msg.ID)
		fmt.Fprintf(&sb, "from: %s\n", formatAddress(msg.From))
		fmt.Fprintf(&sb, "subject: %s\n", msg.Subject)
		fmt.Fprintf(&sb, "date: %s\n", msg.Date.Format("2006-01-02 15:04 MST"))
		if msg.Classification != "" && msg.Classification != enum.EmailOK {
			fmt.Fprintf(&sb, "sender type: %s\n", msg.Classification)
		}
		if input.Insight != nil {
			if len(input.Insight.Keywords) > 0 {
				fmt.Fprintf(&sb, "keywords: %s\n", strings.Join(input.Insight.Keywords, ", "))
			}
			fmt.Fprintf(&sb, "urgency hint: %.2f\n", input.Insight.UrgencyScore)
		}
		body := msg.BodyText
		if maxRunes > 0 {
			body = utils.TruncateRunes(body, maxRunes)
		}
		sb.WriteString("body:\n")
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatAddress(a models.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}
