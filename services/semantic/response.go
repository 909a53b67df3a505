package semantic

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/utils"
)

// rawResponse is the LLM answer before validation. Entries are decoded one by one so a bad entry only
// costs its own message.
type rawResponse struct {
	Results []json.RawMessage `json:"results"`
}

// rawEntry keeps the scalar fields undecoded; they are coerced in toRawResult.
type rawEntry struct {
	ID          json.RawMessage `json:"id"`
	Category    json.RawMessage `json:"category"`
	Priority    json.RawMessage `json:"priority"`
	NeedsAction json.RawMessage `json:"needsAction"`
	ActionItems json.RawMessage `json:"actionItems"`
	Summary     json.RawMessage `json:"summary"`
}

// rawResult is one validated entry.
type rawResult struct {
	Category    string
	Priority    int
	NeedsAction bool
	ActionItems []rawActionItem
	Summary     string
}

type rawActionItem struct {
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
}

func unmarshalAIJSON(raw string, out interface{}) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err == nil {
			return nil
		}
	}
	return errors.Wrapf(apperrors.ErrLLMMalformed, "unparseable response %q", utils.TruncateRunes(raw, 120))
}

// parseResponse decodes a chunk answer and indexes it by message id. Entries with an id but unusable
// fields are returned in invalid. A response without a single usable entry counts as malformed.
func parseResponse(text string) (map[string]rawResult, map[string]error, error) {
	var resp rawResponse
	if err := unmarshalAIJSON(text, &resp); err != nil {
		return nil, nil, err
	}
	byID := make(map[string]rawResult, len(resp.Results))
	invalid := make(map[string]error)
	for _, entry := range resp.Results {
		var e rawEntry
		if err := json.Unmarshal(entry, &e); err != nil {
			continue
		}
		id := rawID(e.ID)
		if id == "" {
			continue
		}
		if _, dup := byID[id]; dup {
			continue
		}
		if _, dup := invalid[id]; dup {
			continue
		}
		r, err := toRawResult(e)
		if err != nil {
			invalid[id] = errors.Wrap(apperrors.ErrLLMMalformed, err.Error())
			continue
		}
		byID[id] = r
	}
	if len(byID) == 0 {
		return nil, nil, errors.Wrap(apperrors.ErrLLMMalformed, "response has no usable results")
	}
	return byID, invalid, nil
}

func toRawResult(e rawEntry) (rawResult, error) {
	var r rawResult
	var ok bool
	if r.Category, ok = looseString(e.Category); !ok {
		return r, errors.New("category is not a string")
	}
	if r.Summary, ok = looseString(e.Summary); !ok {
		return r, errors.New("summary is not a string")
	}
	if r.Priority, ok = loosePriority(e.Priority); !ok {
		return r, errors.Errorf("priority %s is not a number", string(e.Priority))
	}
	if r.NeedsAction, ok = looseBool(e.NeedsAction); !ok {
		return r, errors.Errorf("needsAction %s is not a boolean", string(e.NeedsAction))
	}
	if !isNull(e.ActionItems) {
		if err := json.Unmarshal(e.ActionItems, &r.ActionItems); err != nil {
			return r, errors.New("actionItems is not a list of items")
		}
	}
	return r, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func looseString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// loosePriority accepts numbers and numeric strings, clamped to 0..100.
func loosePriority(raw json.RawMessage) (int, bool) {
	if isNull(raw) {
		return 0, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		s, ok := looseString(raw)
		if !ok {
			return 0, false
		}
		n = json.Number(strings.TrimSpace(s))
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return clampPriority(f), true
}

// looseBool accepts booleans and the strings "true" and "false".
func looseBool(raw json.RawMessage) (bool, bool) {
	if isNull(raw) {
		return false, true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	s, ok := looseString(raw)
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// rawID accepts ids echoed as strings or bare numbers.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// categorySet is the allowed set for one request: the standard categories plus up to three custom ones.
type categorySet struct {
	ordered []string
	byLower map[string]string
}

func newCategorySet(custom []string) categorySet {
	set := categorySet{byLower: make(map[string]string)}
	add := func(c string) bool {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || key == strings.ToLower(enum.CategoryUnclassified) {
			return false
		}
		if _, ok := set.byLower[key]; ok {
			return false
		}
		set.byLower[key] = c
		set.ordered = append(set.ordered, c)
		return true
	}
	for _, c := range enum.StandardCategories {
		add(c)
	}
	added := 0
	for _, c := range custom {
		if added == enum.MaxCustomCategories {
			break
		}
		if add(c) {
			added++
		}
	}
	return set
}

// coerce returns the canonical spelling of category, or Unclassified when it is not allowed.
func (s categorySet) coerce(category string) string {
	if c, ok := s.byLower[strings.ToLower(strings.TrimSpace(category))]; ok {
		return c
	}
	return enum.CategoryUnclassified
}

func (s categorySet) prompt() []string {
	return append(append([]string{}, s.ordered...), enum.CategoryUnclassified)
}

func clampPriority(f float64) int {
	return int(math.Round(math.Max(0, math.Min(100, f))))
}

var dueDateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006/01/02"}

func parseDueDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func toActionItems(items []rawActionItem) []models.ActionItem {
	out := make([]models.ActionItem, 0, len(items))
	for _, item := range items {
		description := strings.TrimSpace(item.Description)
		if description == "" {
			continue
		}
		out = append(out, models.ActionItem{Description: description, DueDate: parseDueDate(item.DueDate)})
	}
	return out
}
