package linguistic

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/asergian/beacon-sub001/internal/enum"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/utils"
)

type entityPattern struct {
	kind enum.EntityType
	re   *regexp.Regexp
}

// Earlier patterns win when matches overlap.
var entityPatterns = []entityPattern{
	{enum.EntityURL, regexp.MustCompile(`https?://[^\s<>"')\]]+`)},
	{enum.EntityEmail, regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{enum.EntityMoney, regexp.MustCompile(`[$€£]\s?\d[\d,]*(?:\.\d+)?(?:\s?[kKmM]\b)?|\b\d[\d,]*(?:\.\d+)?\s?(?:USD|EUR|GBP|dollars|euros)\b`)},
	{enum.EntityDate, regexp.MustCompile(`(?i)\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b|\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?\b|\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|today|tomorrow|tonight)\b`)},
	{enum.EntityPhone, regexp.MustCompile(`\+?\(?\d{1,4}\)?[\s.-]?\d{2,4}[\s.-]\d{3,4}(?:[\s.-]\d{2,4})?\b`)},
	{enum.EntityProper, regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)},
}

var wordPattern = regexp.MustCompile(`\p{L}[\p{L}'-]{2,}`)

type urgencyTerm struct {
	phrase string
	weight float64
}

var urgencyTerms = []urgencyTerm{
	{"emergency", 0.5},
	{"urgent", 0.4},
	{"asap", 0.4},
	{"as soon as possible", 0.4},
	{"immediately", 0.35},
	{"critical", 0.3},
	{"overdue", 0.3},
	{"action required", 0.3},
	{"time-sensitive", 0.3},
	{"deadline", 0.25},
	{"end of day", 0.2},
	{"eod", 0.2},
	{"today", 0.15},
	{"important", 0.15},
	{"tomorrow", 0.1},
	{"reminder", 0.1},
}

const (
	exclamationWeight = 0.05
	maxExclamations   = 3
)

type match struct {
	start, end int
	entity     models.Entity
}

// Analyze extracts entities, keywords and an urgency score from text. The same text always yields the
// same insight.
func Analyze(text string, maxRunes, maxKeywords int) models.LinguisticInsight {
	insight := models.LinguisticInsight{Entities: []models.Entity{}, Keywords: []string{}}
	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		text = utils.TruncateRunes(text, maxRunes)
		insight.Truncated = true
	}
	if strings.TrimSpace(text) == "" {
		return insight
	}

	insight.Entities = extractEntities(text)
	insight.Keywords = extractKeywords(text, maxKeywords)
	insight.UrgencyScore = urgencyScore(text)
	return insight
}

func extractEntities(text string) []models.Entity {
	var matches []match
	taken := make([]bool, len(text))

	for _, pattern := range entityPatterns {
		for _, loc := range pattern.re.FindAllStringIndex(text, -1) {
			overlap := false
			for i := loc[0]; i < loc[1]; i++ {
				if taken[i] {
					overlap = true
					break
				}
			}
			if overlap {
				continue
			}
			for i := loc[0]; i < loc[1]; i++ {
				taken[i] = true
			}
			value := strings.TrimSpace(text[loc[0]:loc[1]])
			if pattern.kind == enum.EntityURL {
				value = strings.TrimRight(value, ".,;:!?")
			}
			matches = append(matches, match{start: loc[0], end: loc[1], entity: models.Entity{Text: value, Type: pattern.kind}})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	seen := make(map[models.Entity]struct{}, len(matches))
	entities := make([]models.Entity, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.entity]; ok {
			continue
		}
		seen[m.entity] = struct{}{}
		entities = append(entities, m.entity)
	}
	return entities
}

// extractKeywords ranks non stop words by frequency, ties broken alphabetically.
func extractKeywords(text string, limit int) []string {
	counts := make(map[string]int)
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		word = strings.Trim(word, "'-")
		if utf8.RuneCountInString(word) < 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		counts[word]++
	}

	keywords := make([]string, 0, len(counts))
	for word := range counts {
		keywords = append(keywords, word)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

func urgencyScore(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, term := range urgencyTerms {
		if containsWord(lower, term.phrase) {
			score += term.weight
		}
	}
	score += float64(min(strings.Count(text, "!"), maxExclamations)) * exclamationWeight
	return math.Round(math.Min(score, 1)*100) / 100
}

// containsWord matches phrase on word boundaries.
func containsWord(text, phrase string) bool {
	for offset := 0; ; {
		idx := strings.Index(text[offset:], phrase)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(phrase)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		offset = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
