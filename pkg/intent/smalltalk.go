// Package intent recognizes casual conversation so it can be answered
// without a model round trip.
package intent

import (
	"regexp"
	"strings"
)

// Category is the kind of small talk detected.
type Category string

const (
	CategoryNone      Category = ""
	CategoryGreeting  Category = "greeting"
	CategoryWellbeing Category = "wellbeing"
	CategoryGratitude Category = "gratitude"
	CategoryHelp      Category = "help"
)

const (
	GreetingReply  = "Hello there! 👋 I'm your analytics assistant. Ask me about import trends, totals, or comparisons."
	WellbeingReply = "I'm doing great — thanks for asking! 😊 How can I help you explore your import data today?"
	GratitudeReply = "You're welcome! Happy to help anytime. 🙌"
	HelpReply      = "I am an AI Data Agent designed to analyze your Import/Export data.<br><br>" +
		"I can help you with:<br>" +
		"• **Data Retrieval:** 'Show me full export data for Zinc.'<br>" +
		"• **Analysis:** 'Who are the top 5 importers?'<br>" +
		"• **Comparison:** 'Compare air vs sea shipments.'"
)

type rule struct {
	category Category
	reply    string
	pattern  *regexp.Regexp
}

// Rules are checked in order; the first match wins.
var rules = []rule{
	{CategoryGreeting, GreetingReply, phrasePattern(
		"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "hola")},
	{CategoryWellbeing, WellbeingReply, phrasePattern(
		"how are you", "how's it going", "how are things", "how are you doing")},
	{CategoryGratitude, GratitudeReply, phrasePattern(
		"thanks", "thank you", "appreciate", "great job", "cool", "awesome")},
	{CategoryHelp, HelpReply, phrasePattern(
		"help", "what can you do", "who are you", "what is this", "what do you do",
		"capabilities", "features", "function", "what is your purpose")},
}

// phrasePattern matches any phrase as whole words.
func phrasePattern(phrases ...string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

var whitespace = regexp.MustCompile(`\s+`)

// Normalize lower-cases the text and collapses runs of whitespace.
func Normalize(text string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
}

// Classify returns the small-talk category of text and its canned reply,
// or CategoryNone and "" when the text should go to the query pipeline.
func Classify(text string) (Category, string) {
	normalized := Normalize(text)
	if normalized == "" {
		return CategoryNone, ""
	}
	for _, r := range rules {
		if r.pattern.MatchString(normalized) {
			return r.category, r.reply
		}
	}
	return CategoryNone, ""
}
