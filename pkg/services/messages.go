package services

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// User-facing answers for pipeline outcomes that carry no data. Internal
// error detail is logged, never returned.
const (
	MsgCompletionUnavailable = "I'm sorry, I couldn't process that question right now. Please try rephrasing it."
	MsgGenericFailure        = "I'm sorry, I encountered a temporary issue while generating that insight. Please try rephrasing your question."
	MsgNoSQL                 = "I'm sorry, I couldn't generate a SQL query for that."
	MsgExecutionFailed       = "I couldn't run the generated SQL query correctly. Please rephrase your question or try again."
	MsgDeadlineExceeded      = "That question took too long to answer. Please try a narrower question."
	MsgExportCapacity        = "The export queue is full right now. Please try again in a few minutes."
)

// noRowsMessage echoes the question back when the query matched nothing.
func noRowsMessage(question string) string {
	return fmt.Sprintf("I've looked for the data you requested:\n`%s`\nHowever, I couldn't find any matching records in the database.", question)
}

// exportStartedMessage is the answer returned while a large result is
// written to a spreadsheet in the background.
func exportStartedMessage(answer, insight string, rows int) string {
	pr := message.NewPrinter(language.English)
	return joinParagraphs(answer, insight,
		pr.Sprintf("⏳ The dataset contains **%d rows**. I am preparing a downloadable Excel file...", rows))
}

func joinParagraphs(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += p
	}
	return out
}
