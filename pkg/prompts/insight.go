package prompts

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ekaya-inc/exim-agent/pkg/models"
)

const (
	maxSampleNames = 10
	maxNameRunes   = 75
	notAvailable   = "N/A"
)

// sampleNameColumns are checked case-insensitively in result column order.
var sampleNameColumns = map[string]bool{
	"product_name":           true,
	"importer/exporter_name": true,
	"formatted_name":         true,
	"product":                true,
}

// BuildInsightPrompt creates the narrative prompt for a question's results.
// Numbers come from the aggregate statistics; the first rows only supply
// sample names. It returns false when rows or stats are missing.
func BuildInsightPrompt(question string, rows []models.Row, stats *models.SummaryStats) (string, bool) {
	if stats == nil || len(rows) == 0 {
		return "", false
	}

	pr := message.NewPrinter(language.English)
	entity := stats.EntityLabel
	if entity == "" {
		entity = "Company"
	}

	var p strings.Builder
	fmt.Fprintf(&p, "You are a business analyst reviewing import/export data. The user asked: %q\n\n", question)
	p.WriteString("Here is the complete statistical summary for the data matching that query:\n\n")

	p.WriteString(pr.Sprintf("COMPLETE DATASET STATISTICS (from all %d records):\n", stats.TotalRecords))
	p.WriteString(pr.Sprintf("- Total Records: %d\n", stats.TotalRecords))
	p.WriteString(pr.Sprintf("- Total %s: %d\n", inflection.Plural(entity), stats.TotalEntities))
	fmt.Fprintf(&p, "- Total Value: %s\n", rupees(pr, stats.TotalValueINR))
	fmt.Fprintf(&p, "- Total Quantity: %s KG\n", decimal(pr, stats.TotalQuantityKG))
	fmt.Fprintf(&p, "- Weighted Average Price: %s per KG\n", rupees(pr, stats.WeightedAvgPriceINR))
	fmt.Fprintf(&p, "- Highest Single Shipment: %s\n", rupees(pr, stats.MaxShipmentValue))
	fmt.Fprintf(&p, "- Date Range: %s to %s\n", orNA(stats.EarliestDate), orNA(stats.LatestDate))
	fmt.Fprintf(&p, "- Top %s: %s (%s)\n", entity, truncateName(orNA(stats.TopEntity)), rupees(pr, stats.TopEntityValue))
	p.WriteString(pr.Sprintf("- Unique Trading Days: %d\n", stats.UniqueDates))

	if names := sampleNames(rows); len(names) > 0 {
		p.WriteString("\nSAMPLE NAMES (lower priority, qualitative context only):\n")
		for _, n := range names {
			p.WriteString("- ")
			p.WriteString(n)
			p.WriteString("\n")
		}
		if len(rows) > maxSampleNames {
			p.WriteString(pr.Sprintf("\n... (showing top %d of %d results)\n", maxSampleNames, len(rows)))
		}
	}

	p.WriteString("\nCRITICAL: every numerical claim MUST come from the COMPLETE DATASET STATISTICS above.\n")
	p.WriteString("The sample names may be incomplete and are only qualitative context.\n\n")
	p.WriteString("Write a concise, professional analysis of 3-5 sentences covering:\n")
	p.WriteString("1. Scale and scope: the overall market size from the complete statistics.\n")
	fmt.Fprintf(&p, "2. Key players: the top %s from the statistics, with the sample names for context.\n", strings.ToLower(entity))
	p.WriteString("3. Pricing: the weighted average price and any notable pattern.\n")
	p.WriteString("4. Business implications: what these numbers mean for the market.\n")
	p.WriteString("Respond with natural paragraphs, no bullet points, citing specific numbers.\n")

	return p.String(), true
}

// sampleNames returns up to ten names from the first recognised name column.
func sampleNames(rows []models.Row) []string {
	column := ""
	for _, c := range rows[0].Columns() {
		if sampleNameColumns[strings.ToLower(c)] {
			column = c
			break
		}
	}
	if column == "" {
		return nil
	}

	names := make([]string, 0, maxSampleNames)
	for _, row := range rows[:min(len(rows), maxSampleNames)] {
		v, _ := row.Get(column)
		if v == nil {
			names = append(names, notAvailable)
			continue
		}
		names = append(names, truncateName(fmt.Sprint(v)))
	}
	return names
}

func truncateName(s string) string {
	r := []rune(s)
	if len(r) <= maxNameRunes {
		return s
	}
	return string(r[:maxNameRunes]) + "..."
}

func rupees(pr *message.Printer, v *float64) string {
	if v == nil {
		return notAvailable
	}
	return pr.Sprintf("₹%.2f", *v)
}

func decimal(pr *message.Printer, v *float64) string {
	if v == nil {
		return notAvailable
	}
	return pr.Sprintf("%.2f", *v)
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
