package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteYearPredicates(t *testing.T) {
	const prefix = "SELECT * FROM View_Clean_Imports WHERE "
	tests := []struct {
		name     string
		where    string
		expected string
	}{
		{
			name:     "greater or equal literal",
			where:    "YEAR(BE_Date) >= 2023",
			expected: "BE_Date >= DATEFROMPARTS(2023, 1, 1)",
		},
		{
			name:     "strictly greater moves to next year",
			where:    "YEAR(e.SB_Date) > 2022",
			expected: "e.SB_Date >= DATEFROMPARTS(2023, 1, 1)",
		},
		{
			name:     "less or equal includes the whole year",
			where:    "YEAR([BE_Date]) <= YEAR(GETDATE()) - 1",
			expected: "[BE_Date] < DATEFROMPARTS(YEAR(GETDATE()), 1, 1)",
		},
		{
			name:     "strictly less",
			where:    "YEAR(BE_Date) < 2020",
			expected: "BE_Date < DATEFROMPARTS(2020, 1, 1)",
		},
		{
			name:     "equality becomes a one-year range",
			where:    "YEAR(BE_Date) = 2024",
			expected: "(BE_Date >= DATEFROMPARTS(2024, 1, 1) AND BE_Date < DATEFROMPARTS(2025, 1, 1))",
		},
		{
			name:     "last year relative",
			where:    "YEAR(BE_Date) = YEAR(GETDATE()) - 1",
			expected: "(BE_Date >= DATEFROMPARTS(YEAR(GETDATE()) - 1, 1, 1) AND BE_Date < DATEFROMPARTS(YEAR(GETDATE()), 1, 1))",
		},
		{
			name:     "two years ago onwards",
			where:    "YEAR(BE_Date) >= YEAR(GETDATE()) - 2",
			expected: "BE_Date >= DATEFROMPARTS(YEAR(GETDATE()) - 2, 1, 1)",
		},
		{
			name:     "this year",
			where:    "YEAR(BE_Date) = YEAR(GETDATE())",
			expected: "(BE_Date >= DATEFROMPARTS(YEAR(GETDATE()), 1, 1) AND BE_Date < DATEFROMPARTS(YEAR(GETDATE()) + 1, 1, 1))",
		},
		{
			name:     "parenthesized relative year",
			where:    "YEAR(BE_Date) >= (YEAR(GETDATE()) - 3)",
			expected: "BE_Date >= DATEFROMPARTS(YEAR(GETDATE()) - 3, 1, 1)",
		},
		{
			name:     "between",
			where:    "YEAR(BE_Date) BETWEEN 2022 AND 2024 AND Quantity_KG > 0",
			expected: "(BE_Date >= DATEFROMPARTS(2022, 1, 1) AND BE_Date < DATEFROMPARTS(2025, 1, 1)) AND Quantity_KG > 0",
		},
		{
			name:     "not equal is left alone",
			where:    "YEAR(BE_Date) <> 2024",
			expected: "YEAR(BE_Date) <> 2024",
		},
		{
			name:     "arithmetic on the right is left alone",
			where:    "YEAR(BE_Date) = 2024 + 0",
			expected: "YEAR(BE_Date) = 2024 + 0",
		},
		{
			name:     "non-year operand is left alone",
			where:    "YEAR(BE_Date) = 24",
			expected: "YEAR(BE_Date) = 24",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, prefix+tt.expected, RewriteYearPredicates(prefix+tt.where))
		})
	}
}

func TestRewriteYearPredicates_OutsideWhereUntouched(t *testing.T) {
	src := "SELECT YEAR(BE_Date) AS Yr, SUM(Total_Value_INR) FROM View_Clean_Imports GROUP BY YEAR(BE_Date) HAVING YEAR(BE_Date) >= 2022 ORDER BY Yr"
	assert.Equal(t, src, RewriteYearPredicates(src))
}

func TestRewriteYearPredicates_EveryWhere(t *testing.T) {
	src := "SELECT 'a' FROM v WHERE YEAR(BE_Date) = 2023 UNION ALL SELECT 'b' FROM v WHERE YEAR(BE_Date) = 2024"
	expected := "SELECT 'a' FROM v WHERE (BE_Date >= DATEFROMPARTS(2023, 1, 1) AND BE_Date < DATEFROMPARTS(2024, 1, 1)) UNION ALL SELECT 'b' FROM v WHERE (BE_Date >= DATEFROMPARTS(2024, 1, 1) AND BE_Date < DATEFROMPARTS(2025, 1, 1))"
	assert.Equal(t, expected, RewriteYearPredicates(src))
}
