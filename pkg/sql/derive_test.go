package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSummary_GroupedImports(t *testing.T) {
	src := "SELECT [Importer/Exporter_Name], SUM(Total_Value_INR) AS Total FROM View_Clean_Imports WHERE BE_Date >= '2024-01-01' GROUP BY [Importer/Exporter_Name] ORDER BY Total DESC"

	q, ok := DeriveSummary(src)
	require.True(t, ok)

	assert.Equal(t, "View_Clean_Imports", q.Table)
	assert.Empty(t, q.Alias)
	assert.Equal(t, "WHERE BE_Date >= '2024-01-01'", q.Where)
	assert.Equal(t, "[BE_Date]", q.DateColumn)
	assert.Equal(t, CompanyColumn, q.NameColumn)
	assert.Equal(t, EntityCompany, q.EntityLabel)

	// Both the aggregate and the top-entity CTE read the filtered population.
	assert.Equal(t, 2, strings.Count(q.SQL, q.Where))
	assert.Equal(t, 1, strings.Count(q.SQL, "GROUP BY"))
	for _, alias := range []string{
		"TotalRecords", "TotalEntities", "TotalValue_INR", "TotalQuantity_KG",
		"WeightedAvgPrice_INR", "MaxShipmentValue", "EarliestDate", "LatestDate",
		"UniqueDates", "AS TopEntity", "TopEntityValue",
	} {
		assert.Contains(t, q.SQL, alias)
	}
	assert.Contains(t, q.SQL, "NULLIF(SUM([Quantity_KG]), 0)")
	assert.Contains(t, q.SQL, "LEFT JOIN TopEntity t ON 1 = 1")
}

func TestDeriveSummary_AliasAndYearFilter(t *testing.T) {
	src := "SELECT TOP 20 e.Importer_Name, e.Total_Value_INR FROM View_Clean_Imports AS e WHERE e.[Product] LIKE '%ZINC%' AND YEAR(e.BE_Date) = 2024 ORDER BY e.Total_Value_INR DESC"

	q, ok := DeriveSummary(src)
	require.True(t, ok)

	assert.Equal(t, "e", q.Alias)
	assert.Equal(t,
		"WHERE [Product] LIKE '%ZINC%' AND (BE_Date >= DATEFROMPARTS(2024, 1, 1) AND BE_Date < DATEFROMPARTS(2025, 1, 1))",
		q.Where)
	assert.NotContains(t, q.SQL, "e.[Product]")
	assert.NotContains(t, q.SQL, "e.BE_Date")
}

func TestDeriveSummary_FollowsCTE(t *testing.T) {
	src := `WITH Ranked AS (
    SELECT Exporter_Name, SUM(Total_Value_INR) AS Total
    FROM View_Clean_Exports
    WHERE [Product] LIKE '%ZINC%'
    GROUP BY Exporter_Name
)
SELECT TOP 10 * FROM Ranked ORDER BY Total DESC`

	q, ok := DeriveSummary(src)
	require.True(t, ok)

	assert.Equal(t, "View_Clean_Exports", q.Table)
	assert.Equal(t, "WHERE [Product] LIKE '%ZINC%'", q.Where)
	assert.Equal(t, "[SB_Date]", q.DateColumn)
	assert.Equal(t, EntityCompany, q.EntityLabel)
}

func TestDeriveSummary_DerivedTable(t *testing.T) {
	src := "SELECT * FROM (SELECT Product_Name, Total_Value_INR FROM View_Clean_Exports WHERE SB_Date >= '2023-01-01') AS sub ORDER BY Total_Value_INR DESC"

	q, ok := DeriveSummary(src)
	require.True(t, ok)

	assert.Equal(t, "View_Clean_Exports", q.Table)
	assert.Equal(t, "WHERE SB_Date >= '2023-01-01'", q.Where)
}

func TestDeriveSummary_ProductGrouping(t *testing.T) {
	src := "SELECT TOP 15 Product_Name, SUM(Total_Value_INR) FROM View_Clean_Exports GROUP BY Product_Name"

	q, ok := DeriveSummary(src)
	require.True(t, ok)

	assert.Empty(t, q.Where)
	assert.Equal(t, ProductColumn, q.NameColumn)
	assert.Equal(t, EntityProduct, q.EntityLabel)
	assert.NotContains(t, q.SQL, "WHERE")
}

func TestDeriveSummary_UnionBranches(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{
			name:     "same table filters are ORed",
			src:      "SELECT 'zinc' AS Metal, SUM(Total_Value_INR) FROM View_Clean_Imports WHERE [Product] LIKE '%ZINC%' UNION ALL SELECT 'lead', SUM(Total_Value_INR) FROM View_Clean_Imports WHERE [Product] LIKE '%LEAD%'",
			expected: "WHERE ([Product] LIKE '%ZINC%') OR ([Product] LIKE '%LEAD%')",
		},
		{
			name:     "different tables keep the first branch",
			src:      "SELECT 'in' AS Flow, COUNT(*) FROM View_Clean_Imports WHERE [Product] LIKE '%ZINC%' UNION ALL SELECT 'out', COUNT(*) FROM View_Clean_Exports WHERE [Product] LIKE '%ZINC%'",
			expected: "WHERE [Product] LIKE '%ZINC%'",
		},
		{
			name:     "unfiltered branch widens to the whole table",
			src:      "SELECT Product_Name FROM View_Clean_Imports WHERE [Product] LIKE '%ZINC%' UNION SELECT Product_Name FROM View_Clean_Imports",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok := DeriveSummary(tt.src)
			require.True(t, ok)
			assert.Equal(t, "View_Clean_Imports", q.Table)
			assert.Equal(t, tt.expected, q.Where)
		})
	}
}

func TestDeriveSummary_NotFound(t *testing.T) {
	for _, src := range []string{
		"",
		"SELECT 1",
		"SELECT GETDATE() AS Now",
		"UPDATE View_Clean_Imports SET Quantity_KG = 0",
		"this is not sql",
	} {
		q, ok := DeriveSummary(src)
		assert.False(t, ok, src)
		assert.Nil(t, q, src)
	}
}

func TestDeriveSummary_DeclaresCTEsReadByFilter(t *testing.T) {
	topN := "TopN AS (SELECT TOP 5 Product_Name FROM View_Clean_Exports GROUP BY Product_Name ORDER BY SUM(Quantity_KG) DESC)"
	src := "WITH " + topN + "\nSELECT * FROM View_Clean_Exports WHERE Product_Name IN (SELECT Product_Name FROM TopN)"

	q, ok := DeriveSummary(src)
	require.True(t, ok)

	assert.Equal(t, "View_Clean_Exports", q.Table)
	assert.Equal(t, "WHERE Product_Name IN (SELECT Product_Name FROM TopN)", q.Where)
	assert.Equal(t, topN, q.With)
	assert.True(t, strings.HasPrefix(q.SQL, "WITH "+topN+",\nTopEntity AS ("), q.SQL)
	assert.Less(t, strings.Index(q.SQL, "TopN AS ("), strings.Index(q.SQL, "FROM TopN"))
}

func TestDeriveSummary_DeclaresNestedCTEsInOrder(t *testing.T) {
	src := `WITH Zinc AS (
    SELECT Product_Name, Quantity_KG FROM View_Clean_Exports WHERE [Product] LIKE '%ZINC%'
),
TopN AS (
    SELECT TOP 5 Product_Name FROM Zinc GROUP BY Product_Name ORDER BY SUM(Quantity_KG) DESC
),
Unused AS (
    SELECT 1 AS One
)
SELECT Product_Name, SB_Date, Total_Value_INR
FROM View_Clean_Exports
WHERE Product_Name IN (SELECT Product_Name FROM TopN)`

	q, ok := DeriveSummary(src)
	require.True(t, ok)

	assert.True(t, strings.HasPrefix(q.With, "Zinc AS ("), q.With)
	assert.Contains(t, q.With, "),\nTopN AS (")
	assert.NotContains(t, q.With, "Unused")
	assert.Less(t, strings.Index(q.SQL, "Zinc AS ("), strings.Index(q.SQL, "TopN AS ("))
	assert.Less(t, strings.Index(q.SQL, "TopN AS ("), strings.Index(q.SQL, "TopEntity AS ("))
}

func TestDeriveSummary_NoCTEsWithoutReference(t *testing.T) {
	src := "WITH Ranked AS (SELECT Exporter_Name FROM View_Clean_Exports WHERE [Product] LIKE '%LEAD%') SELECT * FROM View_Clean_Exports WHERE [Product] LIKE '%ZINC%'"

	q, ok := DeriveSummary(src)
	require.True(t, ok)

	assert.Empty(t, q.With)
	assert.True(t, strings.HasPrefix(q.SQL, "WITH TopEntity AS ("))
}

func TestDeriveSummary_RejectsJoinedSources(t *testing.T) {
	for name, src := range map[string]string{
		"join with cte": `WITH TopN AS (SELECT TOP 5 Product_Name FROM View_Clean_Exports GROUP BY Product_Name)
SELECT e.* FROM View_Clean_Exports e INNER JOIN TopN t ON e.Product_Name = t.Product_Name`,
		"join inside followed cte": `WITH Picked AS (SELECT e.Product_Name FROM View_Clean_Exports e JOIN Ports p ON e.Port = p.Code WHERE p.Country = 'IN')
SELECT * FROM Picked`,
		"comma join":   "SELECT * FROM View_Clean_Imports i, View_Clean_Exports e WHERE i.Product_Name = e.Product_Name",
		"cross apply":  "SELECT * FROM View_Clean_Imports i CROSS APPLY (SELECT TOP 1 * FROM View_Clean_Exports) x",
		"derived join": "SELECT * FROM (SELECT * FROM View_Clean_Imports) a LEFT JOIN View_Clean_Exports b ON a.Product_Name = b.Product_Name",
	} {
		t.Run(name, func(t *testing.T) {
			q, ok := DeriveSummary(src)
			assert.False(t, ok)
			assert.Nil(t, q)
		})
	}
}

func TestDeriveSummary_RejectsCTENameCollision(t *testing.T) {
	src := "WITH TopEntity AS (SELECT TOP 1 Product_Name FROM View_Clean_Exports) SELECT * FROM View_Clean_Exports WHERE Product_Name IN (SELECT Product_Name FROM TopEntity)"

	q, ok := DeriveSummary(src)
	assert.False(t, ok)
	assert.Nil(t, q)
}
