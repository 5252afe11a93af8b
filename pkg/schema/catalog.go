// Package schema loads the column catalog of the trade views and renders it
// as prompt context.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const columnsQuery = `SELECT COLUMN_NAME, DATA_TYPE
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_NAME = @table
ORDER BY ORDINAL_POSITION`

// Querier is the subset of *sql.DB and *sql.Conn the loader needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Column is one column of a table.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// Table is a table or view with its columns in ordinal order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Catalog is the ordered set of tables exposed to the model. It is built once
// at startup and never modified afterwards.
type Catalog struct {
	Tables []Table `json:"tables"`
}

// Load reads column metadata for each named table. Tables without visible
// columns are logged and left out.
func Load(ctx context.Context, db Querier, tables []string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("schema")

	catalog := &Catalog{Tables: make([]Table, 0, len(tables))}
	for _, name := range tables {
		columns, err := loadColumns(ctx, db, name)
		if err != nil {
			return nil, fmt.Errorf("load columns for %s: %w", name, err)
		}
		if len(columns) == 0 {
			logger.Warn("Table has no visible columns, omitting from schema",
				zap.String("table", name))
			continue
		}
		catalog.Tables = append(catalog.Tables, Table{Name: name, Columns: columns})
	}

	logger.Info("Schema catalog loaded",
		zap.Int("tables", len(catalog.Tables)),
		zap.Int("requested", len(tables)))

	return catalog, nil
}

func loadColumns(ctx context.Context, db Querier, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, columnsQuery, sql.Named("table", table))
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	return columns, nil
}

// Render formats the catalog for the prompt:
//
//	Table 'View_Clean_Imports':
//	- BE_Date (date)
//	- Product_Name (nvarchar)
//
// Tables are separated by a blank line.
func (c *Catalog) Render() string {
	if c == nil {
		return ""
	}
	blocks := make([]string, 0, len(c.Tables))
	for _, t := range c.Tables {
		var b strings.Builder
		fmt.Fprintf(&b, "Table '%s':", t.Name)
		for _, col := range t.Columns {
			fmt.Fprintf(&b, "\n- %s (%s)", col.Name, col.DataType)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}
