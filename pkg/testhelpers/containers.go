package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ekaya-inc/exim-agent/pkg/config"
)

// SQLServerImage is the engine used for integration tests.
const SQLServerImage = "mcr.microsoft.com/mssql/server:2022-latest"

const (
	testSAPassword = "Exim_Test_Passw0rd"
	testDatabase   = "TradeData"
)

// TradeDB holds a shared SQL Server container with the trade views' columns
// created as plain tables.
type TradeDB struct {
	Container testcontainers.Container
	DB        *sql.DB
	Config    config.MSSQLConfig
}

var (
	sharedTradeDB     *TradeDB
	sharedTradeDBOnce sync.Once
	sharedTradeDBErr  error
)

// GetTradeDB returns a shared SQL Server container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTradeDB(t *testing.T) *TradeDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTradeDBOnce.Do(func() {
		sharedTradeDB, sharedTradeDBErr = setupTradeDB()
	})

	if sharedTradeDBErr != nil {
		t.Fatalf("Failed to setup trade database: %v", sharedTradeDBErr)
	}

	return sharedTradeDB
}

func setupTradeDB() (*TradeDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        SQLServerImage,
		ExposedPorts: []string{"1433/tcp"},
		Env: map[string]string{
			"ACCEPT_EULA":       "Y",
			"MSSQL_SA_PASSWORD": testSAPassword,
			"MSSQL_PID":         "Developer",
		},
		WaitingFor: wait.ForLog("SQL Server is now ready for client connections").
			WithStartupTimeout(3 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "1433")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	portNum, err := strconv.Atoi(port.Port())
	if err != nil {
		return nil, fmt.Errorf("parse container port: %w", err)
	}

	master := fmt.Sprintf("sqlserver://sa:%s@%s:%d?database=master&encrypt=disable", testSAPassword, host, portNum)
	if err := execWithRetry(ctx, master, "IF DB_ID('"+testDatabase+"') IS NULL CREATE DATABASE "+testDatabase); err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}

	cfg := config.MSSQLConfig{
		Host:                   host,
		Port:                   portNum,
		Database:               testDatabase,
		User:                   "sa",
		Password:               testSAPassword,
		Encrypt:                false,
		TrustServerCertificate: true,
		MaxOpenConns:           4,
		ConnectTimeoutSeconds:  30,
	}

	db, err := sql.Open("sqlserver", fmt.Sprintf("sqlserver://sa:%s@%s:%d?database=%s&encrypt=disable",
		testSAPassword, host, portNum, testDatabase))
	if err != nil {
		return nil, fmt.Errorf("open trade database: %w", err)
	}

	for _, stmt := range tradeSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create trade schema: %w", err)
		}
	}

	return &TradeDB{
		Container: container,
		DB:        db,
		Config:    cfg,
	}, nil
}

// execWithRetry runs one statement, retrying while the engine finishes recovery.
func execWithRetry(ctx context.Context, dsn, stmt string) error {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	for i := 0; i < 20; i++ {
		if _, err = db.ExecContext(ctx, stmt); err == nil {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return err
}

var tradeSchema = []string{
	`IF OBJECT_ID('View_Clean_Imports') IS NULL CREATE TABLE View_Clean_Imports (
		BE_Number DECIMAL(18, 0),
		BE_Date DATE,
		[Importer/Exporter_Name] NVARCHAR(200),
		Formatted_Name NVARCHAR(200),
		Product NVARCHAR(200),
		Product_Name NVARCHAR(200),
		HS_Code NVARCHAR(20),
		Quantity_KG DECIMAL(18, 3),
		Total_Value_INR DECIMAL(18, 2)
	)`,
	`IF OBJECT_ID('View_Clean_Exports') IS NULL CREATE TABLE View_Clean_Exports (
		SB_Number DECIMAL(18, 0),
		SB_Date DATE,
		[Importer/Exporter_Name] NVARCHAR(200),
		Formatted_Name NVARCHAR(200),
		Product NVARCHAR(200),
		Product_Name NVARCHAR(200),
		HS_Code NVARCHAR(20),
		Quantity_KG DECIMAL(18, 3),
		Total_Value_INR DECIMAL(18, 2)
	)`,
}

// Truncate empties the trade tables between tests.
func (d *TradeDB) Truncate(t *testing.T) {
	t.Helper()
	for _, table := range []string{"View_Clean_Imports", "View_Clean_Exports"} {
		if _, err := d.DB.ExecContext(context.Background(), "TRUNCATE TABLE "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}
