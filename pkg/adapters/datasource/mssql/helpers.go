package mssql

import (
	"strconv"
	"strings"
	"time"
)

// DisplayDateLayout renders DATE and DATETIME values in results.
const DisplayDateLayout = "02-Jan-2006"

// identifierColumns hold numeric document numbers that must not be shown
// in floating-point notation.
var identifierColumns = map[string]bool{
	"BE_NUMBER": true,
	"SB_NUMBER": true,
}

// formatValue converts a scanned driver value for transport.
func formatValue(column, dbType string, v any) any {
	if identifierColumns[strings.ToUpper(column)] {
		if s, ok := identifierText(dbType, v); ok {
			return s
		}
	}

	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.Format(DisplayDateLayout)
	case []byte:
		if isDecimalType(dbType) {
			f, err := strconv.ParseFloat(string(x), 64)
			if err != nil {
				return string(x)
			}
			return f
		}
		return string(x)
	}
	return v
}

// identifierText renders a document number as plain digits. Integer and
// decimal text values keep every digit.
func identifierText(dbType string, v any) (string, bool) {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int:
		return strconv.Itoa(n), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case float64:
		return strconv.FormatFloat(n, 'f', 0, 64), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', 0, 32), true
	case []byte:
		if !isDecimalType(dbType) {
			return "", false
		}
		// Drop a zero fraction such as "123.00"; anything else is rounded.
		whole, frac, _ := strings.Cut(string(n), ".")
		if strings.Trim(frac, "0") == "" && whole != "" {
			return whole, true
		}
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', 0, 64), true
	}
	return "", false
}

// isDecimalType reports whether the driver returns the type as decimal text bytes.
func isDecimalType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}
