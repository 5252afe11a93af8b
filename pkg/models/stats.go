package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Column aliases produced by the derived summary query.
const (
	StatTotalRecords     = "TotalRecords"
	StatTotalEntities    = "TotalEntities"
	StatTotalValueINR    = "TotalValue_INR"
	StatTotalQuantityKG  = "TotalQuantity_KG"
	StatWeightedAvgPrice = "WeightedAvgPrice_INR"
	StatMaxShipmentValue = "MaxShipmentValue"
	StatEarliestDate     = "EarliestDate"
	StatLatestDate       = "LatestDate"
	StatUniqueDates      = "UniqueDates"
	StatTopEntity        = "TopEntity"
	StatTopEntityValue   = "TopEntityValue"
)

// SummaryStats is the single aggregate row computed over the filtered
// population of a question. Nullable aggregates are pointers.
type SummaryStats struct {
	EntityLabel         string   `json:"entity_label"` // "Company" or "Product"
	TotalRecords        int64    `json:"total_records"`
	TotalEntities       int64    `json:"total_entities"`
	TotalValueINR       *float64 `json:"total_value_inr"`
	TotalQuantityKG     *float64 `json:"total_quantity_kg"`
	WeightedAvgPriceINR *float64 `json:"weighted_avg_price_inr"`
	MaxShipmentValue    *float64 `json:"max_shipment_value"`
	EarliestDate        string   `json:"earliest_date,omitempty"`
	LatestDate          string   `json:"latest_date,omitempty"`
	UniqueDates         int64    `json:"unique_dates"`
	TopEntity           string   `json:"top_entity,omitempty"`
	TopEntityValue      *float64 `json:"top_entity_value"`
}

// IsEmpty reports whether the filtered population had no rows.
func (s *SummaryStats) IsEmpty() bool {
	return s == nil || s.TotalRecords == 0
}

// SummaryStatsFromRow reads a formatted summary row.
func SummaryStatsFromRow(row Row, entityLabel string) (*SummaryStats, error) {
	s := &SummaryStats{EntityLabel: entityLabel}

	var err error
	if s.TotalRecords, err = intStat(row, StatTotalRecords); err != nil {
		return nil, err
	}
	if s.TotalEntities, err = intStat(row, StatTotalEntities); err != nil {
		return nil, err
	}
	if s.UniqueDates, err = intStat(row, StatUniqueDates); err != nil {
		return nil, err
	}
	for name, dst := range map[string]**float64{
		StatTotalValueINR:    &s.TotalValueINR,
		StatTotalQuantityKG:  &s.TotalQuantityKG,
		StatWeightedAvgPrice: &s.WeightedAvgPriceINR,
		StatMaxShipmentValue: &s.MaxShipmentValue,
		StatTopEntityValue:   &s.TopEntityValue,
	} {
		if *dst, err = floatStat(row, name); err != nil {
			return nil, err
		}
	}
	s.EarliestDate = stringStat(row, StatEarliestDate)
	s.LatestDate = stringStat(row, StatLatestDate)
	s.TopEntity = stringStat(row, StatTopEntity)
	return s, nil
}

func intStat(row Row, name string) (int64, error) {
	f, err := floatStat(row, name)
	if err != nil || f == nil {
		return 0, err
	}
	return int64(*f), nil
}

func floatStat(row Row, name string) (*float64, error) {
	v, ok := row.Get(name)
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := ToFloat(v)
	if !ok {
		return nil, fmt.Errorf("summary column %s: unexpected value %v (%T)", name, v, v)
	}
	return &f, nil
}

func stringStat(row Row, name string) string {
	v, ok := row.Get(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ToFloat converts driver and formatted numeric values to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case int16:
		return float64(n), true
	case uint8:
		return float64(n), true
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
