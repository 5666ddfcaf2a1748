// Package graphload reads drug knowledge datasets and turns them into
// parametrized mutations for the graph writer.
package graphload

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DrugEntry is one drug with everything the graph should know about it.
type DrugEntry struct {
	Drug              DrugRecord         `json:"drug"`
	Brands            []string           `json:"brands,omitempty"`
	Category          string             `json:"category,omitempty"`
	Treats            []DiseaseRef       `json:"treats,omitempty"`
	ForbiddenDiseases []DiseaseRef       `json:"forbidden_diseases,omitempty"`
	MetricConstraints []MetricConstraint `json:"metric_constraints,omitempty"`
}

type DrugRecord struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	EnName string     `json:"en_name,omitempty"`
	Dosage DosageInfo `json:"dosage_info,omitempty"`
}

type DosageInfo struct {
	MaxDailyDose string `json:"max_daily_dose,omitempty"`
	StartingDose string `json:"starting_dose,omitempty"`
	Timing       string `json:"timing,omitempty"`
	Route        string `json:"route,omitempty"`
}

type DiseaseRef struct {
	Name string `json:"name"`
}

// Rule kinds. An empty kind means contraindication.
const (
	ruleKindContraindication = "contraindication"
	ruleKindDosageAdjust     = "dosage_adjust"
)

// MetricConstraint is one lab-value rule. Point rules carry Value, range
// rules carry ValueMin and ValueMax.
type MetricConstraint struct {
	Metric   string   `json:"metric"`
	Operator string   `json:"operator"`
	Kind     string   `json:"kind,omitempty"`
	Severity string   `json:"severity,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	ValueMin *float64 `json:"value_min,omitempty"`
	ValueMax *float64 `json:"value_max,omitempty"`
	Unit     string   `json:"unit,omitempty"`
}

// LoadJSON reads a dataset file holding an array of drug entries.
func LoadJSON(path string) ([]DrugEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var entries []DrugEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	if err := validate(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Workbook sheets. Drugs is required and defines entry order; the other
// sheets attach rows to it by drug id.
const (
	sheetDrugs       = "Drugs"
	sheetBrands      = "Brands"
	sheetTreats      = "Treats"
	sheetForbidden   = "Forbidden"
	sheetMetricRules = "MetricRules"
)

// LoadXLSX reads the drug workbook.
func LoadXLSX(path string) ([]DrugEntry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	entries, byID, err := readDrugSheet(f)
	if err != nil {
		return nil, err
	}
	if err := readBrandSheet(f, byID); err != nil {
		return nil, err
	}
	if err := readDiseaseSheet(f, sheetTreats, byID, func(entry *DrugEntry, ref DiseaseRef) {
		entry.Treats = append(entry.Treats, ref)
	}); err != nil {
		return nil, err
	}
	if err := readDiseaseSheet(f, sheetForbidden, byID, func(entry *DrugEntry, ref DiseaseRef) {
		entry.ForbiddenDiseases = append(entry.ForbiddenDiseases, ref)
	}); err != nil {
		return nil, err
	}
	if err := readMetricRuleSheet(f, byID); err != nil {
		return nil, err
	}
	if err := validate(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func readDrugSheet(f *excelize.File) ([]DrugEntry, map[string]*DrugEntry, error) {
	rows, err := f.GetRows(sheetDrugs)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheetDrugs, err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("sheet %s has no data rows", sheetDrugs)
	}
	col := columnIndex(rows[0])
	for _, name := range []string{"id", "name"} {
		if _, ok := col[name]; !ok {
			return nil, nil, fmt.Errorf("sheet %s misses column %q", sheetDrugs, name)
		}
	}

	entries := make([]DrugEntry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if field(row, col, "id") == "" {
			continue
		}
		entries = append(entries, DrugEntry{
			Drug: DrugRecord{
				ID:     field(row, col, "id"),
				Name:   field(row, col, "name"),
				EnName: field(row, col, "en_name"),
				Dosage: DosageInfo{
					MaxDailyDose: field(row, col, "max_daily_dose"),
					StartingDose: field(row, col, "starting_dose"),
					Timing:       field(row, col, "timing"),
					Route:        field(row, col, "route"),
				},
			},
			Category: field(row, col, "category"),
		})
	}

	byID := make(map[string]*DrugEntry, len(entries))
	for i := range entries {
		byID[entries[i].Drug.ID] = &entries[i]
	}
	return entries, byID, nil
}

func readBrandSheet(f *excelize.File, byID map[string]*DrugEntry) error {
	rows, ok, err := sheetRows(f, sheetBrands)
	if err != nil || !ok {
		return err
	}
	col := columnIndex(rows[0])
	for i, row := range rows[1:] {
		id := field(row, col, "drug_id")
		brand := field(row, col, "brand")
		if id == "" || brand == "" {
			continue
		}
		entry, found := byID[id]
		if !found {
			return fmt.Errorf("sheet %s row %d: unknown drug id %q", sheetBrands, i+2, id)
		}
		entry.Brands = append(entry.Brands, brand)
	}
	return nil
}

func readDiseaseSheet(f *excelize.File, sheet string, byID map[string]*DrugEntry, attach func(*DrugEntry, DiseaseRef)) error {
	rows, ok, err := sheetRows(f, sheet)
	if err != nil || !ok {
		return err
	}
	col := columnIndex(rows[0])
	for i, row := range rows[1:] {
		id := field(row, col, "drug_id")
		disease := field(row, col, "disease")
		if id == "" || disease == "" {
			continue
		}
		entry, found := byID[id]
		if !found {
			return fmt.Errorf("sheet %s row %d: unknown drug id %q", sheet, i+2, id)
		}
		attach(entry, DiseaseRef{Name: disease})
	}
	return nil
}

func readMetricRuleSheet(f *excelize.File, byID map[string]*DrugEntry) error {
	rows, ok, err := sheetRows(f, sheetMetricRules)
	if err != nil || !ok {
		return err
	}
	col := columnIndex(rows[0])
	for i, row := range rows[1:] {
		id := field(row, col, "drug_id")
		if id == "" {
			continue
		}
		entry, found := byID[id]
		if !found {
			return fmt.Errorf("sheet %s row %d: unknown drug id %q", sheetMetricRules, i+2, id)
		}

		rule := MetricConstraint{
			Metric:   field(row, col, "metric"),
			Operator: field(row, col, "operator"),
			Kind:     field(row, col, "kind"),
			Severity: field(row, col, "severity"),
			Unit:     field(row, col, "unit"),
		}
		var parseErr error
		if rule.Value, parseErr = numericField(row, col, "value"); parseErr != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheetMetricRules, i+2, parseErr)
		}
		if rule.ValueMin, parseErr = numericField(row, col, "value_min"); parseErr != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheetMetricRules, i+2, parseErr)
		}
		if rule.ValueMax, parseErr = numericField(row, col, "value_max"); parseErr != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheetMetricRules, i+2, parseErr)
		}
		entry.MetricConstraints = append(entry.MetricConstraints, rule)
	}
	return nil
}

// sheetRows returns the sheet content when the sheet exists and has at
// least a header and one data row. Optional sheets may be absent.
func sheetRows(f *excelize.File, sheet string) ([][]string, bool, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, false, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, false, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, false, nil
	}
	return rows, true, nil
}

func columnIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			col[name] = i
		}
	}
	return col
}

func field(row []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func numericField(row []string, col map[string]int, name string) (*float64, error) {
	raw := field(row, col, name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", name, err)
	}
	return &v, nil
}

func validate(entries []DrugEntry) error {
	if len(entries) == 0 {
		return errors.New("dataset holds no drugs")
	}
	seen := make(map[string]string, len(entries))
	for i, entry := range entries {
		if entry.Drug.ID == "" {
			return fmt.Errorf("entry %d: drug id is empty", i)
		}
		if entry.Drug.Name == "" {
			return fmt.Errorf("drug %s: name is empty", entry.Drug.ID)
		}
		if prev, ok := seen[entry.Drug.ID]; ok {
			return fmt.Errorf("drug id %s used by both %s and %s", entry.Drug.ID, prev, entry.Drug.Name)
		}
		seen[entry.Drug.ID] = entry.Drug.Name

		for _, rule := range entry.MetricConstraints {
			if err := validateRule(entry.Drug.Name, rule); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateRule(drug string, rule MetricConstraint) error {
	if rule.Metric == "" || rule.Operator == "" {
		return fmt.Errorf("drug %s: metric rule needs metric and operator", drug)
	}
	switch rule.Kind {
	case "", ruleKindContraindication, ruleKindDosageAdjust:
	default:
		return fmt.Errorf("drug %s: unknown rule kind %q", drug, rule.Kind)
	}
	hasPoint := rule.Value != nil
	hasRange := rule.ValueMin != nil && rule.ValueMax != nil
	if !hasPoint && !hasRange {
		return fmt.Errorf("drug %s: metric rule on %s has no threshold", drug, rule.Metric)
	}
	return nil
}
