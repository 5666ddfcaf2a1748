package graphload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph_data.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

func TestLoadJSONParsesDataset(t *testing.T) {
	path := writeDataset(t, `[
		{
			"drug": {
				"id": "1",
				"name": "二甲双胍",
				"en_name": "Metformin",
				"dosage_info": {"max_daily_dose": "2550mg", "starting_dose": "500mg bid"}
			},
			"brands": ["格华止"],
			"category": "双胍类",
			"treats": [{"name": "2型糖尿病"}],
			"forbidden_diseases": [{"name": "严重肾功能不全"}],
			"metric_constraints": [
				{"metric": "eGFR", "operator": "<", "value": 30, "unit": "mL/min", "severity": "CRITICAL"}
			]
		}
	]`)

	entries, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Drug.Name != "二甲双胍" || entry.Drug.EnName != "Metformin" {
		t.Fatalf("unexpected drug: %+v", entry.Drug)
	}
	if entry.Drug.Dosage.MaxDailyDose != "2550mg" {
		t.Fatalf("unexpected dosage: %+v", entry.Drug.Dosage)
	}
	if len(entry.MetricConstraints) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(entry.MetricConstraints))
	}
	rule := entry.MetricConstraints[0]
	if rule.Value == nil || *rule.Value != 30 {
		t.Fatalf("expected point threshold 30, got %+v", rule.Value)
	}
	if rule.ValueMin != nil || rule.ValueMax != nil {
		t.Fatalf("point rule should carry no range: %+v", rule)
	}
}

func TestLoadJSONRejectsDuplicateDrugIDs(t *testing.T) {
	path := writeDataset(t, `[
		{"drug": {"id": "1", "name": "二甲双胍"}},
		{"drug": {"id": "1", "name": "格列美脲"}}
	]`)

	_, err := LoadJSON(path)
	if err == nil || !strings.Contains(err.Error(), "drug id 1") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestLoadJSONRejectsRuleWithoutThreshold(t *testing.T) {
	path := writeDataset(t, `[
		{
			"drug": {"id": "1", "name": "二甲双胍"},
			"metric_constraints": [{"metric": "eGFR", "operator": "<"}]
		}
	]`)

	_, err := LoadJSON(path)
	if err == nil || !strings.Contains(err.Error(), "no threshold") {
		t.Fatalf("expected threshold error, got %v", err)
	}
}

func TestLoadJSONRejectsUnknownRuleKind(t *testing.T) {
	path := writeDataset(t, `[
		{
			"drug": {"id": "1", "name": "二甲双胍"},
			"metric_constraints": [{"metric": "eGFR", "operator": "<", "value": 30, "kind": "advice"}]
		}
	]`)

	_, err := LoadJSON(path)
	if err == nil || !strings.Contains(err.Error(), "unknown rule kind") {
		t.Fatalf("expected rule kind error, got %v", err)
	}
}

func writeWorkbook(t *testing.T, build func(f *excelize.File)) string {
	t.Helper()
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetDrugs); err != nil {
		t.Fatalf("rename sheet: %v", err)
	}
	build(f)

	path := filepath.Join(t.TempDir(), "drugs.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close workbook: %v", err)
	}
	return path
}

func setRow(t *testing.T, f *excelize.File, sheet, cell string, values []any) {
	t.Helper()
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		t.Fatalf("set row %s!%s: %v", sheet, cell, err)
	}
}

func addSheet(t *testing.T, f *excelize.File, sheet string) {
	t.Helper()
	if _, err := f.NewSheet(sheet); err != nil {
		t.Fatalf("new sheet %s: %v", sheet, err)
	}
}

func TestLoadXLSXAssemblesEntries(t *testing.T) {
	path := writeWorkbook(t, func(f *excelize.File) {
		setRow(t, f, sheetDrugs, "A1", []any{"id", "name", "en_name", "category", "max_daily_dose"})
		setRow(t, f, sheetDrugs, "A2", []any{"1", "二甲双胍", "Metformin", "双胍类", "2550mg"})

		addSheet(t, f, sheetBrands)
		setRow(t, f, sheetBrands, "A1", []any{"drug_id", "brand"})
		setRow(t, f, sheetBrands, "A2", []any{"1", "格华止"})

		addSheet(t, f, sheetForbidden)
		setRow(t, f, sheetForbidden, "A1", []any{"drug_id", "disease"})
		setRow(t, f, sheetForbidden, "A2", []any{"1", "糖尿病酮症酸中毒"})

		addSheet(t, f, sheetMetricRules)
		setRow(t, f, sheetMetricRules, "A1", []any{"drug_id", "metric", "operator", "value", "value_min", "value_max", "unit", "severity", "kind"})
		setRow(t, f, sheetMetricRules, "A2", []any{"1", "eGFR", "<", "30", "", "", "mL/min", "CRITICAL", ""})
		setRow(t, f, sheetMetricRules, "A3", []any{"1", "eGFR", "BETWEEN", "", "30", "45", "mL/min", "", "dosage_adjust"})
	})

	entries, err := LoadXLSX(path)
	if err != nil {
		t.Fatalf("load workbook: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Drug.Name != "二甲双胍" || entry.Category != "双胍类" {
		t.Fatalf("unexpected drug row: %+v", entry)
	}
	if len(entry.Brands) != 1 || entry.Brands[0] != "格华止" {
		t.Fatalf("unexpected brands: %+v", entry.Brands)
	}
	if len(entry.ForbiddenDiseases) != 1 || entry.ForbiddenDiseases[0].Name != "糖尿病酮症酸中毒" {
		t.Fatalf("unexpected forbidden diseases: %+v", entry.ForbiddenDiseases)
	}
	if len(entry.MetricConstraints) != 2 {
		t.Fatalf("expected 2 rules, got %+v", entry.MetricConstraints)
	}
	point := entry.MetricConstraints[0]
	if point.Metric != "eGFR" || point.Operator != "<" || point.Value == nil || *point.Value != 30 {
		t.Fatalf("unexpected point rule: %+v", point)
	}
	ranged := entry.MetricConstraints[1]
	if ranged.Kind != "dosage_adjust" || ranged.ValueMin == nil || *ranged.ValueMin != 30 || ranged.ValueMax == nil || *ranged.ValueMax != 45 {
		t.Fatalf("unexpected range rule: %+v", ranged)
	}
}

func TestLoadXLSXRejectsUnknownDrugID(t *testing.T) {
	path := writeWorkbook(t, func(f *excelize.File) {
		setRow(t, f, sheetDrugs, "A1", []any{"id", "name"})
		setRow(t, f, sheetDrugs, "A2", []any{"1", "二甲双胍"})

		addSheet(t, f, sheetBrands)
		setRow(t, f, sheetBrands, "A1", []any{"drug_id", "brand"})
		setRow(t, f, sheetBrands, "A2", []any{"99", "格华止"})
	})

	_, err := LoadXLSX(path)
	if err == nil || !strings.Contains(err.Error(), `unknown drug id "99"`) {
		t.Fatalf("expected unknown drug id error, got %v", err)
	}
}

func TestLoadXLSXRequiresDrugSheetColumns(t *testing.T) {
	path := writeWorkbook(t, func(f *excelize.File) {
		setRow(t, f, sheetDrugs, "A1", []any{"id", "label"})
		setRow(t, f, sheetDrugs, "A2", []any{"1", "二甲双胍"})
	})

	_, err := LoadXLSX(path)
	if err == nil || !strings.Contains(err.Error(), `misses column "name"`) {
		t.Fatalf("expected missing column error, got %v", err)
	}
}
