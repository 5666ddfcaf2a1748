package console

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	criticalStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func renderRetrieve(result *domain.RetrieveResult) string {
	var b strings.Builder

	if strings.TrimSpace(result.MergedContext) != "" {
		b.WriteString(sectionStyle.Render("融合上下文"))
		b.WriteString("\n")
		b.WriteString(result.MergedContext)
		b.WriteString("\n\n")
	}

	if len(result.RAGResults) > 0 {
		b.WriteString(sectionStyle.Render("指南片段"))
		b.WriteString("\n")
		for i, passage := range result.RAGResults {
			meta := fmt.Sprintf("[%d] score=%.3f", i+1, passage.Score)
			if passage.Section != "" {
				meta += "  " + passage.Section
			}
			if passage.EvidenceGrade != "" {
				meta += "  证据等级 " + passage.EvidenceGrade
			}
			b.WriteString(dimStyle.Render(meta))
			b.WriteString("\n")
			b.WriteString(passage.Text)
			b.WriteString("\n\n")
		}
	}

	if len(result.KGResults) > 0 {
		b.WriteString(sectionStyle.Render("知识图谱"))
		b.WriteString("\n")
		if result.KGQuery != "" {
			b.WriteString(dimStyle.Render(strings.TrimSpace(result.KGQuery)))
			b.WriteString("\n")
		}
		for _, record := range result.KGResults {
			b.WriteString(renderRecord(record))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(result.Degraded) > 0 {
		b.WriteString(errorStyle.Render("降级: " + strings.Join(result.Degraded, ", ")))
		b.WriteString("\n")
	}

	if b.Len() == 0 {
		return "未检索到相关内容。"
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderRecord flattens one graph row, keys sorted so repeated queries
// line up.
func renderRecord(record domain.GraphRecord) string {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", key, record[key]))
	}
	return "  - " + strings.Join(parts, "  ")
}

func renderReport(report *domain.RiskReport) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(report.Summary))
	b.WriteString("\n\n")

	for _, warning := range report.Warnings {
		style := severityStyle(warning.Severity)
		b.WriteString(style.Render(fmt.Sprintf("[%s] %s", warning.Severity, warning.Drug)))
		b.WriteString("\n  ")
		b.WriteString(warning.Reason)
		b.WriteString("\n")
	}
	if len(report.Warnings) > 0 {
		b.WriteString("\n")
	}

	if len(report.SafeMedications) > 0 {
		b.WriteString(okStyle.Render("未触发规则: " + strings.Join(report.SafeMedications, "、")))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func severityStyle(severity domain.Severity) lipgloss.Style {
	switch severity {
	case domain.SeverityCritical:
		return criticalStyle
	case domain.SeverityWarning:
		return warningStyle
	default:
		return infoStyle
	}
}

func renderDrug(info *domain.DrugInfo) string {
	var b strings.Builder
	title := info.Name
	if info.EnName != "" {
		title += " (" + info.EnName + ")"
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")

	writeField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(dimStyle.Render(label + ": "))
		b.WriteString(value)
		b.WriteString("\n")
	}
	writeField("分类", info.Category)
	writeField("商品名", strings.Join(info.Brands, "、"))
	writeField("适应症", strings.Join(info.Treats, "、"))
	writeField("用法用量", info.DosageInfo)

	if len(info.Contraindications) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("禁忌"))
		b.WriteString("\n")
		for _, fact := range info.Contraindications {
			b.WriteString("  ")
			b.WriteString(severityStyle(fact.Severity).Render(fact.ConditionText()))
			b.WriteString("\n")
		}
	}
	if len(info.DosageAdjustments) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("剂量调整"))
		b.WriteString("\n")
		for _, fact := range info.DosageAdjustments {
			b.WriteString("  ")
			b.WriteString(fact.ConditionText())
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
