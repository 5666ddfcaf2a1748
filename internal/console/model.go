package console

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

// Backend is the console-facing subset of the API client.
type Backend interface {
	Retrieve(ctx context.Context, query string, useKG *bool) (*domain.RetrieveResult, error)
	Assess(ctx context.Context, profile domain.PatientProfile) (*domain.RiskReport, error)
	DrugInfo(ctx context.Context, name string) (*domain.DrugInfo, error)
}

const helpText = `直接输入临床问题并回车，例如: eGFR小于30能用二甲双胍吗

命令:
  /kg <问题>       强制走知识图谱分支
  /drug <药名>     查询单个药品（支持商品名）
  /assess <用药> [指标=数值 ...] [+并发症 ...]
                   例: /assess 二甲双胍,恩格列净 eGFR=25 +心力衰竭
  /help            显示本帮助
  esc / ctrl+c     退出`

type answerMsg struct {
	content string
	status  string
}

type answerErrMsg struct {
	err error
}

type Model struct {
	backend  Backend
	input    textinput.Model
	viewport viewport.Model
	status   string
	busy     bool
	ready    bool
}

func New(backend Backend) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "输入问题，/help 查看命令"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	vp.SetContent(helpText)
	return Model{
		backend:  backend,
		input:    ti,
		viewport: vp,
		status:   "就绪",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input frame, spacer
		vh := msg.Height - reserved - rh
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = vh
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			if line == "/help" {
				m.viewport.SetContent(helpText)
				m.status = "就绪"
				m.input.SetValue("")
				return m, nil
			}
			m.busy = true
			m.status = "查询中..."
			m.input.SetValue("")
			return m, m.dispatch(line)
		}

	case answerMsg:
		m.busy = false
		m.status = msg.status
		m.viewport.SetContent(msg.content)
		m.viewport.GotoTop()
		return m, nil

	case answerErrMsg:
		m.busy = false
		m.status = errorStyle.Render("错误: " + msg.err.Error())
		return m, nil
	}

	var inputCmd, viewportCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.viewport, viewportCmd = m.viewport.Update(msg)
	return m, tea.Batch(inputCmd, viewportCmd)
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("临床问答助手")
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	return header + "\n" + results + "\n" + input + "\n" + m.status
}

// dispatch maps one input line to a backend call. Slash commands pick
// the endpoint; anything else is a question for the pipeline.
func (m Model) dispatch(line string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		switch {
		case strings.HasPrefix(line, "/drug"):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/drug"))
			if name == "" {
				return answerErrMsg{err: errors.New("用法: /drug <药名>")}
			}
			info, err := m.backend.DrugInfo(ctx, name)
			if err != nil {
				return answerErrMsg{err: err}
			}
			return answerMsg{content: renderDrug(info), status: "药品: " + name}

		case strings.HasPrefix(line, "/assess"):
			profile, err := parseProfileLine(strings.TrimPrefix(line, "/assess"))
			if err != nil {
				return answerErrMsg{err: err}
			}
			report, err := m.backend.Assess(ctx, profile)
			if err != nil {
				return answerErrMsg{err: err}
			}
			return answerMsg{content: renderReport(report), status: "风险评估完成"}

		case strings.HasPrefix(line, "/kg"):
			query := strings.TrimSpace(strings.TrimPrefix(line, "/kg"))
			if query == "" {
				return answerErrMsg{err: errors.New("用法: /kg <问题>")}
			}
			forced := true
			return m.retrieve(ctx, query, &forced)

		case strings.HasPrefix(line, "/"):
			return answerErrMsg{err: fmt.Errorf("未知命令 %s，/help 查看命令", strings.Fields(line)[0])}

		default:
			return m.retrieve(ctx, line, nil)
		}
	}
}

func (m Model) retrieve(ctx context.Context, query string, useKG *bool) tea.Msg {
	result, err := m.backend.Retrieve(ctx, query, useKG)
	if err != nil {
		return answerErrMsg{err: err}
	}
	status := fmt.Sprintf("命中 %d 条指南片段", len(result.RAGResults))
	if result.UseKGEffective {
		status += "，已查询知识图谱"
	}
	return answerMsg{content: renderRetrieve(result), status: status}
}

var metricToken = regexp.MustCompile(`^([^=\s]+)=([0-9.]+)$`)

// parseProfileLine reads "/assess" arguments: the first token is a
// comma-separated medication list, name=value tokens are lab metrics,
// and +tokens are diagnosed conditions.
func parseProfileLine(rest string) (domain.PatientProfile, error) {
	fields := strings.Fields(strings.TrimSpace(rest))
	if len(fields) == 0 {
		return domain.PatientProfile{}, errors.New("用法: /assess <用药,逗号分隔> [指标=数值 ...] [+并发症 ...]")
	}

	profile := domain.PatientProfile{
		Metrics: map[string]float64{},
	}
	for _, medication := range splitList(fields[0]) {
		if medication != "" {
			profile.Medications = append(profile.Medications, medication)
		}
	}
	if len(profile.Medications) == 0 {
		return domain.PatientProfile{}, errors.New("用药列表为空")
	}

	for _, token := range fields[1:] {
		if complication, ok := strings.CutPrefix(token, "+"); ok {
			if complication != "" {
				profile.Complications = append(profile.Complications, complication)
			}
			continue
		}
		match := metricToken.FindStringSubmatch(token)
		if match == nil {
			return domain.PatientProfile{}, fmt.Errorf("无法解析参数 %q", token)
		}
		value, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			return domain.PatientProfile{}, fmt.Errorf("指标 %s 的数值无效: %q", match[1], match[2])
		}
		profile.Metrics[match[1]] = value
	}
	return profile, nil
}

// splitList accepts ASCII and fullwidth separators so pasted Chinese
// medication lists work unchanged.
func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '，' || r == '、'
	})
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
