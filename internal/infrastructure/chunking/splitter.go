// Package chunking splits extracted guideline text into section-tagged
// chunks sized for embedding.
package chunking

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

// sectionMarker prefixes chunk text with its heading so the embedded
// passage keeps its section context. Rendering strips the marker again.
const sectionMarker = "【章节】"

const maxHeadingRunes = 40

// Splitter cuts guideline text into overlapping rune windows, one
// section at a time. Windows never cross a heading; the heading itself
// travels in the chunk metadata instead of the window body.
type Splitter struct {
	ChunkSize int // max window length in runes
	Overlap   int // runes shared between adjacent windows
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Split segments text into sections by heading lines, then windows each
// section body. Text before the first heading becomes chunks with an
// empty section.
func (s *Splitter) Split(text string) []domain.SectionChunk {
	var chunks []domain.SectionChunk
	for _, sec := range splitSections(text) {
		for _, window := range s.windows(sec.body) {
			chunks = append(chunks, domain.SectionChunk{
				Section:       sec.heading,
				EvidenceGrade: detectEvidenceGrade(window),
				Text:          withSectionMarker(sec.heading, window),
			})
		}
	}
	return chunks
}

func (s *Splitter) windows(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			out = append(out, window)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

type section struct {
	heading string
	body    string
}

// splitSections walks the text line by line and starts a new section at
// every heading. Consecutive headings collapse into the innermost one.
func splitSections(text string) []section {
	var (
		sections []section
		current  section
		body     []string
	)
	flush := func() {
		current.body = strings.TrimSpace(strings.Join(body, "\n"))
		if current.body != "" {
			sections = append(sections, current)
		}
		body = body[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		if heading, ok := headingText(line); ok {
			flush()
			current = section{heading: heading}
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

// Heading shapes seen in Chinese clinical guidelines: 第X章 titles,
// 一、enumerated parts, dotted numbering (3.2 …), bracketed markers and
// appendix titles. Numbered headings must lead into Han text so lab
// values like "30 mL/min" do not register.
var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^第[一二三四五六七八九十百零\d]+[章节篇部分]`),
	regexp.MustCompile(`^[一二三四五六七八九十]+、`),
	regexp.MustCompile(`^\d+(\.\d+)*[、.．\s]+\p{Han}`),
	regexp.MustCompile(`^【[^】]+】$`),
	regexp.MustCompile(`^附[录件]`),
}

func headingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxHeadingRunes {
		return "", false
	}
	// Headings carry no sentence punctuation; numbered body sentences do.
	if strings.ContainsAny(trimmed, "。！？；，") {
		return "", false
	}
	for _, pattern := range headingPatterns {
		if pattern.MatchString(trimmed) {
			return strings.Trim(trimmed, "【】"), true
		}
	}
	return "", false
}

// Recommendations either name the grade outright (证据等级：A) or close
// the sentence with a bracketed letter (……（B）。). The explicit form
// wins; otherwise the first marked sentence in the window does.
var evidenceGradePatterns = []*regexp.Regexp{
	regexp.MustCompile(`证据(?:等级|级别)[：:]?\s*([A-Ea-e])`),
	regexp.MustCompile(`(?m)[（(]([A-E])[）)]\s*(?:。|$)`),
}

func detectEvidenceGrade(text string) string {
	for _, pattern := range evidenceGradePatterns {
		if m := pattern.FindStringSubmatch(text); len(m) > 1 {
			return strings.ToUpper(m[1])
		}
	}
	return ""
}

func withSectionMarker(heading, window string) string {
	if heading == "" {
		return window
	}
	return sectionMarker + heading + "\n" + window
}
