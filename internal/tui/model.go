// Package tui is the interactive query console: type a question, walk the
// ranked results, and inspect where each hit came from.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rag-media-search/internal/audio"
	"rag-media-search/internal/domain"
	"rag-media-search/internal/service"
)

// SearchPort is the TUI-facing subset of the RAG service.
type SearchPort interface {
	Query(ctx context.Context, query string, opts service.QueryOptions) (service.QueryResult, error)
	SummarizeWindow(ctx context.Context, window domain.TimeWindow) (string, error)
	TranscriptStats(ctx context.Context) (audio.Stats, error)
}

// Model is the Bubble Tea model for the query console.
type Model struct {
	service   SearchPort
	input     textinput.Model
	viewport  viewport.Model
	result    service.QueryResult
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New creates the console model. banner is shown under the header, typically
// what was just ingested.
func New(svc SearchPort, banner string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question (/summary 2-5, /stats, audio: <q>)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: svc, input: ti, viewport: vp, status: banner}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1 // header, status, query box, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line != "" {
				m = m.run(line)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "down":
			if n := len(m.result.Results); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if n := len(m.result.Results); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// run executes one console line: a slash command or a query. Queries prefixed
// with a content type ("audio: ...") restrict retrieval to that type.
func (m Model) run(line string) Model {
	ctx := context.Background()
	switch {
	case line == "/stats":
		stats, err := m.service.TranscriptStats(ctx)
		if err != nil {
			m.status = "Error: " + err.Error()
			return m
		}
		m.result = service.QueryResult{}
		m.status = fmt.Sprintf("%d words, %d sentences over %.1f min — %.0f wpm (%s)",
			stats.Words, stats.Sentences, stats.DurationSecs/60, stats.WordsPerMinute, stats.Pacing)
		return m
	case strings.HasPrefix(line, "/summary"):
		window, err := parseWindow(strings.TrimSpace(strings.TrimPrefix(line, "/summary")))
		if err != nil {
			m.status = "Usage: /summary <start>-<end> (minutes)"
			return m
		}
		summary, err := m.service.SummarizeWindow(ctx, window)
		if err != nil {
			m.status = "Error: " + err.Error()
			return m
		}
		if summary == "" {
			summary = "No audio content in that window."
		}
		m.result = service.QueryResult{Answer: summary}
		m.cursor = 0
		m.status = fmt.Sprintf("Summary of %.0f–%.0f min", window.Start/60, window.End/60)
		return m
	}

	opts := service.QueryOptions{}
	query := line
	for _, ct := range []domain.ContentType{domain.ContentText, domain.ContentImage, domain.ContentTable, domain.ContentAudio} {
		prefix := string(ct) + ":"
		if strings.HasPrefix(line, prefix) {
			opts.ContentType = ct
			query = strings.TrimSpace(strings.TrimPrefix(line, prefix))
			break
		}
	}
	res, err := m.service.Query(ctx, query, opts)
	if err != nil {
		m.status = "Error: " + err.Error()
		m.result = service.QueryResult{}
		return m
	}
	m.result = res
	m.cursor = 0
	m.lastQuery = res.ResolvedQuery
	m.status = fmt.Sprintf("%d results for %q", len(res.Results), res.ResolvedQuery)
	if res.Degraded {
		m.status += " " + degradedStyle.Render("[rerank unavailable, fused order]")
	}
	return m
}

// View renders the console layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Media Search")
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.result.Results) == 0 {
		if m.result.Answer != "" {
			return m.result.Answer
		}
		return "No results yet."
	}
	r := m.result.Results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  score=%.3f  %s", m.cursor+1, len(m.result.Results), r.Score, sourceLine(r.Chunk))
	body := highlightBestSentence(r.Chunk.Text, m.lastQuery)
	out := title + "\n\n" + body
	if m.cursor == 0 && m.result.Answer != "" {
		out = answerStyle.Render(m.result.Answer) + "\n\n" + out
	}
	return out
}

// sourceLine formats where a chunk came from: file plus page for documents,
// time range for audio.
func sourceLine(ch domain.Chunk) string {
	loc := ch.Metadata.FileName
	switch {
	case ch.Metadata.ContentType == domain.ContentAudio:
		loc += fmt.Sprintf(" %.1f–%.1f min", ch.Metadata.StartTime/60, ch.Metadata.EndTime/60)
	case ch.Metadata.Page > 0:
		loc += fmt.Sprintf(" p.%d", ch.Metadata.Page)
	}
	return fmt.Sprintf("[%s] %s", ch.Metadata.ContentType, loc)
}

// parseWindow parses "2-5" (minutes) into a time window in seconds.
func parseWindow(s string) (domain.TimeWindow, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return domain.TimeWindow{}, fmt.Errorf("expected <start>-<end>")
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.TimeWindow{}, err
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.TimeWindow{}, err
	}
	if end <= start {
		return domain.TimeWindow{}, fmt.Errorf("end must be after start")
	}
	return domain.TimeWindow{Start: start * 60, End: end * 60}, nil
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	degradedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
