package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"ragflow/internal/rag"
)

type welcomeModel struct {
	stats   *rag.Stats
	healthy bool
	baseURL string
	err     error
	ready   bool // true once the check has completed
}

// checkMsg is sent after inspecting the knowledge base and generator.
type checkMsg struct {
	stats   *rag.Stats
	healthy bool
	baseURL string
	err     error
}

func checkKnowledgeBase(cfg Config) tea.Cmd {
	return func() tea.Msg {
		if cfg.Engine == nil {
			return checkMsg{err: fmt.Errorf("no engine configured")}
		}
		stats, err := cfg.Engine.Stats(cfg.Ctx)
		gen := cfg.Engine.Generator()
		return checkMsg{
			stats:   stats,
			healthy: gen.HealthCheck(cfg.Ctx),
			baseURL: gen.BaseURL(),
			err:     err,
		}
	}
}

func (m welcomeModel) Update(msg tea.Msg) (welcomeModel, tea.Cmd) {
	switch msg := msg.(type) {
	case checkMsg:
		m.stats = msg.stats
		m.healthy = msg.healthy
		m.baseURL = msg.baseURL
		m.err = msg.err
		m.ready = true
	}
	return m, nil
}

func (m welcomeModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  ◆ ragflow") + "\n"
	s += subtitleStyle.Render("  Ask questions about your documents") + "\n\n"

	if !m.ready {
		s += dimStyle.Render("  Checking knowledge base...") + "\n"
		return s
	}

	switch {
	case m.err != nil:
		s += errorStyle.Render("  ✗ "+m.err.Error()) + "\n"
	case m.stats == nil || m.stats.TotalChunks == 0:
		s += warnStyle.Render("  ✗ Knowledge base is empty") + "\n"
	default:
		s += successStyle.Render(fmt.Sprintf("  ✓ %d chunks indexed", m.stats.TotalChunks)) + "\n"
		s += dimStyle.Render(fmt.Sprintf("    model %s, chunk size %d, overlap %d, top-k %d",
			m.stats.EmbeddingModel, m.stats.ChunkSize, m.stats.ChunkOverlap, m.stats.TopK)) + "\n"
	}

	if m.healthy {
		s += successStyle.Render("  ✓ Generator reachable at "+m.baseURL) + "\n"
	} else {
		s += warnStyle.Render("  ⚠ Generator not reachable at "+m.baseURL) + "\n"
	}

	s += "\n"
	s += dimStyle.Render("  Press Enter to continue") + "\n"
	return s
}
