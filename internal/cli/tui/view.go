package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sections []string

	// Title bar
	sections = append(sections, m.renderTitleBar())

	// Error display
	if m.err != nil {
		sections = append(sections, errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	// Training progress
	if m.training != nil {
		sections = append(sections, m.renderTraining())
	}

	// Extraction shards
	if len(m.shards) > 0 {
		sections = append(sections, m.renderShards())
	}

	// Host resources and workers
	if m.system != nil {
		sections = append(sections, m.renderSystem())
	}

	if m.training == nil && len(m.shards) == 0 && m.err == nil {
		sections = append(sections,
			labelStyle.Render("  no extraction or training activity yet"))
	}

	// Footer
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTitleBar() string {
	title := titleStyle.Render(fmt.Sprintf("URVC — %s", m.config.Experiment.Name))

	refreshInfo := fmt.Sprintf("↻ %s", m.config.RefreshInterval)
	if m.loading {
		refreshInfo = "↻ loading..."
	}

	help := helpStyle.Render("q:quit r:refresh")

	rightPart := fmt.Sprintf("%s | %s", refreshInfo, help)
	spacing := m.width - lipgloss.Width(title) - lipgloss.Width(rightPart) - 2
	if spacing < 1 {
		spacing = 1
	}

	return fmt.Sprintf("%s%s%s", title, strings.Repeat(" ", spacing), helpStyle.Render(rightPart))
}

func (m Model) renderTraining() string {
	t := m.training
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render(fmt.Sprintf("  Training (%s)", t.State)))

	percent := 0.0
	if t.TotalEpochs > 0 {
		percent = float64(t.Epoch) / float64(t.TotalEpochs) * 100
	}
	bar := m.renderProgressBar("Epochs", percent, 24)
	lines = append(lines, fmt.Sprintf("  %s %s",
		bar, valueStyle.Render(fmt.Sprintf("%d/%d", t.Epoch, t.TotalEpochs))))

	lines = append(lines, fmt.Sprintf("  %s %s    %s %s",
		labelStyle.Render("step"),
		valueStyle.Render(fmt.Sprintf("%d", t.Step)),
		labelStyle.Render("loss"),
		valueStyle.Render(fmt.Sprintf("%.4f", t.AvgGenLoss))))
	if t.BestEpoch > 0 {
		lines = append(lines, fmt.Sprintf("  %s %s",
			labelStyle.Render("best"),
			valueStyle.Render(fmt.Sprintf("%.4f @ epoch %d", t.BestLoss, t.BestEpoch))))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderShards() string {
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render("  Extraction"))
	for _, s := range m.shards {
		percent := 0.0
		if s.Total > 0 {
			percent = float64(s.Done+s.Failed) / float64(s.Total) * 100
		}
		bar := m.renderProgressBar(s.Device, percent, 18)
		info := fmt.Sprintf("%d/%d", s.Done, s.Total)
		if s.Failed > 0 {
			info += errorStyle.Render(fmt.Sprintf(" (%d failed)", s.Failed))
		}
		lines = append(lines, fmt.Sprintf("  %s %s", bar, valueStyle.Render(info)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderSystem() string {
	cpuBar := m.renderProgressBar("CPU", m.system.CPU.UsagePercent, 20)
	memBar := m.renderProgressBar("Memory", m.system.Memory.UsagePercent, 20)
	lines := []string{fmt.Sprintf("  %s    %s", cpuBar, memBar)}

	for _, w := range m.system.Workers {
		status := errorStyle.Render("dead")
		if w.Alive {
			status = valueStyle.Render(
				fmt.Sprintf("cpu %5.1f%%  rss %d MB", w.CPUPercent, w.RSSBytes/1024/1024))
		}
		lines = append(lines, fmt.Sprintf("  %s %s",
			labelStyle.Render(fmt.Sprintf("worker %d:", w.PID)), status))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderProgressBar(label string, percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	color := getProgressColor(percent)
	filledBar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	emptyBar := progressBarEmptyStyle.Render(strings.Repeat("░", width-filled))

	return fmt.Sprintf("%s [%s%s] %5.1f%%", labelStyle.Render(label), filledBar, emptyBar, percent)
}

func (m Model) renderFooter() string {
	if m.lastUpdated.IsZero() {
		return ""
	}
	return helpStyle.Render(fmt.Sprintf("  updated %s", m.lastUpdated.Format("15:04:05")))
}
