package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ChuLiYu/geotile/pkg/types"
)

// 終端機輸出樣式；非 TTY 時 lipgloss 自動輸出純文字
var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7875F"))

	statusStyles = map[types.JobStatus]lipgloss.Style{
		types.StatusPending:    lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A")),
		types.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("#D7AF00")),
		types.StatusDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAF5F")),
	}
)

// renderStatus 以狀態對應的顏色輸出
func renderStatus(s types.JobStatus) string {
	if st, ok := statusStyles[s]; ok {
		return st.Render(string(s))
	}
	return string(s)
}
