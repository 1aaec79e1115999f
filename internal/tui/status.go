package tui

import (
	"strings"
)

// StatusModel renders the top status bar.
type StatusModel struct {
	Version   string
	Provider  string
	ModelName string
	State     string
}

// NewStatusModel constructs status data for rendering.
func NewStatusModel(version, provider, modelName string) StatusModel {
	return StatusModel{
		Version:   strings.TrimSpace(version),
		Provider:  strings.TrimSpace(provider),
		ModelName: strings.TrimSpace(modelName),
		State:     "idle",
	}
}

// SetState updates the runtime state token.
func (m *StatusModel) SetState(state string) {
	m.State = strings.TrimSpace(state)
	if m.State == "" {
		m.State = "idle"
	}
}

// Render draws a one-line status bar.
func (m StatusModel) Render(width int, theme Theme) string {
	parts := []string{
		"relay " + fallbackText(m.Version, "dev"),
		fallbackText(m.Provider, "default-endpoint"),
		fallbackText(m.ModelName, "unknown-model"),
		"state: " + fallbackText(m.State, "idle"),
	}
	line := strings.Join(parts, " | ")
	style := theme.StatusBarStyle
	if width > 0 {
		style = style.Width(width)
	}
	return style.Render(line)
}

func fallbackText(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
