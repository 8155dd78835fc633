// Package tui provides an interactive terminal frontend for one-shot
// challenge solves. It drives the same solve path as the HTTP API, so it is
// handy for checking selectors and timing against a live site without
// standing up the server.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/solvarr/turnstiled/internal/types"
)

// SolveFunc runs a single solve. The TUI never touches the browser pool
// directly; the caller wires it to the real solver.
type SolveFunc func(ctx context.Context, req *types.SolveRequest) (*types.SolveResult, error)

// Field indexes into model.inputs.
const (
	fieldURL = iota
	fieldSiteKey
	fieldAction
	fieldCount
)

type state int

const (
	stateForm state = iota
	stateSolving
	stateDone
)

type solveDoneMsg struct {
	result *types.SolveResult
	err    error
}

type model struct {
	inputs  []textinput.Model
	focus   int
	spinner spinner.Model

	solve   SolveFunc
	timeout time.Duration

	state   state
	started time.Time
	result  *types.SolveResult
	err     error
}

func newModel(solve SolveFunc, timeout time.Duration) model {
	inputs := make([]textinput.Model, fieldCount)

	url := textinput.New()
	url.Placeholder = "https://example.com/login"
	url.Prompt = ""
	url.Focus()
	url.Width = 60
	inputs[fieldURL] = url

	sitekey := textinput.New()
	sitekey.Placeholder = "0x4AAAAAAA..."
	sitekey.Prompt = ""
	sitekey.Width = 60
	inputs[fieldSiteKey] = sitekey

	action := textinput.New()
	action.Placeholder = "(optional)"
	action.Prompt = ""
	action.Width = 60
	inputs[fieldAction] = action

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = solvingStyle

	return model{
		inputs:  inputs,
		spinner: sp,
		solve:   solve,
		timeout: timeout,
		state:   stateForm,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyTab, tea.KeyDown:
			if m.state == stateForm {
				m.setFocus((m.focus + 1) % fieldCount)
			}
			return m, nil

		case tea.KeyShiftTab, tea.KeyUp:
			if m.state == stateForm {
				m.setFocus((m.focus + fieldCount - 1) % fieldCount)
			}
			return m, nil

		case tea.KeyEnter:
			switch m.state {
			case stateForm:
				return m.startSolve()
			case stateDone:
				// Enter returns to the form for another run
				m.state = stateForm
				m.result = nil
				m.err = nil
				return m, nil
			}
			return m, nil
		}

	case spinner.TickMsg:
		if m.state == stateSolving {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case solveDoneMsg:
		m.state = stateDone
		m.result = msg.result
		m.err = msg.err
		return m, nil
	}

	if m.state == stateForm {
		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) setFocus(idx int) {
	m.inputs[m.focus].Blur()
	m.focus = idx
	m.inputs[m.focus].Focus()
}

func (m model) startSolve() (tea.Model, tea.Cmd) {
	req := &types.SolveRequest{
		URL:     strings.TrimSpace(m.inputs[fieldURL].Value()),
		SiteKey: strings.TrimSpace(m.inputs[fieldSiteKey].Value()),
		Action:  strings.TrimSpace(m.inputs[fieldAction].Value()),
	}
	if err := req.Validate(); err != nil {
		m.state = stateDone
		m.err = err
		return m, nil
	}

	m.state = stateSolving
	m.started = time.Now()

	solve := m.solve
	timeout := m.timeout
	run := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		result, err := solve(ctx, req)
		return solveDoneMsg{result: result, err: err}
	}

	return m, tea.Batch(m.spinner.Tick, run)
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("turnstiled"))
	b.WriteString(labelStyle.Render("  interactive solve"))
	b.WriteString("\n\n")

	labels := []string{"Target URL", "Site key", "Action"}
	for i, input := range m.inputs {
		style := labelStyle
		if m.state == stateForm && i == m.focus {
			style = focusedLabelStyle
		}
		b.WriteString(style.Render(fmt.Sprintf("%-11s", labels[i])))
		b.WriteString(input.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")

	switch m.state {
	case stateSolving:
		elapsed := time.Since(m.started).Round(time.Second)
		b.WriteString(m.spinner.View())
		b.WriteString(solvingStyle.Render(fmt.Sprintf(" solving... %s", elapsed)))
		b.WriteString("\n")

	case stateDone:
		if m.err != nil {
			b.WriteString(errorStyle.Render("✗ " + m.err.Error()))
			b.WriteString("\n")
		} else if m.result != nil {
			b.WriteString(tokenStyle.Render(fmt.Sprintf("✓ solved in %.3fs", m.result.ElapsedSeconds())))
			b.WriteString("\n\n")
			b.WriteString(boxStyle.Render(wrapToken(m.result.Token, 72)))
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("enter: solve again • esc: quit"))
		return b.String()
	}

	b.WriteString(helpStyle.Render("tab: next field • enter: solve • esc: quit"))
	return b.String()
}

// wrapToken breaks a long token into fixed-width lines so the result box
// stays readable in narrow terminals.
func wrapToken(token string, width int) string {
	if width < 1 || len(token) <= width {
		return token
	}
	var b strings.Builder
	for len(token) > width {
		b.WriteString(token[:width])
		b.WriteString("\n")
		token = token[width:]
	}
	b.WriteString(token)
	return b.String()
}

// Run starts the interactive solve UI and blocks until the user quits.
func Run(solve SolveFunc, timeout time.Duration) error {
	p := tea.NewProgram(newModel(solve, timeout))
	_, err := p.Run()
	return err
}
