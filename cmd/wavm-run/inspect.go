package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/term"

	"github.com/inyutin/WAVM/emscripten"
	"github.com/inyutin/WAVM/engine"
	"github.com/inyutin/WAVM/linker"
	"github.com/inyutin/WAVM/runner"
	"github.com/inyutin/WAVM/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// inspect opens the interactive export browser for a module.
func inspect(ctx context.Context, path string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("--inspect needs a terminal")
	}
	p := tea.NewProgram(newInspectModel(ctx, path), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type inspectModel struct {
	ctx      context.Context
	err      error
	domain   *engine.Domain
	instance api.Module
	path     string
	result   string
	imports  []string
	funcs    []funcInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type funcInfo struct {
	name string
	sig  wasm.FuncType
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

func newInspectModel(ctx context.Context, path string) *inspectModel {
	return &inspectModel{
		ctx:   ctx,
		path:  path,
		state: stateSelectFunc,
	}
}

type loadedMsg struct {
	err      error
	domain   *engine.Domain
	instance api.Module
	imports  []string
	funcs    []funcInfo
}

type callResultMsg struct {
	err    error
	result string
}

func (m *inspectModel) Init() tea.Cmd {
	return m.loadModule
}

// loadModule runs the ordinary pipeline up to instantiation, so the browsed
// exports behave exactly as they would under a normal run: imports linked
// against the environment, unknowns stubbed.
func (m *inspectModel) loadModule() tea.Msg {
	desc, err := runner.Load(m.path)
	if err != nil {
		return loadedMsg{err: err}
	}

	domain := engine.NewDomain(m.ctx, engine.Config{MemoryLimitPages: flagMemoryPages})
	registry := linker.NewRegistry()

	if emscripten.Detect(desc) {
		env, err := emscripten.Instantiate(m.ctx, domain, desc)
		if err != nil {
			domain.Close(m.ctx)
			return loadedMsg{err: err}
		}
		env.Register(registry)
	}

	compiled, err := domain.Compile(m.ctx, desc)
	if err != nil {
		domain.Close(m.ctx)
		return loadedMsg{err: err}
	}
	bindings, err := linker.Link(m.ctx, desc, linker.NewResolver(registry, linker.NewSynthesizer(domain)))
	if err != nil {
		domain.Close(m.ctx)
		return loadedMsg{err: err}
	}
	instance, err := domain.Instantiate(m.ctx, compiled, "inspect", bindings)
	if err != nil {
		domain.Close(m.ctx)
		return loadedMsg{err: err}
	}

	var imports []string
	for _, imp := range desc.Imports {
		imports = append(imports, fmt.Sprintf("%s.%s %s",
			imp.Module, imp.Name, linker.TypeOfImport(desc, imp)))
	}
	var funcs []funcInfo
	for _, exp := range desc.Exports {
		if exp.Kind != wasm.KindFunc {
			continue
		}
		if ft, ok := desc.FuncTypeOf(exp.Index); ok {
			funcs = append(funcs, funcInfo{name: exp.Name, sig: ft})
		}
	}

	return loadedMsg{funcs: funcs, imports: imports, domain: domain, instance: instance}
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.domain != nil {
				m.domain.Close(m.ctx)
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.funcs = msg.funcs
		m.imports = msg.imports
		m.domain = msg.domain
		m.instance = msg.instance

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *inspectModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.sig.Params))
	for i, p := range f.sig.Params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *inspectModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	args := make([]uint64, len(m.inputs))
	for i, input := range m.inputs {
		v, err := convertArg(input.Value(), f.sig.Params[i])
		if err != nil {
			return callResultMsg{err: fmt.Errorf("arg%d: %w", i, err)}
		}
		args[i] = v
	}

	results, err := m.instance.ExportedFunction(f.name).Call(m.ctx, args...)
	if err != nil {
		return callResultMsg{err: err}
	}

	var parts []string
	for i, r := range results {
		if i < len(f.sig.Results) {
			parts = append(parts, formatValue(r, f.sig.Results[i]))
		} else {
			parts = append(parts, strconv.FormatUint(r, 10))
		}
	}
	if len(parts) == 0 {
		return callResultMsg{result: "(no results)"}
	}
	return callResultMsg{result: strings.Join(parts, ", ")}
}

func convertArg(value string, t wasm.ValType) (uint64, error) {
	switch t {
	case wasm.I32:
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("want i32: %w", err)
		}
		return uint64(uint32(int32(v))), nil
	case wasm.I64:
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("want i64: %w", err)
		}
		return uint64(v), nil
	case wasm.F32:
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return 0, fmt.Errorf("want f32: %w", err)
		}
		return api.EncodeF32(float32(v)), nil
	case wasm.F64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("want f64: %w", err)
		}
		return api.EncodeF64(v), nil
	}
	return 0, fmt.Errorf("cannot supply a %s from the keyboard", t)
}

func formatValue(raw uint64, t wasm.ValType) string {
	switch t {
	case wasm.I32:
		return strconv.FormatInt(int64(int32(raw)), 10)
	case wasm.I64:
		return strconv.FormatInt(int64(raw), 10)
	case wasm.F32:
		return strconv.FormatFloat(float64(api.DecodeF32(raw)), 'g', -1, 32)
	case wasm.F64:
		return strconv.FormatFloat(api.DecodeF64(raw), 'g', -1, 64)
	}
	return strconv.FormatUint(raw, 10)
}

func (m *inspectModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.funcs) == 0 {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("WAVM Inspector"))
	b.WriteString(" ")
	b.WriteString(m.path)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.imports) > 0 {
			b.WriteString("Imports:\n")
			for _, imp := range m.imports {
				b.WriteString("  " + typeStyle.Render(imp) + "\n")
			}
			b.WriteString("\n")
		}
		b.WriteString("Select an export to call:\n\n")
		for i, f := range m.funcs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + m.formatFunc(f)))
			} else {
				b.WriteString(cursor + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.sig.Params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *inspectModel) formatFunc(f funcInfo) string {
	var params []string
	for _, p := range f.sig.Params {
		params = append(params, typeStyle.Render(p.String()))
	}
	result := ""
	if len(f.sig.Results) > 0 {
		var rs []string
		for _, r := range f.sig.Results {
			rs = append(rs, typeStyle.Render(r.String()))
		}
		result = " -> " + strings.Join(rs, ", ")
	}
	return funcStyle.Render(f.name) + "(" + strings.Join(params, ", ") + ")" + result
}
