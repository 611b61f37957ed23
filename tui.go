package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"earshot/audio"
	"earshot/beep"
	"earshot/classifier"
	"earshot/clipboard"
	"earshot/credential"
	"earshot/hotkey"
	"earshot/log"
	"earshot/session"
	"earshot/shutdown"
	"earshot/toc"
)

const (
	maxUtterances = 8
	noticeTTL     = 6 * time.Second
)

type tickMsg time.Time

type tuiModel struct {
	ctrl *session.Controller

	state      session.State
	started    time.Time
	now        time.Time
	interim    string
	utterances []string
	entries    []toc.Entry
	insight    *classifier.Verdict
	alerts     int

	notice   string
	noticeOK bool
	noticeAt time.Time

	last      *session.Result
	analyzing bool

	deviceLine string
	hotkeyLine string
	width      int
	height     int
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	recStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	busyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	interimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	topicStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	markStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("135"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func newTUIModel(ctrl *session.Controller, deviceLine, hotkeyLine string) tuiModel {
	return tuiModel{ctrl: ctrl, deviceLine: deviceLine, hotkeyLine: hotkeyLine, now: time.Now()}
}

func tuiTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.key(msg.String())

	case HotkeyMsg:
		if msg.Action == hotkey.ActionBookmark {
			return m, m.bookmark()
		}
		return m, m.toggle()

	case tickMsg:
		m.now = time.Time(msg)
		return m, tuiTick()

	case StateMsg:
		m.state = msg.State
		switch msg.State {
		case session.Active:
			m.started = time.Now()
			m.interim = ""
			m.utterances = nil
			m.entries = nil
			m.insight = nil
			m.alerts = 0
			m.last = nil
		case session.Finalizing:
			m.interim = ""
		}

	case InterimMsg:
		m.interim = msg.Text

	case UtteranceMsg:
		m.interim = ""
		m.utterances = append(m.utterances, msg.Utterance.Text)
		if len(m.utterances) > maxUtterances {
			m.utterances = m.utterances[len(m.utterances)-maxUtterances:]
		}

	case InsightMsg:
		m.insight = msg.Verdict

	case TOCEntryMsg:
		m.entries = append(m.entries, msg.Entry)

	case AlertMsg:
		m.alerts++
		m = m.say(fmt.Sprintf("recognition restarted (attempt %d)", msg.Attempt), false)

	case NoticeMsg:
		m = m.say(msg.Notice.Message, msg.Notice.Level == session.LevelInfo)

	case FinalizedMsg:
		m.last = msg.Result
		if msg.Result.AudioPath != "" {
			m = m.say("saved "+msg.Result.AudioPath, true)
		}

	case ExportedMsg:
		m = m.say("table of contents saved to "+msg.Path, true)

	case AnalyzedMsg:
		m.analyzing = false
		m.last = msg.Result
		m = m.say("report saved to "+msg.Result.ReportPath, true)

	case CopiedMsg:
		m = m.say("report copied to clipboard", true)

	case AnalyzeErrMsg:
		m.analyzing = false
		m = m.say(describeErr(msg.Err), false)

	case ErrMsg:
		m = m.say(describeErr(msg.Err), false)
	}
	return m, nil
}

func (m tuiModel) key(k string) (tea.Model, tea.Cmd) {
	switch k {
	case "ctrl+c", "q":
		return m, tea.Quit
	case " ":
		return m, m.toggle()
	case "b":
		return m, m.bookmark()
	case "t":
		return m, m.exportTOC()
	case "a":
		if m.analyzing {
			return m.say("analysis already running", false), nil
		}
		if m.last == nil {
			return m.say("nothing to analyze yet", false), nil
		}
		m.analyzing = true
		return m.say("analyzing…", true), m.analyze()
	case "c":
		if m.analyzing {
			return m.say("wait for the analysis to finish before copying", false), nil
		}
		if m.last == nil || m.last.Report == nil {
			return m.say("no report to copy", false), nil
		}
		return m, copyReport(m.last.Report.HTML)
	}
	return m, nil
}

// describeErr turns an error into a status line, pointing at the fix when
// there is an obvious one.
func describeErr(err error) string {
	if errors.Is(err, session.ErrMissingCredential) {
		return credential.KeyName + " is not set; run `earshot key set` or export it"
	}
	return err.Error()
}

func (m tuiModel) say(text string, ok bool) tuiModel {
	m.notice = text
	m.noticeOK = ok
	m.noticeAt = time.Now()
	return m
}

func (m tuiModel) toggle() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		switch ctrl.State() {
		case session.Idle:
			if err := ctrl.Start(context.Background()); err != nil {
				return ErrMsg{Err: err}
			}
		case session.Active:
			if _, err := ctrl.Stop(); err != nil {
				return ErrMsg{Err: err}
			}
		}
		return nil
	}
}

func (m tuiModel) bookmark() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if _, err := ctrl.Bookmark(""); err != nil && !errors.Is(err, session.ErrNotActive) {
			return ErrMsg{Err: err}
		}
		return nil
	}
}

func (m tuiModel) exportTOC() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		path, err := ctrl.ExportTOC("txt")
		if err != nil {
			return ErrMsg{Err: err}
		}
		return ExportedMsg{Path: path}
	}
}

func (m tuiModel) analyze() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		res, err := ctrl.Analyze(context.Background())
		if err != nil {
			return AnalyzeErrMsg{Err: err}
		}
		return AnalyzedMsg{Result: res}
	}
}

func copyReport(html string) tea.Cmd {
	return func() tea.Msg {
		if err := clipboard.CopyReport(html); err != nil {
			return ErrMsg{Err: err}
		}
		return CopiedMsg{}
	}
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	leftWidth := min(44, m.width/2)
	rightWidth := max(m.width-leftWidth-1, 20)

	left := strings.Join(m.statusLines(leftWidth), "\n")
	right := strings.Join(m.conversationLines(rightWidth-2), "\n")

	leftPanel := lipgloss.NewStyle().Width(leftWidth).Height(m.height).Render(left)
	rightPanel := lipgloss.NewStyle().Width(rightWidth).Height(m.height).PaddingLeft(1).Render(right)
	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

func (m tuiModel) statusLines(width int) []string {
	lines := []string{titleStyle.Render("earshot"), ""}

	switch m.state {
	case session.Active:
		lines = append(lines, recStyle.Render("● REC "+toc.FormatRelative(m.now.Sub(m.started))))
	case session.Finalizing:
		lines = append(lines, busyStyle.Render("◌ saving…"))
	default:
		lines = append(lines, idleStyle.Render("○ STANDBY"))
	}
	if m.analyzing {
		lines = append(lines, busyStyle.Render("◌ analyzing recording…"))
	}
	if m.alerts > 0 && m.state == session.Active {
		lines = append(lines, errStyle.Render(fmt.Sprintf("⚠ recognition restarted %d×", m.alerts)))
	}
	if m.deviceLine != "" {
		lines = append(lines, dimStyle.Render(m.deviceLine))
	}

	lines = append(lines, "", titleStyle.Render("Table of contents"))
	if len(m.entries) == 0 {
		lines = append(lines, dimStyle.Render("(empty)"))
	}
	for _, e := range m.entries {
		style := textStyle
		switch e.Kind {
		case toc.Topic:
			style = topicStyle
		case toc.Bookmark:
			style = markStyle
		}
		for _, l := range wrapText(e.String(), width) {
			lines = append(lines, style.Render(l))
		}
	}

	if m.notice != "" && m.now.Sub(m.noticeAt) < noticeTTL {
		style := errStyle
		if m.noticeOK {
			style = okStyle
		}
		lines = append(lines, "")
		for _, l := range wrapText(m.notice, width) {
			lines = append(lines, style.Render(l))
		}
	}

	lines = append(lines, "", m.help(), helpStyle.Render("earshot "+version))
	return lines
}

func (m tuiModel) help() string {
	keys := []struct{ k, what string }{
		{"space", "rec"}, {"b", "mark"}, {"t", "toc"}, {"a", "analyze"}, {"c", "copy"}, {"q", "quit"},
	}
	var parts []string
	for _, k := range keys {
		parts = append(parts, keyStyle.Render(k.k)+helpStyle.Render(" "+k.what))
	}
	help := strings.Join(parts, helpStyle.Render(" · "))
	if m.hotkeyLine != "" {
		help += "\n" + keyStyle.Render(m.hotkeyLine) + helpStyle.Render(" tap rec, hold mark")
	}
	return help
}

func (m tuiModel) conversationLines(width int) []string {
	var lines []string
	if v := m.insight; v != nil {
		lines = append(lines, titleStyle.Render("Now"))
		if t := v.Topic(); t != "" {
			lines = append(lines, topicStyle.Render("주제: "+t))
		}
		for _, f := range []struct{ label, value string }{
			{"mood", v.Mood}, {"intent", v.Intent}, {"tip", v.Suggestion}, {"speaker", v.Speaker},
		} {
			if f.value == "" {
				continue
			}
			for _, l := range wrapText(f.label+": "+f.value, width) {
				lines = append(lines, dimStyle.Render(l))
			}
		}
		lines = append(lines, "")
	}

	lines = append(lines, titleStyle.Render("Transcript"))
	if len(m.utterances) == 0 && m.interim == "" {
		lines = append(lines, dimStyle.Render("No utterances yet"))
	}
	for _, u := range m.utterances {
		for _, l := range wrapText(u, width) {
			lines = append(lines, textStyle.Render(l))
		}
	}
	if m.interim != "" {
		for _, l := range wrapText("… "+m.interim, width) {
			lines = append(lines, interimStyle.Render(l))
		}
	}

	if m.last != nil && m.state == session.Idle {
		lines = append(lines, "", titleStyle.Render("Last session"))
		lines = append(lines, dimStyle.Render(fmt.Sprintf("%s, %d utterances, %s",
			toc.FormatRelative(m.last.Duration()), len(m.last.Transcript), m.last.Status)))
		if m.last.Report != nil {
			lines = append(lines, okStyle.Render("report ready ("+m.last.Report.Model+")"))
			for _, l := range wrapText(clipboard.PlainText(m.last.Report.HTML), width) {
				lines = append(lines, textStyle.Render(l))
			}
		}
	}
	return lines
}

// wrapText breaks text on spaces so no line is wider than width cells.
func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	width = max(width, 1)

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var cur strings.Builder
		for _, word := range strings.Fields(para) {
			if cur.Len() > 0 && lipgloss.Width(cur.String())+1+lipgloss.Width(word) > width {
				lines = append(lines, cur.String())
				cur.Reset()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(word)
		}
		lines = append(lines, cur.String())
	}
	return lines
}

const (
	longPress    = 600 * time.Millisecond
	closeTimeout = 10 * time.Second
)

// runTUI runs the interactive recorder until the user quits or a
// termination signal arrives.
func runTUI(g *globalFlags, pick bool) error {
	e, err := openEnv(g)
	if err != nil {
		return err
	}
	defer e.Close()

	actx, err := audio.NewContext()
	if err != nil {
		log.Warnf("audio unavailable: %v", err)
		actx = nil
	}
	var dev *audio.DeviceInfo
	if actx != nil {
		defer actx.Close()
		if pick {
			dev, err = audio.SelectDevice(actx)
		} else {
			dev, err = audio.FindDevice(actx, e.cfg.Device)
		}
		if err != nil {
			return err
		}
	}
	go beep.Init()

	opts := e.sessionOptions()
	opts.Audio = actx
	opts.Device = dev
	opts.Recognizers = recognizerFactory(e.cfg, actx, dev)

	tn := &teaNotifier{}
	ctrl := session.New(opts, cueNotifier{Notifier: tn})

	deviceLine := "mic: system default"
	if dev != nil {
		deviceLine = "mic: " + dev.Name
	}
	if actx == nil {
		deviceLine = "mic: unavailable, transcript only"
	}

	var actions *hotkey.Actions
	hotkeyLine := ""
	combo, err := hotkey.ParseCombo(e.cfg.Hotkey)
	if err != nil {
		log.Warnf("hotkey: %v", err)
	} else {
		hk := hotkey.New(combo)
		if err := hk.Register(); err != nil {
			log.Warnf("hotkey %s unavailable: %v", combo, err)
		} else {
			defer hk.Unregister()
			actions = hotkey.NewActions(hk, longPress)
			defer actions.Close()
			hotkeyLine = combo.String()
		}
	}

	p := tea.NewProgram(newTUIModel(ctrl, deviceLine, hotkeyLine), tea.WithAltScreen())
	tn.attach(p)

	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	if actions != nil {
		go func() {
			for a := range actions.C() {
				p.Send(HotkeyMsg{Action: a})
			}
		}()
	}

	_, runErr := p.Run()
	tn.attach(nil)
	if !shutdown.Drain(closeTimeout, func(context.Context) { ctrl.Close() }) {
		log.Warn("session did not finish saving before exit")
	}
	return runErr
}
