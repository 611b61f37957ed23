package main

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"earshot/beep"
	"earshot/classifier"
	"earshot/hotkey"
	"earshot/recognizer"
	"earshot/session"
	"earshot/toc"
)

// Session notifications, as TUI messages.
type StateMsg struct{ State session.State }
type InterimMsg struct{ Text string }
type UtteranceMsg struct{ Utterance recognizer.Utterance }
type InsightMsg struct{ Verdict *classifier.Verdict }
type TOCEntryMsg struct{ Entry toc.Entry }
type AlertMsg struct{ Attempt int }
type NoticeMsg struct{ Notice session.Notice }
type FinalizedMsg struct{ Result *session.Result }

// Results of commands the TUI runs in the background.
type ExportedMsg struct{ Path string }
type AnalyzedMsg struct{ Result *session.Result }
type CopiedMsg struct{}
type ErrMsg struct{ Err error }
type AnalyzeErrMsg struct{ Err error }
type HotkeyMsg struct{ Action hotkey.Action }

// teaNotifier forwards session notifications into a running program.
// Notifications that arrive before attach are dropped.
type teaNotifier struct {
	mu sync.Mutex
	p  *tea.Program
}

func (n *teaNotifier) attach(p *tea.Program) {
	n.mu.Lock()
	n.p = p
	n.mu.Unlock()
}

func (n *teaNotifier) send(msg tea.Msg) {
	n.mu.Lock()
	p := n.p
	n.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (n *teaNotifier) StateChanged(s session.State)     { n.send(StateMsg{State: s}) }
func (n *teaNotifier) Listening(text string)            { n.send(InterimMsg{Text: text}) }
func (n *teaNotifier) Utterance(u recognizer.Utterance) { n.send(UtteranceMsg{Utterance: u}) }
func (n *teaNotifier) Insight(v *classifier.Verdict)    { n.send(InsightMsg{Verdict: v}) }
func (n *teaNotifier) TOCAppended(e toc.Entry)          { n.send(TOCEntryMsg{Entry: e}) }
func (n *teaNotifier) Alert(attempt int)                { n.send(AlertMsg{Attempt: attempt}) }
func (n *teaNotifier) Notice(notice session.Notice)     { n.send(NoticeMsg{Notice: notice}) }
func (n *teaNotifier) Finalized(r *session.Result)      { n.send(FinalizedMsg{Result: r}) }

// cueNotifier adds the audible and desktop cues, then forwards.
type cueNotifier struct {
	session.Notifier
}

func (c cueNotifier) StateChanged(s session.State) {
	switch s {
	case session.Active:
		go beep.PlayStart()
	case session.Finalizing:
		go beep.PlayEnd()
	}
	c.Notifier.StateChanged(s)
}

func (c cueNotifier) Alert(attempt int) {
	go beep.PlayAlert()
	c.Notifier.Alert(attempt)
}

func (c cueNotifier) Notice(n session.Notice) {
	if n.Level == session.LevelError {
		go beep.PlayError()
		beep.Notify("earshot", n.Message)
	}
	c.Notifier.Notice(n)
}
