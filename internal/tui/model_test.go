package tui

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"ragchat/internal/domain"
)

// stubAnswerer implements domain.Answerer for testing
type stubAnswerer struct {
	answer string
	err    error
	calls  int32
}

func (s *stubAnswerer) Answer(ctx context.Context, question string) (string, error) {
	return s.AnswerWithHistory(ctx, question, nil)
}

func (s *stubAnswerer) AnswerWithHistory(ctx context.Context, question string, history []domain.Message) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func sourceOf(a domain.Answerer, err error, calls *int32) EngineSource {
	return func(ctx context.Context) (domain.Answerer, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func readyModel(t *testing.T, a domain.Answerer) Model {
	t.Helper()
	m := New(sourceOf(a, nil, nil), Options{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, m.bootstrap()())
	if m.phase != phaseChat {
		t.Fatalf("expected chat phase, got %d", m.phase)
	}
	return m
}

func typeAndSubmit(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	return update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestSubmit_UserMessageThenAnswer(t *testing.T) {
	m := readyModel(t, &stubAnswerer{answer: "Refunds within 30 days."})

	m, cmd := typeAndSubmit(t, m, "What is the refund policy?")
	msgs := m.Messages()
	if len(msgs) != 1 || msgs[0].Text != "What is the refund policy?" || msgs[0].Sender != domain.SenderUser {
		t.Fatalf("user message should be logged immediately: %+v", msgs)
	}
	if m.input.Value() != "" {
		t.Error("input should be cleared on submit")
	}
	if cmd == nil {
		t.Fatal("expected an answer command")
	}

	m, _ = update(t, m, cmd())
	msgs = m.Messages()
	if len(msgs) != 2 || msgs[1].Text != "Refunds within 30 days." || msgs[1].Sender != domain.SenderAssistant {
		t.Errorf("unexpected log after answer: %+v", msgs)
	}
	if !strings.Contains(m.View(), "Refunds within 30 days.") {
		t.Error("answer should be visible in the transcript")
	}
}

func TestSubmit_FailureShowsFallback(t *testing.T) {
	m := readyModel(t, &stubAnswerer{err: &domain.UpstreamError{Stage: domain.StageRetrieve, Err: errors.New("503 from index")}})

	m, cmd := typeAndSubmit(t, m, "hello")
	m, _ = update(t, m, cmd())

	msgs := m.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(msgs))
	}
	if msgs[1].Text != domain.FallbackReply {
		t.Errorf("expected fallback reply, got %q", msgs[1].Text)
	}
	if strings.Contains(m.View(), "503 from index") {
		t.Error("raw error detail must not be shown")
	}
}

func TestSubmit_BlankIsIgnored(t *testing.T) {
	m := readyModel(t, &stubAnswerer{answer: "x"})
	m, cmd := typeAndSubmit(t, m, "   ")
	if cmd != nil || len(m.Messages()) != 0 {
		t.Error("blank input must not mutate the log")
	}
}

func TestSubmit_SecondSubmissionIgnoredWhilePending(t *testing.T) {
	a := &stubAnswerer{answer: "first answer"}
	m := readyModel(t, a)

	m, first := typeAndSubmit(t, m, "first")
	m, second := typeAndSubmit(t, m, "second")
	if second != nil {
		t.Error("second submission should not start a request")
	}
	if n := len(m.Messages()); n != 1 {
		t.Fatalf("log should hold only the first question while pending, got %d", n)
	}

	m, _ = update(t, m, first())
	if n := len(m.Messages()); n != 2 {
		t.Fatalf("log should never exceed 2 entries, got %d", n)
	}
	if a.calls != 1 {
		t.Errorf("expected one engine call, got %d", a.calls)
	}
	// the ignored text is still in the input and can be sent now
	if m.input.Value() != "second" {
		t.Errorf("ignored input should remain editable, got %q", m.input.Value())
	}
}

func TestBootstrapFailure_BlocksChat(t *testing.T) {
	cfgErr := &domain.ConfigurationError{Missing: []string{"PINECONE_INDEX"}}
	m := New(sourceOf(nil, cfgErr, nil), Options{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, m.bootstrap()())

	if !errors.Is(m.Fatal(), cfgErr) {
		t.Fatalf("expected fatal configuration error, got %v", m.Fatal())
	}
	view := m.View()
	if !strings.Contains(view, "PINECONE_INDEX") || !strings.Contains(view, "Unable to start") {
		t.Errorf("fatal screen should name the problem: %s", view)
	}

	m.input.SetValue("hello")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if cmd != nil || len(m.Messages()) != 0 {
		t.Error("no query may be issued after a fatal bootstrap")
	}
}

func TestBooting_EnterIgnored(t *testing.T) {
	m := New(sourceOf(&stubAnswerer{}, nil, nil), Options{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, cmd := typeAndSubmit(t, m, "too early")
	if cmd != nil || len(m.Messages()) != 0 {
		t.Error("submissions before bootstrap completes must be ignored")
	}
}

func TestLazy_BootstrapsOnFirstQuestion(t *testing.T) {
	var boots int32
	a := &stubAnswerer{answer: "lazy answer"}
	m := New(sourceOf(a, nil, &boots), Options{Lazy: true})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	if boots != 0 {
		t.Fatal("lazy mode must not bootstrap before the first question")
	}

	m, cmd := typeAndSubmit(t, m, "q1")
	m, _ = update(t, m, cmd())
	if boots != 1 || m.Messages()[1].Text != "lazy answer" {
		t.Fatalf("expected one bootstrap and an answer, got boots=%d log=%+v", boots, m.Messages())
	}

	m, cmd = typeAndSubmit(t, m, "q2")
	m, _ = update(t, m, cmd())
	if boots != 1 {
		t.Errorf("engine should be reused, got %d bootstraps", boots)
	}
	if len(m.Messages()) != 4 {
		t.Errorf("expected 4 entries, got %d", len(m.Messages()))
	}
}

func TestLazy_BootstrapFailureIsFallback(t *testing.T) {
	m := New(sourceOf(nil, &domain.ConnectionError{Target: "pinecone index docs", Err: errors.New("refused")}, nil), Options{Lazy: true})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	m, cmd := typeAndSubmit(t, m, "q")
	m, _ = update(t, m, cmd())
	msgs := m.Messages()
	if len(msgs) != 2 || msgs[1].Text != domain.FallbackReply {
		t.Errorf("expected fallback reply, got %+v", msgs)
	}
}

func TestClear_OnlyWhenIdle(t *testing.T) {
	m := readyModel(t, &stubAnswerer{answer: "a"})
	m, cmd := typeAndSubmit(t, m, "q")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(m.Messages()) != 1 {
		t.Error("clear must be refused while a question is pending")
	}
	m, _ = update(t, m, cmd())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(m.Messages()) != 0 {
		t.Error("clear should empty the log when idle")
	}
}

func TestAutoScrollToNewest(t *testing.T) {
	m := New(sourceOf(&stubAnswerer{answer: strings.Repeat("line\n", 40)}, nil, nil), Options{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 15})
	m, _ = update(t, m, m.bootstrap()())

	m, cmd := typeAndSubmit(t, m, "long please")
	m, _ = update(t, m, cmd())
	if !m.viewport.AtBottom() {
		t.Error("viewport should be scrolled to the newest message")
	}
}

func TestQuitKeys(t *testing.T) {
	m := readyModel(t, &stubAnswerer{})
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should produce QuitMsg")
	}
}

func TestFatal_OnlyQuitKeysExit(t *testing.T) {
	m := New(sourceOf(nil, &domain.ConfigurationError{Missing: []string{"OPENAI_API_KEY"}}, nil), Options{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = update(t, m, m.bootstrap()())

	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("enter must not quit the fatal screen")
	}
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit the fatal screen")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should produce QuitMsg")
	}
}
