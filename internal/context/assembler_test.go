package ctxengine_test

import (
	"math/rand/v2"
	"slices"
	"testing"

	ctxengine "github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/context"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"
)

func newAssembler(cfg ctxengine.ContextConfig) *ctxengine.ContextAssembler {
	return ctxengine.NewContextAssembler(&mockEstimator{}, cfg)
}

// ---------------------------------------------------------------------------
// Basic assembly
// ---------------------------------------------------------------------------

func TestContextAssembler_Assemble_Basic(t *testing.T) {
	t.Parallel()

	req := ctxengine.AssemblyRequest{
		Profile: profile(static("main", "Be helpful."), history()),
		Context: ctxengine.Context{History: []message.Message{message.User("Hi")}},
	}

	result := newAssembler(ctxengine.ContextConfig{}).Assemble(req)

	want := []message.Message{message.System("Be helpful."), message.User("Hi")}
	if !slices.Equal(result.Messages, want) {
		t.Errorf("Messages = %v, want %v", result.Messages, want)
	}
	if result.Budget.MaxChars != 0 || result.Budget.Truncated() {
		t.Errorf("Budget = %+v, want disabled and untruncated", result.Budget)
	}
	if result.Budget.Chars != message.TotalSize(want) {
		t.Errorf("Budget.Chars = %d, want %d", result.Budget.Chars, message.TotalSize(want))
	}
	if result.Budget.Tokens != ctxengine.EstimateMessages(&mockEstimator{}, want) {
		t.Errorf("Budget.Tokens = %d", result.Budget.Tokens)
	}
}

func TestContextAssembler_Assemble_VariablesInHead(t *testing.T) {
	t.Parallel()

	req := ctxengine.AssemblyRequest{
		Profile: profile(static("main", "Hi {{user}} from {{Char}}")),
		Context: ctxengine.Context{
			Persona:   ctxengine.Persona{Name: "Alice"},
			Character: ctxengine.Character{Name: "Bob"},
		},
	}

	result := newAssembler(ctxengine.ContextConfig{}).Assemble(req)

	want := []message.Message{message.System("Hi Alice from Bob")}
	if !slices.Equal(result.Messages, want) {
		t.Errorf("Messages = %v, want %v", result.Messages, want)
	}
}

func TestContextAssembler_Assemble_DepthInjection(t *testing.T) {
	t.Parallel()

	req := ctxengine.AssemblyRequest{
		Profile: profile(
			history(),
			injected("reminder", message.RoleSystem, "Reminder", preset.PositionDepth, 1),
		),
		Context: ctxengine.Context{History: []message.Message{message.User("a"), message.Assistant("b")}},
	}

	result := newAssembler(ctxengine.ContextConfig{}).Assemble(req)

	want := []message.Message{message.User("a"), message.System("Reminder"), message.Assistant("b")}
	if !slices.Equal(result.Messages, want) {
		t.Errorf("Messages = %v, want %v", result.Messages, want)
	}
}

func TestContextAssembler_Assemble_BudgetKeepsAnchor(t *testing.T) {
	t.Parallel()

	req := ctxengine.AssemblyRequest{
		Profile:  profile(static("main", "ANCHOR"), history()),
		Context:  ctxengine.Context{History: []message.Message{message.User("12345678")}},
		MaxChars: 5,
	}

	result := newAssembler(ctxengine.ContextConfig{}).Assemble(req)

	want := []message.Message{message.System("ANCHOR")}
	if !slices.Equal(result.Messages, want) {
		t.Errorf("Messages = %v, want %v", result.Messages, want)
	}
	if !result.Budget.AnchorForced || result.Budget.Dropped != 1 || !result.Budget.Exceeded() {
		t.Errorf("Budget = %+v", result.Budget)
	}
}

func TestContextAssembler_Assemble_LegacyOrder(t *testing.T) {
	t.Parallel()

	segs := []preset.Segment{
		static("main", "MAIN"),
		static("note", "NOTE"),
		history(),
	}
	order := []preset.OrderEntry{{LegacyID: 100007, Enabled: true}, {Identifier: "note", Enabled: true}}

	req := ctxengine.AssemblyRequest{
		Profile: preset.NewProfile(segs, order, preset.Formats{}),
		Context: ctxengine.Context{History: []message.Message{message.User("x")}},
	}

	result := newAssembler(ctxengine.ContextConfig{}).Assemble(req)

	// chatHistory, note, then main appended; head blocks keep that order.
	want := []message.Message{message.System("NOTE\n\nMAIN"), message.User("x")}
	if !slices.Equal(result.Messages, want) {
		t.Errorf("Messages = %v, want %v", result.Messages, want)
	}
}

// ---------------------------------------------------------------------------
// Budget source
// ---------------------------------------------------------------------------

func TestContextAssembler_Assemble_MaxCharsSource(t *testing.T) {
	t.Parallel()

	req := ctxengine.AssemblyRequest{
		Profile: profile(history()),
		Context: ctxengine.Context{History: makeTestMessages(4)},
	}
	// User messages serialize to 33 characters, assistant ones to 38.
	a := newAssembler(ctxengine.ContextConfig{MaxChars: 71})

	tests := []struct {
		name     string
		maxChars int
		wantLen  int
		wantMax  int
	}{
		{"configured default", 0, 2, 71},
		{"request override", 110, 3, 110},
		{"negative disables", -1, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := req
			r.MaxChars = tt.maxChars
			result := a.Assemble(r)
			if len(result.Messages) != tt.wantLen {
				t.Errorf("len(Messages) = %d, want %d", len(result.Messages), tt.wantLen)
			}
			if result.Budget.MaxChars != tt.wantMax {
				t.Errorf("Budget.MaxChars = %d, want %d", result.Budget.MaxChars, tt.wantMax)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestContextAssembler_Assemble_Idempotent(t *testing.T) {
	t.Parallel()

	req := ctxengine.AssemblyRequest{
		Profile: profile(
			static("main", "Hello {{user}}"),
			preset.NewMarker(preset.IDScenario, "Scenario"),
			history(),
			injected("r", message.RoleSystem, "R", preset.PositionDepth, 2),
			injected("t", message.RoleUser, "T", preset.PositionTail, 0),
		),
		Context: ctxengine.Context{
			Character: ctxengine.Character{Scenario: "rain"},
			History:   makeTestMessages(5),
		},
		MaxChars: 150,
	}
	a := newAssembler(ctxengine.ContextConfig{})

	first := a.Assemble(req)
	second := a.Assemble(req)
	if !slices.Equal(first.Messages, second.Messages) {
		t.Errorf("assembly not idempotent:\n%v\n%v", first.Messages, second.Messages)
	}
	if first.Budget != second.Budget {
		t.Errorf("budget differs: %+v vs %+v", first.Budget, second.Budget)
	}
}

func TestContextAssembler_Assemble_SeededRandomIsDeterministic(t *testing.T) {
	t.Parallel()

	req := ctxengine.AssemblyRequest{
		Profile: profile(static("main", "{{random:a,b,c,d,e,f,g,h}}")),
	}

	run := func() string {
		a := newAssembler(ctxengine.ContextConfig{Rand: rand.New(rand.NewPCG(1, 2))})
		return a.Assemble(req).Messages[0].Content
	}
	if x, y := run(), run(); x != y {
		t.Errorf("seeded runs differ: %q vs %q", x, y)
	}
}

func TestContextAssembler_Assemble_HistoryExactlyOnce(t *testing.T) {
	t.Parallel()

	hist := makeTestMessages(3)

	tests := []struct {
		name    string
		segs    []preset.Segment
		wantHis int
	}{
		{"with marker", []preset.Segment{static("main", "M"), history()}, 3},
		{"duplicate marker collapses", []preset.Segment{history(), history()}, 3},
		{"without marker", []preset.Segment{static("main", "M")}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := ctxengine.AssemblyRequest{
				Profile: profile(tt.segs...),
				Context: ctxengine.Context{History: hist},
			}
			result := newAssembler(ctxengine.ContextConfig{}).Assemble(req)

			found := 0
			for _, h := range hist {
				found += countMessage(result.Messages, h)
			}
			if found != tt.wantHis {
				t.Errorf("history messages found %d times, want %d", found, tt.wantHis)
			}
		})
	}
}

func TestContextAssembler_Assemble_DepthZeroEqualsTail(t *testing.T) {
	t.Parallel()

	ctx := ctxengine.Context{History: makeTestMessages(3)}
	a := newAssembler(ctxengine.ContextConfig{})

	depth := a.Assemble(ctxengine.AssemblyRequest{
		Profile: profile(static("main", "M"), history(),
			injected("x", message.RoleUser, "X", preset.PositionDepth, 0)),
		Context: ctx,
	})
	tail := a.Assemble(ctxengine.AssemblyRequest{
		Profile: profile(static("main", "M"), history(),
			injected("x", message.RoleUser, "X", preset.PositionTail, 0)),
		Context: ctx,
	})
	if !slices.Equal(depth.Messages, tail.Messages) {
		t.Errorf("depth 0 = %v\ntail = %v", depth.Messages, tail.Messages)
	}
}

func TestContextAssembler_Assemble_EmptyHeadOmitted(t *testing.T) {
	t.Parallel()

	req := ctxengine.AssemblyRequest{
		Profile: profile(
			static("main", ""),
			preset.NewMarker(preset.IDCharPersonality, "Personality"),
			history(),
		),
		Context: ctxengine.Context{History: []message.Message{message.User("hi")}},
	}

	result := newAssembler(ctxengine.ContextConfig{}).Assemble(req)
	want := []message.Message{message.User("hi")}
	if !slices.Equal(result.Messages, want) {
		t.Errorf("Messages = %v, want %v", result.Messages, want)
	}
}

func TestContextAssembler_Assemble_EmptyInput(t *testing.T) {
	t.Parallel()

	result := newAssembler(ctxengine.ContextConfig{MaxChars: 10}).Assemble(ctxengine.AssemblyRequest{})
	if result.Messages == nil || len(result.Messages) != 0 {
		t.Errorf("Messages = %#v, want empty non-nil slice", result.Messages)
	}
}

func TestContextAssembler_Assemble_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	hist := makeTestMessages(4)
	snapshot := slices.Clone(hist)
	req := ctxengine.AssemblyRequest{
		Profile: profile(static("main", "M"), history(),
			injected("r", message.RoleSystem, "R", preset.PositionDepth, 1)),
		Context:  ctxengine.Context{History: hist},
		MaxChars: 60,
	}

	newAssembler(ctxengine.ContextConfig{}).Assemble(req)

	if !slices.Equal(hist, snapshot) {
		t.Errorf("history mutated: %v", hist)
	}
}

func TestContextAssembler_Assemble_DefaultPreset(t *testing.T) {
	t.Parallel()

	req := ctxengine.AssemblyRequest{
		Profile: preset.Default().Profile(),
		Context: ctxengine.Context{
			Character: ctxengine.Character{Name: "Bob", Personality: "brave"},
			WorldInfo: ctxengine.WorldInfo{After: "Dragons exist."},
			History:   []message.Message{message.User("Hello")},
		},
	}

	result := newAssembler(ctxengine.ContextConfig{}).Assemble(req)

	want := []message.Message{
		message.System("You are a helpful AI assistant. Follow the user's instructions carefully." +
			"\n\n[Bob's personality: brave]" +
			"\n\nDragons exist."),
		message.User("Hello"),
	}
	if !slices.Equal(result.Messages, want) {
		t.Errorf("Messages = %v\nwant %v", result.Messages, want)
	}
}

func TestContextAssembler_Assemble_WorldInfoBeforeJoinsHead(t *testing.T) {
	t.Parallel()

	hist := []message.Message{message.User("hi")}
	segs := []preset.Segment{
		static(preset.IDMain, "Be helpful."),
		preset.NewMarker(preset.IDWorldInfoBefore, "World Info (before)"),
		history(),
	}

	tests := []struct {
		name      string
		worldInfo ctxengine.WorldInfo
		want      []message.Message
	}{
		{
			name: "without world info",
			want: []message.Message{message.System("Be helpful."), message.User("hi")},
		},
		{
			name:      "world info before follows main",
			worldInfo: ctxengine.WorldInfo{Before: "Rule: no violence"},
			want:      []message.Message{message.System("Be helpful.\n\nRule: no violence"), message.User("hi")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := newAssembler(ctxengine.ContextConfig{}).Assemble(ctxengine.AssemblyRequest{
				Profile: profile(segs...),
				Context: ctxengine.Context{WorldInfo: tt.worldInfo, History: hist},
			})
			if !slices.Equal(result.Messages, tt.want) {
				t.Errorf("Messages = %q, want %q", result.Messages, tt.want)
			}
		})
	}
}

func TestContextAssembler_Assemble_WhitespaceSegmentKept(t *testing.T) {
	t.Parallel()

	result := newAssembler(ctxengine.ContextConfig{}).Assemble(ctxengine.AssemblyRequest{
		Profile: profile(static("main", " "), history()),
		Context: ctxengine.Context{History: []message.Message{message.User("hi")}},
	})

	want := []message.Message{message.System(" "), message.User("hi")}
	if !slices.Equal(result.Messages, want) {
		t.Errorf("Messages = %q, want %q", result.Messages, want)
	}
}

// A depth insertion deeper than the list lands before the head message, so
// the head message is no longer the anchor and truncation may drop it.
func TestContextAssembler_Assemble_ClampedDepthDisplacesAnchor(t *testing.T) {
	t.Parallel()

	req := ctxengine.AssemblyRequest{
		Profile: profile(
			static("main", "ANCHOR"),
			history(),
			injected("note", message.RoleSystem, "NOTE", preset.PositionDepth, 10),
		),
		Context:  ctxengine.Context{History: []message.Message{message.User("12345678")}},
		MaxChars: 5,
	}

	result := newAssembler(ctxengine.ContextConfig{}).Assemble(req)

	want := []message.Message{message.User("12345678")}
	if !slices.Equal(result.Messages, want) {
		t.Errorf("Messages = %v, want %v", result.Messages, want)
	}
	if result.Budget.AnchorForced || result.Budget.Dropped != 2 {
		t.Errorf("Budget = %+v, want 2 dropped and no forced anchor", result.Budget)
	}
}

func countMessage(msgs []message.Message, m message.Message) int {
	n := 0
	for _, v := range msgs {
		if v == m {
			n++
		}
	}
	return n
}
