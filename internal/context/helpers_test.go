package ctxengine_test

import (
	"fmt"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"
)

// mockEstimator implements ctxengine.TokenEstimator for tests.
type mockEstimator struct{}

func (m *mockEstimator) Estimate(text string) int { return len(text) }

// makeTestMessages creates n alternating user/assistant messages.
func makeTestMessages(n int) []message.Message {
	msgs := make([]message.Message, n)
	for i := range msgs {
		role := message.RoleUser
		if i%2 == 1 {
			role = message.RoleAssistant
		}
		msgs[i] = message.Message{Role: role, Content: fmt.Sprintf("msg-%d", i)}
	}
	return msgs
}

func static(id, content string) preset.Segment {
	return preset.NewStatic(id, id, message.RoleSystem, content)
}

func injected(id string, role message.Role, content string, pos preset.Position, depth int) preset.Segment {
	s := preset.NewStatic(id, id, role, content)
	s.Injection = &preset.Injection{Position: pos, Depth: depth}
	return s
}

func history() preset.Segment {
	return preset.NewMarker(preset.IDChatHistory, "Chat History")
}

func profile(segs ...preset.Segment) preset.Profile {
	return preset.NewProfile(segs, nil, preset.Formats{})
}
