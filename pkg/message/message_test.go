package message

import "testing"

func TestRole_OrDefault(t *testing.T) {
	tests := []struct {
		in   Role
		want Role
	}{
		{RoleUser, RoleUser},
		{RoleAssistant, RoleAssistant},
		{RoleSystem, RoleSystem},
		{"", RoleSystem},
		{"narrator", RoleSystem},
	}
	for _, tt := range tests {
		if got := tt.in.OrDefault(); got != tt.want {
			t.Errorf("Role(%q).OrDefault() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSize(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want int
	}{
		// {"role":"user","content":"hi"}
		{"ascii", User("hi"), 30},
		// {"role":"system","content":"ANCHOR"}
		{"system", System("ANCHOR"), 36},
		// HTML characters are kept literal.
		{"html", User("<b>"), 31},
		// Non-ASCII counts code points, not bytes.
		{"unicode", User("héé"), 31},
		// A quote is escaped to two characters.
		{"escaped quote", User(`"`), 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Size(tt.msg); got != tt.want {
				t.Errorf("Size(%+v) = %d, want %d", tt.msg, got, tt.want)
			}
		})
	}
}

func TestTotalSize(t *testing.T) {
	msgs := []Message{User("hi"), User("hi")}
	if got := TotalSize(msgs); got != 60 {
		t.Errorf("TotalSize = %d, want 60", got)
	}
	if got := TotalSize(nil); got != 0 {
		t.Errorf("TotalSize(nil) = %d, want 0", got)
	}
}
