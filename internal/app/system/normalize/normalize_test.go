package normalize

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"user@example.com", "user@example.com"},
		{"USER@EXAMPLE.COM", "user@example.com"},
		{"  User@Example.Com  ", "user@example.com"},
		{"", ""},
		{"   ", ""},
		{"Mixed.Case@Domain.ORG", "mixed.case@domain.org"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Email(tt.input)
			if got != tt.want {
				t.Errorf("Email(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Flat 4B", "Flat 4B"},
		{"  Flat 4B  ", "Flat 4B"},
		{"Ski   Trip\t2025", "Ski Trip 2025"},
		{"", ""},
		{"   ", ""},
		{"UPPERCASE NAME", "UPPERCASE NAME"}, // Name preserves case
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Name(tt.input)
			if got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestInviteCode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"AB12CD34", "AB12CD34"},
		{"ab12-cd34", "AB12CD34"},
		{"  ab 12 cd 34 ", "AB12CD34"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := InviteCode(tt.input)
			if got != tt.want {
				t.Errorf("InviteCode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
