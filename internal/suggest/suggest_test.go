package suggest

import "testing"

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "raw JSON untouched",
			input: `[{"category":"Services","keywords":["boda"]}]`,
			want:  `[{"category":"Services","keywords":["boda"]}]`,
		},
		{
			name:  "json code fence",
			input: "```json\n[{\"category\":\"Services\",\"keywords\":[\"boda\"]}]\n```",
			want:  `[{"category":"Services","keywords":["boda"]}]`,
		},
		{
			name:  "bare code fence",
			input: "```\n[1,2]\n```",
			want:  "[1,2]",
		},
		{
			name:  "leading prose before the array",
			input: "Here are the rules:\n[1,2]",
			want:  "[1,2]",
		},
		{
			name:  "surrounding whitespace",
			input: "  \n[1,2]\n  ",
			want:  "[1,2]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.input); got != tt.want {
				t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
