package sanitize

import "testing"

func TestTextStripsMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Alice", want: "Alice"},
		{name: "script_tag", in: "<script>alert(1)</script>Bob", want: "Bob"},
		{name: "bold_tag", in: "<b>Carl</b>", want: "Carl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
