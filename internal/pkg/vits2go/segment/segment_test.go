package segment

import (
	"slices"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"two sentences", "Hello world. How are you?", []string{"Hello world.", "How are you?"}},
		{"mixed terminals", "Stop! Really? Yes.", []string{"Stop!", "Really?", "Yes."}},
		{"no terminal", "just words", []string{"just words"}},
		{"terminal without space", "3.14 is pi.Done", []string{"3.14 is pi.Done"}},
		{"whitespace run consumed", "One.   \t Two.", []string{"One.", "Two."}},
		{"blank line", "first line\n\nsecond line", []string{"first line", "second line"}},
		{"single newline", "wrapped\ntext", []string{"wrapped\ntext"}},
		{"trailing space", "End.  ", []string{"End."}},
		{"leading space", "  Start. Next", []string{"Start.", "Next"}},
		{"empty", "", nil},
		{"only space", " \n\t ", nil},
		{"unicode", "Grüße! Ça va?", []string{"Grüße!", "Ça va?"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sentences(tt.text); !slices.Equal(got, tt.want) {
				t.Fatalf("Sentences(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSplitCount(t *testing.T) {
	text := "a. b! c? d. e"
	n := 0
	for range Split(text) {
		n++
	}
	if n != 5 {
		t.Fatalf("got %d units, want 5", n)
	}
}

func TestSplitRestartableAndStoppable(t *testing.T) {
	seq := Split("One. Two. Three.")
	var first []string
	for s := range seq {
		first = append(first, s)
		if len(first) == 2 {
			break
		}
	}
	if !slices.Equal(first, []string{"One.", "Two."}) {
		t.Fatalf("early stop got %q", first)
	}
	var again []string
	for s := range seq {
		again = append(again, s)
	}
	if len(again) != 3 {
		t.Fatalf("second walk got %q, want 3 units", again)
	}
}
