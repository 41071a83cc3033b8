package preprocess

import "testing"

func TestProcess(t *testing.T) {
	p := NewPreprocessor()
	tests := []struct {
		in, want string
	}{
		{"I have 3 cats.", "I have three cats."},
		{"It costs $5.50 today.", "It costs five dollars and fifty cents today."},
		{"Only $1!", "Only one dollar!"},
		{"Meet at 7:05 pm.", "Meet at seven oh five p m."},
		{"Meet at 9:00.", "Meet at nine o'clock."},
		{"The 21st day.", "The twenty first day."},
		{"Pi is 3.14.", "Pi is three point one four."},
		{"Up 50%.", "Up fifty percent."},
		{"Population 1,234 people", "Population one thousand two hundred thirty four people"},
		{"see https://example.com now", "see now"},
		{"mail me@example.com today", "mail today"},
		{"<b>bold</b> move", "bold move"},
		{"Line one\nline two", "Line one line two"},
		{"“Hi,” she said", "\"Hi,\" she said"},
		{"wait — what", "wait, what"},
		{"so…", "so..."},
		{"  spaced   out  ", "spaced out"},
		{"The 1000000000000000th visitor paid $2000000000000000.", "The one quadrillionth visitor paid two quadrillion dollars."},
		{"About 3000000000000000.5 grams", "About three quadrillion point five grams"},
		{"Pay $99999999999999999999 now", "Pay nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine dollars now"},
		{"The 12345678901234567890th try", "The one two three four five six seven eight nine zero one two three four five six seven eight nine zero try"},
	}
	for _, tt := range tests {
		if got := p.Process(tt.in); got != tt.want {
			t.Fatalf("Process(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNumberToWords(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "zero"},
		{7, "seven"},
		{40, "forty"},
		{115, "one hundred fifteen"},
		{1000000, "one million"},
		{2001, "two thousand one"},
		{-12, "minus twelve"},
		{2_000_000_000_000_000, "two quadrillion"},
		{9_000_000_000_000_000_001, "nine quintillion one"},
		{-9223372036854775808, "minus nine quintillion two hundred twenty three quadrillion three hundred seventy two trillion thirty six billion eight hundred fifty four million seven hundred seventy five thousand eight hundred eight"},
	}
	for _, tt := range tests {
		if got := NumberToWords(tt.n); got != tt.want {
			t.Fatalf("NumberToWords(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestOrdinalToWords(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{1, "first"},
		{3, "third"},
		{12, "twelfth"},
		{40, "fortieth"},
		{99, "ninety ninth"},
		{100, "one hundredth"},
		{101, "one hundred first"},
		{1_000_000_000_000_000, "one quadrillionth"},
	}
	for _, tt := range tests {
		if got := OrdinalToWords(tt.n); got != tt.want {
			t.Fatalf("OrdinalToWords(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
