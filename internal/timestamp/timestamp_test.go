package timestamp

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"zero", "0:00", 0, false},
		{"minutes and seconds", "1:05", 65, false},
		{"bracketed", "[12:34]", 754, false},
		{"hours", "1:00:00", 3600, false},
		{"full", "[12:34:56]", 45296, false},
		{"unpadded fields", "0:0", 0, false},
		{"whitespace", "  [2:30] ", 150, false},
		{"lenient minutes over 59", "75:00", 4500, false},
		{"lenient seconds over 59", "1:90", 150, false},
		{"single field", "42", 0, true},
		{"four fields", "1:2:3:4", 0, true},
		{"non-numeric", "ab:cd", 0, true},
		{"negative field", "-1:30", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "[0:00]"},
		{65, "[1:05]"},
		{754, "[12:34]"},
		{3599, "[59:59]"},
		{3600, "[1:00:00]"},
		{45296, "[12:34:56]"},
		{-5, "[0:00]"},
	}

	for _, tt := range tests {
		if got := Format(tt.seconds); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	// parse(format(s)) == s must hold for all non-negative s.
	for _, s := range []int{0, 1, 59, 60, 61, 599, 3599, 3600, 3661, 45296, 359999} {
		got, err := Parse(Format(s))
		if err != nil {
			t.Fatalf("Parse(Format(%d)) returned error: %v", s, err)
		}
		if got != s {
			t.Errorf("Parse(Format(%d)) = %d", s, got)
		}
	}
}

func TestExtractAll(t *testing.T) {
	text := "[0:0], [1:5], [10:7], [12:34], [1:00:00], [12:34:56]"
	citations := ExtractAll(text)

	wantSeconds := []int{0, 65, 607, 754, 3600, 45296}
	if len(citations) != len(wantSeconds) {
		t.Fatalf("got %d citations, want %d", len(citations), len(wantSeconds))
	}
	for i, c := range citations {
		if c.Seconds != wantSeconds[i] {
			t.Errorf("citation %d: seconds = %d, want %d", i, c.Seconds, wantSeconds[i])
		}
	}

	// Order of appearance, tracked by byte offset.
	for i := 1; i < len(citations); i++ {
		if citations[i].Index <= citations[i-1].Index {
			t.Errorf("citation %d index %d not after previous %d", i, citations[i].Index, citations[i-1].Index)
		}
	}
}

func TestExtractAllRejectsLongDigitGroups(t *testing.T) {
	if got := ExtractAll("nothing at [123:456] here"); len(got) != 0 {
		t.Errorf("matched 3-digit groups: %+v", got)
	}
	if got := ExtractAll("[123:45]"); len(got) != 0 {
		t.Errorf("matched [123:45]: %+v", got)
	}
}

func TestExtractAllInProse(t *testing.T) {
	text := "The demo starts at [4:00] and continues until around [6:30]."
	citations := ExtractAll(text)
	if len(citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(citations))
	}
	if citations[0].Original != "[4:00]" || citations[0].Seconds != 240 {
		t.Errorf("first citation = %+v", citations[0])
	}
	if citations[1].Original != "[6:30]" || citations[1].Seconds != 390 {
		t.Errorf("second citation = %+v", citations[1])
	}
}
