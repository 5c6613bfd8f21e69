package language

import "testing"

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"fre", "fr"},
		{"ger", "de"},
		{"english", "en"},
		{"GERMAN", "de"},
		{"xy", "xy"},
		{"xyz", ""},
		{" ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := ToISO2(tt.input); result != tt.expected {
				t.Errorf("ToISO2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "en"},
		{"english", "en"},
		{"Spanish", "es"},
		{"pt-BR", "pt"},
		{"en_US", "en"},
		{"zh-Hant-TW", "zh"},
		{"spa", "es"},
		{"eng\x00", "en"},
		{"klingon", "en"},
		{"!!", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := Normalize(tt.input); result != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("fra"); got != "French" {
		t.Fatalf("DisplayName(fra) = %q", got)
	}
	if got := DisplayName(""); got != "Unknown" {
		t.Fatalf("DisplayName(\"\") = %q", got)
	}
	if got := DisplayName("xx"); got != "XX" {
		t.Fatalf("DisplayName(xx) = %q", got)
	}
}

func TestExtractFromTags(t *testing.T) {
	tests := []struct {
		name     string
		tags     map[string]string
		expected string
	}{
		{"nil tags", nil, ""},
		{"lowercase key", map[string]string{"language": "eng"}, "eng"},
		{"uppercase key", map[string]string{"LANGUAGE": "ENG"}, "eng"},
		{"ietf key", map[string]string{"language_ietf": "en-US"}, "en-us"},
		{"null bytes stripped", map[string]string{"language": "eng\x00"}, "eng"},
		{"priority: language over LANG", map[string]string{"language": "fr", "LANG": "en"}, "fr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := ExtractFromTags(tt.tags); result != tt.expected {
				t.Errorf("ExtractFromTags(%v) = %q, want %q", tt.tags, result, tt.expected)
			}
		})
	}
}
