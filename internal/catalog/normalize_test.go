package catalog

import "testing"

func TestNormalizeHeader(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Product Display Name", "Product_Display_Name"},
		{"padded", "  Service Plan Id  ", "Service_Plan_Id"},
		{"collapsed whitespace", "Service  Plans   Included Friendly Names", "Service_Plans_Included_Friendly_Names"},
		{"punctuation stripped", "Service Plans Included (Friendly Names)", "Service_Plans_Included_Friendly_Names"},
		{"byte order mark stripped", "\uFEFFProduct Display Name", "Product_Display_Name"},
		{"underscored vendor form", "String_Id", "String_Id"},
		{"empty", "   ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if actual := NormalizeHeader(tc.input); actual != tc.expected {
				t.Fatalf("expected %q got %q", tc.expected, actual)
			}
		})
	}
}

func TestCanonicalGUID(t *testing.T) {
	t.Run("lowercases well-formed guids", func(t *testing.T) {
		if got := canonicalGUID("6FD2C87F-B296-42F0-B197-1E91E994B900"); got != "6fd2c87f-b296-42f0-b197-1e91e994b900" {
			t.Fatalf("unexpected canonical form %q", got)
		}
	})

	t.Run("keeps unparseable values", func(t *testing.T) {
		if got := canonicalGUID(" not-a-guid "); got != "not-a-guid" {
			t.Fatalf("expected trimmed original, got %q", got)
		}
	})

	t.Run("empty stays empty", func(t *testing.T) {
		if got := canonicalGUID("  "); got != "" {
			t.Fatalf("expected empty, got %q", got)
		}
	})
}
