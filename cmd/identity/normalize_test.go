package identity

import "testing"

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"+1 (555) 010-9999":  "15550109999",
		"+15550109999":       "15550109999",
		"15550109999":        "15550109999",
		" 555.010.9999 ":     "5550109999",
		"55+5":               "555",
		"++1":                "1",
		"+":                  "",
		"\u0661\u0662\u0663": "",
		"abc":                "",
		"":                   "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q)=%q want %q", in, got, want)
		}
	}
}

func TestNormPhonePtr(t *testing.T) {
	t.Parallel()

	plus := "+"
	if got := normPhonePtr(&plus); got != nil {
		t.Fatalf("normPhonePtr(%q)=%q want nil", plus, *got)
	}
	if got := normPhonePtr(nil); got != nil {
		t.Fatalf("normPhonePtr(nil)=%q want nil", *got)
	}
	phone := "+1 555 010 9999"
	if got := normPhonePtr(&phone); got == nil || *got != "15550109999" {
		t.Fatalf("normPhonePtr(%q)=%v", phone, got)
	}
}

func TestNormalizeEmailAndUsername(t *testing.T) {
	t.Parallel()

	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("NormalizeEmail=%q", got)
	}
	if got := NormalizeUsername(" NaViD"); got != "navid" {
		t.Fatalf("NormalizeUsername=%q", got)
	}
}
