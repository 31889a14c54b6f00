package localize

import (
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func TestMatch_FallbackToEnglish(t *testing.T) {
	cases := []struct {
		in   string
		want language.Tag
	}{
		{"mr", language.Marathi},
		{"mr-IN", language.Marathi},
		{"hi", language.Hindi},
		{"en-US", language.English},
		{"fr", language.English},
		{"", language.English},
		{"!!not-a-tag!!", language.English},
	}
	for _, tc := range cases {
		if got := Match(tc.in); got != tc.want {
			t.Errorf("Match(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestT_EveryKeyInEveryLanguage(t *testing.T) {
	keys := []string{
		MsgWelcome, MsgClarifyName, MsgAskVillage, MsgClarifyVillage,
		MsgCompleted, MsgVillageNotFound, MsgOutOfBoundary, MsgGeocodeError,
		MsgTechnicalIssue, MsgEscalation, MsgAnswerNotFound,
	}
	for tag, msgs := range catalog {
		for _, k := range keys {
			if msgs[k] == "" {
				t.Errorf("language %v missing key %q", tag, k)
			}
		}
	}
}

func TestTf_Interpolation(t *testing.T) {
	got := Tf("en", MsgCompleted, "Ramesh Patil", "Saswad", "Purandar")
	if !strings.Contains(got, "Ramesh Patil") || !strings.Contains(got, "Saswad") {
		t.Errorf("completion summary missing confirmed fields: %q", got)
	}

	got = Tf("mr", MsgOutOfBoundary, "Mumbai", "Pune")
	if !strings.Contains(got, "Mumbai") {
		t.Errorf("boundary message missing village: %q", got)
	}
}

func TestT_UnknownKeyDegradesToApology(t *testing.T) {
	if got := T("en", "no_such_key"); got != T("en", MsgTechnicalIssue) {
		t.Errorf("unknown key returned %q", got)
	}
}
