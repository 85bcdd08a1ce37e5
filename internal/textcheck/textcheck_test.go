package textcheck

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/language"

	"ChannelRelay/internal/domain"
)

func TestScriptRatio(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		want float64
	}{
		"all arabic":  {in: "مرحبا بالعالم", want: 1},
		"all latin":   {in: "hello world", want: 0},
		"half":        {in: "ab سل", want: 0.5},
		"no letters":  {in: "123 !!", want: 0},
		"digits skip": {in: "سل 2025", want: 1},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := ScriptRatio(tc.in, Arabic); got != tc.want {
				t.Fatalf("ScriptRatio(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	cases := map[string]Language{
		"مرحبا بكم في القناة":  LangArabic,
		"Привет, как дела?":    LangRussian,
		"Hello from the feed":  LangOther,
		"🚀 2025":               LangUnknown,
		"Привет hello мир там": LangRussian,
	}
	for in, want := range cases {
		if got := DetectLanguage(in); got != want {
			t.Fatalf("DetectLanguage(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLanguageTag(t *testing.T) {
	t.Parallel()

	if LangArabic.Tag() != language.Arabic {
		t.Fatalf("unexpected tag for arabic: %v", LangArabic.Tag())
	}
	if ScriptFor(language.Arabic) != Arabic {
		t.Fatalf("expected arabic block for ar")
	}
	if ScriptFor(language.English) != nil {
		t.Fatalf("expected no block for en")
	}
}

func TestValidatorCheck(t *testing.T) {
	t.Parallel()

	v := NewValidator(map[string][]string{"en": {"Great question"}})
	arabicPost := strings.Repeat("هذا منشور تقني مفيد ", 20) + "\n#تقنية #AI"

	cases := map[string]struct {
		text    string
		rules   Rules
		wantErr bool
		check   func(t *testing.T, flags domain.Validation)
	}{
		"accepted arabic post": {
			text:  arabicPost,
			rules: Rules{Language: language.Arabic, Script: Arabic, MinRatio: 0.6, MinLength: 300, RequireHashtag: true},
		},
		"wrong language": {
			text:    strings.Repeat("plain english text ", 30),
			rules:   Rules{Language: language.Arabic, Script: Arabic, MinRatio: 0.5},
			wantErr: true,
			check: func(t *testing.T, flags domain.Validation) {
				if flags.LanguageOK {
					t.Fatalf("expected language check to fail")
				}
			},
		},
		"too short": {
			text:    "قصير",
			rules:   Rules{Language: language.Arabic, Script: Arabic, MinRatio: 0.5, MinLength: 300},
			wantErr: true,
			check: func(t *testing.T, flags domain.Validation) {
				if flags.LengthOK || !flags.LanguageOK {
					t.Fatalf("unexpected flags: %+v", flags)
				}
			},
		},
		"filler opening": {
			text:    "Sure! Here is the translation you asked for.",
			rules:   Rules{Language: language.English, MinLength: 10},
			wantErr: true,
			check: func(t *testing.T, flags domain.Validation) {
				if flags.BlacklistOK {
					t.Fatalf("expected blacklist check to fail")
				}
			},
		},
		"extra phrase": {
			text:    "Great question, the answer follows.",
			rules:   Rules{Language: language.English},
			wantErr: true,
		},
		"prefix inside word": {
			text:  "Surely the release ships today.",
			rules: Rules{Language: language.English},
		},
		"forbidden script": {
			text:    "English with one word عربي inside it",
			rules:   Rules{Language: language.English, Forbidden: Arabic, MinLength: 20},
			wantErr: true,
		},
		"missing hashtags": {
			text:    arabicPost[:strings.Index(arabicPost, "\n")],
			rules:   Rules{Language: language.Arabic, RequireHashtag: true},
			wantErr: true,
			check: func(t *testing.T, flags domain.Validation) {
				if flags.HashtagsOK {
					t.Fatalf("expected hashtag check to fail")
				}
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			flags, err := v.Check(tc.text, tc.rules)
			if tc.wantErr {
				var rej *Rejection
				if !errors.As(err, &rej) {
					t.Fatalf("expected *Rejection, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.wantErr && !flags.Passed() {
				t.Fatalf("flags not passed: %+v", flags)
			}
			if tc.check != nil {
				tc.check(t, flags)
			}
		})
	}
}

func TestHasHashtag(t *testing.T) {
	t.Parallel()

	if !HasHashtag("news #تقنية") {
		t.Fatalf("expected arabic hashtag to match")
	}
	if HasHashtag("issue#12 and # alone") {
		t.Fatalf("expected no hashtag match")
	}
}

func TestParseSegments(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 300)
	response := strings.Join([]string{
		"Here is your thread:",
		"SEGMENT 1: 🚀 The first segment opens the thread.",
		"SEGMENT 2: Second segment has a useful idea.",
		"SEGMENT 3: " + long,
		"**TWEET 4:** Fourth segment uses the alias marker in bold.",
		"SEGMENT 5: " + long,
		"SEGMENT 6: short",
		"SEGMENT 7: هذا نص عربي لا يجب أن يمر",
	}, "\n")

	t.Run("truncate", func(t *testing.T) {
		got, stats, err := ParseSegments(response, DefaultSegmentRules())
		if err != nil {
			t.Fatalf("ParseSegments error: %v", err)
		}
		if len(got) != 5 {
			t.Fatalf("expected 5 segments, got %d: %q", len(got), got)
		}
		for i, seg := range got {
			if n := utf8.RuneCountInString(seg); n > 280 {
				t.Fatalf("segment %d exceeds cap: %d", i, n)
			}
		}
		if !strings.HasSuffix(got[2], Ellipsis) {
			t.Fatalf("expected truncated segment, got %q", got[2])
		}
		want := SegmentStats{Found: 7, Truncated: 2, Dropped: 2}
		if diff := cmp.Diff(want, stats); diff != "" {
			t.Fatalf("stats mismatch (-want +got):\n%s", diff)
		}
		if got[3] != "Fourth segment uses the alias marker in bold." {
			t.Fatalf("unexpected bold segment: %q", got[3])
		}
	})

	t.Run("drop", func(t *testing.T) {
		rules := DefaultSegmentRules()
		rules.Policy = OverflowDrop
		got, _, err := ParseSegments(response, rules)
		if err != nil {
			t.Fatalf("ParseSegments error: %v", err)
		}
		want := []string{
			"🚀 The first segment opens the thread.",
			"Second segment has a useful idea.",
			"Fourth segment uses the alias marker in bold.",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("segments mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("too few", func(t *testing.T) {
		_, _, err := ParseSegments("SEGMENT 1: only one usable segment here", DefaultSegmentRules())
		if err == nil {
			t.Fatalf("expected error for a single segment")
		}
	})
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	got := Truncate(strings.Repeat("ب", 10), 5)
	if utf8.RuneCountInString(got) != 5 || !strings.HasSuffix(got, Ellipsis) {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if Truncate("short", 10) != "short" {
		t.Fatalf("short text must be unchanged")
	}
}
