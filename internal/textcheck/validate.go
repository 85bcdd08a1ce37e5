package textcheck

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"

	"ChannelRelay/internal/domain"
)

var hashtagExpr = regexp.MustCompile(`(^|\s)#[\p{L}\p{N}_]+`)

// defaultBlacklist lists filler openings models produce instead of content, keyed by base language.
var defaultBlacklist = map[string][]string{
	"ar": {"بالطبع", "يُرجى", "يرجى", "بكل سرور", "إليك", "كمساعد", "عذراً", "عذرا، لا أستطيع"},
	"en": {"sure", "certainly", "of course", "here is", "here's", "as an ai", "i'm sorry", "i cannot"},
	"ru": {"конечно", "вот", "как ии"},
}

// Rules describes what an accepted output must look like.
type Rules struct {
	Language       language.Tag
	Script         *unicode.RangeTable
	MinRatio       float64
	Forbidden      *unicode.RangeTable
	MinLength      int
	RequireHashtag bool
}

// Rejection explains why output failed validation.
type Rejection struct {
	Reasons []string
}

func (r *Rejection) Error() string {
	return "output rejected: " + strings.Join(r.Reasons, "; ")
}

// Validator applies Rules and a per-language blacklist of filler phrases.
type Validator struct {
	blacklist map[string][]string
}

// NewValidator merges extra phrases into the built-in blacklist.
func NewValidator(extra map[string][]string) *Validator {
	merged := make(map[string][]string, len(defaultBlacklist))
	for lang, phrases := range defaultBlacklist {
		merged[lang] = append([]string(nil), phrases...)
	}
	for lang, phrases := range extra {
		for _, p := range phrases {
			if p = strings.TrimSpace(p); p != "" {
				merged[lang] = append(merged[lang], strings.ToLower(p))
			}
		}
	}
	return &Validator{blacklist: merged}
}

// Check returns the validation flags for text and a *Rejection when any check failed.
func (v *Validator) Check(text string, rules Rules) (domain.Validation, error) {
	text = strings.TrimSpace(text)
	flags := domain.Validation{LanguageOK: true, LengthOK: true, BlacklistOK: true, HashtagsOK: true}
	var reasons []string

	if rules.Script != nil {
		if ratio := ScriptRatio(text, rules.Script); ratio <= rules.MinRatio {
			flags.LanguageOK = false
			reasons = append(reasons, fmt.Sprintf("script ratio %.2f not above %.2f", ratio, rules.MinRatio))
		}
	}
	if rules.Forbidden != nil {
		if n := CountIn(text, rules.Forbidden); n > 0 {
			flags.LanguageOK = false
			reasons = append(reasons, fmt.Sprintf("%d runes in forbidden script", n))
		}
	}

	if n := utf8.RuneCountInString(text); n < rules.MinLength || n == 0 {
		flags.LengthOK = false
		reasons = append(reasons, fmt.Sprintf("length %d below %d", n, rules.MinLength))
	}

	if phrase, ok := v.StartsWithFiller(text, rules.Language); ok {
		flags.BlacklistOK = false
		reasons = append(reasons, fmt.Sprintf("starts with filler %q", phrase))
	}

	if rules.RequireHashtag && !HasHashtag(text) {
		flags.HashtagsOK = false
		reasons = append(reasons, "no hashtags")
	}

	if len(reasons) > 0 {
		return flags, &Rejection{Reasons: reasons}
	}
	return flags, nil
}

// StartsWithFiller reports the blacklisted phrase text opens with, if any.
func (v *Validator) StartsWithFiller(text string, tag language.Tag) (string, bool) {
	base, _ := tag.Base()
	phrases := v.blacklist[base.String()]
	if len(phrases) == 0 {
		return "", false
	}

	opening := strings.ToLower(strings.TrimLeftFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	for _, phrase := range phrases {
		if !strings.HasPrefix(opening, phrase) {
			continue
		}
		rest := opening[len(phrase):]
		if rest == "" {
			return phrase, true
		}
		next, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsLetter(next) {
			return phrase, true
		}
	}
	return "", false
}

// HasHashtag reports whether text contains at least one #tag.
func HasHashtag(text string) bool {
	return hashtagExpr.MatchString(text)
}
