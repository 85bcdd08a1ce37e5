package usecase

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/textcheck"
)

// taskSpec is the fixed template and budget of one task type.
type taskSpec struct {
	system      string
	prompt      string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	attempts    int
	retryStep   time.Duration
	rejectDelay time.Duration
	minInput    int
	minOutput   int
	minRatio    float64
	hashtags    bool
	segmented   bool
}

const defaultMinInput = 50

var taskSpecs = map[domain.Task]taskSpec{
	domain.TaskTranslate: {
		system:      "You are a professional translator. Translate any text into clear, natural %[1]s.",
		prompt:      "Translate this text into %[1]s:\n\n%[2]s\n\n%[1]s translation only, without comments or notes:",
		temperature: 0.3,
		maxTokens:   2000,
		timeout:     45 * time.Second,
		attempts:    2,
		retryStep:   3 * time.Second,
		rejectDelay: 2 * time.Second,
		minInput:    defaultMinInput,
		minOutput:   21,
		minRatio:    0.5,
	},
	domain.TaskRewrite: {
		system: "You are a content marketer writing engaging social posts. Write only in %[1]s, in a natural and professional voice.",
		prompt: "Rewrite this content as an engaging post for Facebook and Instagram in %[1]s.\n\n" +
			"Source:\n%[2]s\n\n" +
			"Requirements:\n" +
			"1. A strong headline with a fitting emoji\n" +
			"2. 10 to 15 lines of detailed body text\n" +
			"3. Explain the benefits and why the reader should care\n" +
			"4. End with a clear call to interact\n" +
			"5. 6 to 10 hashtags, mixing %[1]s and English\n\n" +
			"Avoid other languages, short answers and filler openings.\n\nThe post:",
		temperature: 0.8,
		maxTokens:   2000,
		timeout:     60 * time.Second,
		attempts:    3,
		retryStep:   5 * time.Second,
		rejectDelay: 3 * time.Second,
		minInput:    defaultMinInput,
		minOutput:   301,
		minRatio:    0.6,
		hashtags:    true,
	},
	domain.TaskThread: {
		system: "You are a social media strategist. Write entirely in %[1]s. " +
			"If the input is in another language, translate it first.",
		prompt: "Create a %[1]s thread of 6 to 10 posts from this content.\n\n" +
			"Source:\n%[2]s\n\n" +
			"Requirements:\n" +
			"1. Every post is under 280 characters\n" +
			"2. The first post is a hook with an emoji\n" +
			"3. One idea per body post\n" +
			"4. The last post has a call to action and 2 or 3 hashtags\n" +
			"5. Format each post exactly as \"SEGMENT N: text\" on its own line\n\n" +
			"Use no characters from any other script.\n\nThe thread:",
		temperature: 0.7,
		maxTokens:   2000,
		timeout:     60 * time.Second,
		attempts:    3,
		retryStep:   5 * time.Second,
		rejectDelay: 4 * time.Second,
		minInput:    defaultMinInput,
		segmented:   true,
	},
	domain.TaskSummary: {
		system: "You summarize news for a channel audience in %[1]s.",
		prompt: "Summarize the following text in %[1]s, translating it if needed.\n" +
			"Write a short headline with a fitting emoji, then a 3 to 5 line summary in a clear, direct style.\n\n" +
			"Text:\n%[2]s",
		temperature: 0.4,
		maxTokens:   1000,
		timeout:     30 * time.Second,
		attempts:    3,
		retryStep:   2 * time.Second,
		rejectDelay: 2 * time.Second,
		minInput:    defaultMinInput,
		minOutput:   50,
		minRatio:    0.5,
	},
}

// languageName renders a tag for prompts, e.g. "Arabic".
func languageName(tag language.Tag) string {
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return "English"
}

func (s taskSpec) render(tag language.Tag, text string) (system, prompt string) {
	name := languageName(tag)
	return fmt.Sprintf(s.system, name), fmt.Sprintf(s.prompt, name, strings.TrimSpace(text))
}

// rules derives the validation rules for the target language.
func (s taskSpec) rules(tag language.Tag) textcheck.Rules {
	r := textcheck.Rules{
		Language:       tag,
		MinLength:      s.minOutput,
		RequireHashtag: s.hashtags,
	}
	if script := textcheck.ScriptFor(tag); script != nil {
		r.Script = script
		r.MinRatio = s.minRatio
	} else if tag != language.Und {
		r.Forbidden = textcheck.Arabic
	}
	return r
}
