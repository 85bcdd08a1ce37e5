package usecase

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"

	"ChannelRelay/internal/textcheck"
)

const threadCap = 280

// fallbackClosers are appended to raw source text when the post could not be generated.
var fallbackClosers = map[string]string{
	"ar": "💡 تابعونا للمزيد من المحتوى التقني!\n\n#تقنية #تكنولوجيا #ابتكار #ذكاء_اصطناعي #AI #Tech #Innovation",
	"en": "💡 Follow for more tech updates!\n\n#Tech #AI #Innovation #TechNews",
}

// cannedThread is the last resort when neither generation nor translation worked.
var cannedThread = []string{
	"🧵 Breaking tech news!",
	"Exciting developments are happening in the tech world today. This could reshape how we think about innovation.",
	"Major implications for the industry. Stay tuned for more details and analysis!",
	"Follow for daily tech insights! #Tech #AI #Innovation",
}

// Footer returns the UTC timestamp line appended to published posts.
func Footer(now time.Time) string {
	return "\n\n🕒 " + now.UTC().Format("2006-01-02 15:04") + " UTC"
}

func fallbackPost(text string, tag language.Tag) string {
	base, _ := tag.Base()
	closer, ok := fallbackClosers[base.String()]
	if !ok {
		closer = fallbackClosers["en"]
	}
	return "📢 " + strings.TrimSpace(text) + "\n\n" + closer
}

// translationThread wraps a plain translation in a three part thread.
func translationThread(translation string) []string {
	return []string{
		"🧵 Tech news alert!",
		textcheck.Truncate(strings.TrimSpace(translation), 270),
		"Follow for more updates! #Tech #AI #Innovation",
	}
}

// FormatThread renders segments for copy and paste, numbering each part with its length.
func FormatThread(segments []string) string {
	if len(segments) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("🧵 THREAD, post each part as a reply to the previous one\n")
	b.WriteString(strings.Repeat("=", 40))
	b.WriteString("\n\n")
	for i, seg := range segments {
		n := utf8.RuneCountInString(seg)
		mark := "✅"
		if n > threadCap {
			mark = "❌"
		}
		fmt.Fprintf(&b, "📝 %d/%d (%d chars) %s\n%s\n", i+1, len(segments), n, mark, seg)
		b.WriteString(strings.Repeat("-", 40))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
