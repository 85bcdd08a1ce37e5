package domain

import (
	"time"

	"golang.org/x/text/language"
)

// MediaKind classifies the attachment carried by a source message.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Media references an attachment; Ref is opaque to everything but the fetcher that produced it.
type Media struct {
	Kind MediaKind
	Ref  string
}

// SourceMessage is a single post pulled from a source channel. It is never mutated after fetch.
type SourceMessage struct {
	ID       string
	Channel  string
	Strategy string
	Text     string
	Media    Media
	PostedAt time.Time
}

// HasVisualMedia reports whether the message carries a photo or a video.
func (m SourceMessage) HasVisualMedia() bool {
	return m.Media.Kind == MediaPhoto || m.Media.Kind == MediaVideo
}

// Key identifies a message across channels.
func (m SourceMessage) Key() string {
	return m.Channel + "/" + m.ID
}

// Task names the kind of generation requested from the text service.
type Task string

const (
	TaskTranslate Task = "translate"
	TaskRewrite   Task = "rewrite"
	TaskThread    Task = "thread"
	TaskSummary   Task = "summary"
)

// TransformRequest is built per call and discarded afterwards.
type TransformRequest struct {
	Task        Task
	Language    language.Tag
	Text        string
	RetryBudget int
}

// Validation records which checks the accepted output passed.
type Validation struct {
	LanguageOK  bool
	LengthOK    bool
	BlacklistOK bool
	HashtagsOK  bool
}

// Passed is true when every check succeeded.
func (v Validation) Passed() bool {
	return v.LanguageOK && v.LengthOK && v.BlacklistOK && v.HashtagsOK
}

// TransformResult carries validated output of the text service.
type TransformResult struct {
	Text       string
	Segments   []string
	Validation Validation
	Attempts   int
	Credential string
}

// TargetKind selects the destination adapter.
type TargetKind string

const (
	TargetTelegram TargetKind = "telegram"
	TargetFacebook TargetKind = "facebook"
)

// PublishMode is live publication or a draft staged for review.
type PublishMode string

const (
	ModeLive  PublishMode = "live"
	ModeDraft PublishMode = "draft"
)

// Format selects which rendition of the content a target receives.
type Format string

const (
	FormatPost   Format = "post"
	FormatThread Format = "thread"
)

// PublishTarget is static configuration describing one destination.
type PublishTarget struct {
	Name        string
	Kind        TargetKind
	Mode        PublishMode
	AttachMedia bool
	Format      Format
}

// Post is the payload handed to a destination adapter for one attempt.
type Post struct {
	Text      string
	MediaPath string
	MediaKind MediaKind
	Mode      PublishMode
}

// PublishResult reports the outcome for one target.
type PublishResult struct {
	Target    string
	OK        bool
	Reference string
	Attempts  int
	TextOnly  bool
	// Partial is set when the target accepted the first message but not the rest; Err holds the cause.
	Partial bool
	Err     error
}

// PublishedRecord is kept in the optional history store to avoid reposting.
type PublishedRecord struct {
	MessageKey  string
	Channel     string
	Target      string
	Reference   string
	PublishedAt time.Time
}
