package domain

// Platform tags where a video was resolved from.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTwitch  Platform = "twitch"
	PlatformDirect  Platform = "direct"
	PlatformUnknown Platform = "unknown"
)

// VideoInfo is produced by the media resolver and passed through untouched.
// The session core treats it as an opaque immutable value.
type VideoInfo struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Duration    string   `json:"duration"`
	Thumbnail   string   `json:"thumbnail"`
	Platform    Platform `json:"platform"`
	EmbedURL    string   `json:"embed_url"`
	OriginalURL string   `json:"original_url"`
}
