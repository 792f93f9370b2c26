// Package resolver classifies user-supplied video URLs into playable
// metadata. It never fetches anything over the network; metadata comes from
// the URL shape alone.
package resolver

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

var (
	youtubeRe = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`)
	twitchRe  = regexp.MustCompile(`(?:twitch\.tv/)(?:videos/)(\d+)|(?:twitch\.tv/)([a-zA-Z0-9_]+)`)
	directRe  = regexp.MustCompile(`(?i)\.(mp4|webm|ogg|avi|mov|wmv|flv|mkv)(?:\?.*)?$`)
)

// Resolver implements core.MediaResolver. EmbedHost parameterizes the
// twitch player's parent domain.
type Resolver struct {
	EmbedHost string
}

func New(embedHost string) core.MediaResolver {
	if embedHost == "" {
		embedHost = "localhost"
	}
	return &Resolver{EmbedHost: embedHost}
}

func (r *Resolver) Resolve(rawURL string) (*domain.VideoInfo, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return nil, fmt.Errorf("%w: empty url", domain.ErrVideoUnresolvable)
	}
	if !strings.HasPrefix(url, "http") {
		url = "https://" + url
	}

	var info *domain.VideoInfo
	switch {
	case youtubeRe.MatchString(url):
		info = r.youtube(youtubeRe.FindStringSubmatch(url)[1], url)
	case strings.Contains(url, "twitch.tv/") && twitchRe.MatchString(url):
		m := twitchRe.FindStringSubmatch(url)
		id := m[1]
		if id == "" {
			id = m[2]
		}
		info = r.twitch(id, url)
	case directRe.MatchString(url):
		info = r.direct(url)
	default:
		info = r.webpage(url)
	}

	log.Debug().Str("module", "resolver").Str("platform", string(info.Platform)).Str("video", info.ID).Msg("url resolved")
	return info, nil
}

func (r *Resolver) youtube(videoID, original string) *domain.VideoInfo {
	return &domain.VideoInfo{
		ID:          videoID,
		Title:       "YouTube Video " + videoID,
		Duration:    "??:??",
		Thumbnail:   fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", videoID),
		Platform:    domain.PlatformYouTube,
		EmbedURL:    fmt.Sprintf("https://www.youtube.com/embed/%s?autoplay=1&controls=1", videoID),
		OriginalURL: original,
	}
}

func (r *Resolver) twitch(id, original string) *domain.VideoInfo {
	live := !strings.Contains(original, "videos/")
	info := &domain.VideoInfo{
		ID:          id,
		Platform:    domain.PlatformTwitch,
		Thumbnail:   fmt.Sprintf("https://static-cdn.jtvnw.net/previews-ttv/live_user_%s.jpg", id),
		OriginalURL: original,
	}
	if live {
		info.Title = "Live Stream: " + id
		info.Duration = "LIVE"
		info.EmbedURL = fmt.Sprintf("https://player.twitch.tv/?channel=%s&parent=%s", id, r.EmbedHost)
	} else {
		info.Title = "Twitch VOD: " + id
		info.Duration = "??:??"
		info.EmbedURL = fmt.Sprintf("https://player.twitch.tv/?video=%s&parent=%s", id, r.EmbedHost)
	}
	return info
}

func (r *Resolver) direct(url string) *domain.VideoInfo {
	name := path.Base(url)
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	return &domain.VideoInfo{
		ID:          shortID(),
		Title:       name,
		Duration:    "??:??",
		Thumbnail:   "🎬",
		Platform:    domain.PlatformDirect,
		EmbedURL:    url,
		OriginalURL: url,
	}
}

func (r *Resolver) webpage(url string) *domain.VideoInfo {
	return &domain.VideoInfo{
		ID:          shortID(),
		Title:       "Embedded web video",
		Duration:    "??:??",
		Thumbnail:   "🌐",
		Platform:    domain.PlatformUnknown,
		EmbedURL:    url,
		OriginalURL: url,
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
