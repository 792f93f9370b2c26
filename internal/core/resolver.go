package core

import "github.com/pr-poehali-dev/video-viewing-app/internal/domain"

// MediaResolver turns a user-supplied URL into playable video metadata.
// The session core never fetches metadata itself.
type MediaResolver interface {
	Resolve(url string) (*domain.VideoInfo, error)
}
