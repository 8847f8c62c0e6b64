package repositories

import (
	"context"

	"github.com/satriahrh/lextale/domain"
)

// Presenter is the participant surface: it renders screens and plays audio.
// Playback start and user input come back as domain.ParticipantEvent values.
type Presenter interface {
	Present(ctx context.Context, screen domain.Screen) error
	Play(ctx context.Context, req domain.PlaybackRequest) error
	Preload(ctx context.Context, manifest domain.PreloadManifest) error
	End(ctx context.Context, status string) error
}
