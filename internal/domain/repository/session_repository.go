package repository

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/session"
)

// SessionRepository stores agent sessions. State data is sealed at rest
// by the implementation; callers always see plain maps.
type SessionRepository interface {
	Create(ctx context.Context, s *session.Session) error
	Find(ctx context.Context, id string) (*session.Session, error)
	Update(ctx context.Context, s *session.Session) error
	Delete(ctx context.Context, id string) error

	// ListChildren returns sessions whose parent is parentID
	ListChildren(ctx context.Context, parentID string) ([]*session.Session, error)

	// ListExpired returns sessions whose expiry is not after now
	ListExpired(ctx context.Context, now time.Time) ([]*session.Session, error)
}
