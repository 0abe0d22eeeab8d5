package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lateshift-app/afterhours-server/internal/config"
	apperrors "github.com/lateshift-app/afterhours-server/internal/errors"
	"github.com/lateshift-app/afterhours-server/internal/external"
	"github.com/lateshift-app/afterhours-server/internal/geo"
	"github.com/lateshift-app/afterhours-server/internal/model"
	redisclient "github.com/lateshift-app/afterhours-server/internal/redis"
	"github.com/lateshift-app/afterhours-server/internal/repository"
)

// Candidate is what a requester sees of another participant: fuzzed
// coordinates and a coarse bucket label. Exact distance stays server-side.
type Candidate struct {
	SessionID      string  `json:"sessionId"`
	UserID         string  `json:"userId"`
	FuzzedLat      float64 `json:"fuzzedLat"`
	FuzzedLon      float64 `json:"fuzzedLon"`
	DistanceBucket int     `json:"distanceBucket"`
	DistanceLabel  string  `json:"distanceLabel"`
}

type MatcherService struct {
	sessionRepo repository.SessionRepository
	blocks      external.BlockChecker
	notifier    external.Notifier
	redis       *redisclient.Client
	limit       int
}

func NewMatcherService(
	sessionRepo repository.SessionRepository,
	blocks external.BlockChecker,
	notifier external.Notifier,
	redis *redisclient.Client,
	limit int,
) *MatcherService {
	return &MatcherService{
		sessionRepo: sessionRepo,
		blocks:      blocks,
		notifier:    notifier,
		redis:       redis,
		limit:       limit,
	}
}

// Candidates returns active, compatible, in-range, unsuppressed sessions
// for the requester, ordered by ascending coarse distance bucket with a
// random tie-break inside each bucket. A deterministic nearest-first order
// would itself leak fine-grained ranking usable for trilateration.
//
// The distance threshold decision runs on exact coordinates; only fuzzed
// values are returned.
func (s *MatcherService) Candidates(ctx context.Context, sessionID, userID string) ([]Candidate, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.UserID != userID {
		return nil, apperrors.NotOwner()
	}

	// Expiry mid-search is an expected race, not a fault.
	if !session.Active(time.Now()) {
		return []Candidate{}, nil
	}

	if !geo.ValidCoordinate(session.ExactLat, session.ExactLon) {
		return nil, apperrors.InvalidSessionState("session has no usable location")
	}

	pool, err := s.sessionRepo.ListCandidates(ctx, session.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	type ranked struct {
		candidate Candidate
		tiebreak  float64
	}

	var matches []ranked
	for i := range pool {
		other := &pool[i]

		if !mutuallyCompatible(session, other) {
			continue
		}

		distance := geo.Distance(session.ExactLat, session.ExactLon, other.ExactLat, other.ExactLon)
		threshold := min(session.MaxDistanceM, other.MaxDistanceM)
		if distance > threshold {
			continue
		}

		blocked, err := s.blocks.IsBlocked(ctx, session.UserID, other.UserID)
		if err != nil {
			// Fail closed for this candidate rather than failing the search.
			log.Warn().Err(err).
				Str("userId", session.UserID).
				Str("otherUserId", other.UserID).
				Msg("block check failed, excluding candidate")
			continue
		}
		if blocked {
			continue
		}

		bucket := geo.Bucket(distance, config.DistanceBucketMeters)
		matches = append(matches, ranked{
			candidate: Candidate{
				SessionID:      other.ID,
				UserID:         other.UserID,
				FuzzedLat:      other.FuzzedLat,
				FuzzedLon:      other.FuzzedLon,
				DistanceBucket: bucket,
				DistanceLabel:  geo.BucketLabel(bucket, config.DistanceBucketMeters),
			},
			tiebreak: rand.Float64(),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].candidate.DistanceBucket != matches[j].candidate.DistanceBucket {
			return matches[i].candidate.DistanceBucket < matches[j].candidate.DistanceBucket
		}
		return matches[i].tiebreak < matches[j].tiebreak
	})

	if len(matches) > s.limit {
		matches = matches[:s.limit]
	}

	candidates := make([]Candidate, len(matches))
	for i, m := range matches {
		candidates[i] = m.candidate
	}

	s.notifyNewCandidates(ctx, session, candidates)

	log.Debug().
		Str("sessionId", sessionID).
		Int("poolSize", len(pool)).
		Int("matched", len(candidates)).
		Msg("candidate search completed")

	return candidates, nil
}

// notifyNewCandidates pushes a new_candidate_found notice for candidates the
// session has not surfaced before. First-seen candidate session ids are
// tracked in a redis set per requesting session so the notice fires at most
// once per pairing; a redis failure skips the notice, never the search.
func (s *MatcherService) notifyNewCandidates(ctx context.Context, session *model.Session, candidates []Candidate) {
	if len(candidates) == 0 {
		return
	}

	key := redisclient.CandidateNoticeKey(session.ID)
	fresh := 0
	for _, c := range candidates {
		added, err := s.redis.SAdd(ctx, key, c.SessionID).Result()
		if err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("candidate notice tracking unavailable")
			return
		}
		if added > 0 {
			fresh++
		}
	}
	if fresh == 0 {
		return
	}
	s.redis.Expire(ctx, key, config.CandidateNoticeTTL)

	s.notifier.Notify(ctx, session.UserID, external.EventNewCandidateFound, map[string]any{
		"sessionId":     session.ID,
		"newCandidates": fresh,
	})
}

func mutuallyCompatible(a, b *model.Session) bool {
	return seeks(a.SeekingGender, b.Gender) && seeks(b.SeekingGender, a.Gender)
}

func seeks(seeking, gender string) bool {
	return seeking == "any" || seeking == gender
}
