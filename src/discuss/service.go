/*
Package discuss is the public face of the reply engine. Every mutation goes
through the same steps: check permission, take the topic lock, apply the change
in one store transaction, then invalidate the topic's cached tree here and in
every other process before the lock is released.

Reads never take the topic lock. They are served from the tree cache, which is
rebuilt from the store on a miss.
*/
package discuss

import (
	"context"
	"fmt"
	"strings"
	"time"

	"git.handmade.network/hmn/discuss/src/deletion"
	"git.handmade.network/hmn/discuss/src/jobs"
	"git.handmade.network/hmn/discuss/src/locks"
	"git.handmade.network/hmn/discuss/src/logging"
	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/moderation"
	"git.handmade.network/hmn/discuss/src/oops"
	"git.handmade.network/hmn/discuss/src/replycache"
	"git.handmade.network/hmn/discuss/src/replytree"
	"git.handmade.network/hmn/discuss/src/store"
	"git.handmade.network/hmn/discuss/src/votes"
)

type Authorizer interface {
	CheckPermission(ctx context.Context, userID int, action models.Action, topicID int) (bool, error)
}

type Categories interface {
	CategoryStatus(ctx context.Context, categoryID int) (models.CategoryStatus, error)
}

type Identity interface {
	ResolveAuthors(ctx context.Context, ids []int) (map[int]models.Author, error)
}

// Tells other processes that a topic's tree changed.
type Publisher interface {
	Publish(ctx context.Context, kind string, topicID int) error
}

type MutationKind string

const (
	MutationCreate     MutationKind = "create"
	MutationEdit       MutationKind = "edit"
	MutationSoftDelete MutationKind = "soft_delete"
	MutationHardDelete MutationKind = "hard_delete"
	MutationVote       MutationKind = "vote"
	MutationSolution   MutationKind = "solution"
	MutationLock       MutationKind = "lock"
	MutationPin        MutationKind = "pin"
	MutationReconcile  MutationKind = "reconcile"
)

type Options struct {
	Store      store.Store
	Cache      *replycache.Cache
	Authorizer Authorizer
	Categories Categories
	Identity   Identity
	Publisher  Publisher // optional

	// How long a mutation waits for its topic lock. Zero means no limit
	// beyond the caller's context.
	LockTimeout time.Duration
}

type Service struct {
	store      store.Store
	cache      *replycache.Cache
	auth       Authorizer
	categories Categories
	identity   Identity
	publisher  Publisher

	tree       replytree.Builder
	votes      *votes.Aggregator
	deletion   *deletion.Reparenter
	moderation *moderation.Machine

	topicLocks  *locks.Keyed[int]
	lockTimeout time.Duration
	now         func() time.Time
}

func New(opts Options) *Service {
	return &Service{
		store:      opts.Store,
		cache:      opts.Cache,
		auth:       opts.Authorizer,
		categories: opts.Categories,
		identity:   opts.Identity,
		publisher:  opts.Publisher,

		tree:       replytree.Builder{Store: opts.Store},
		votes:      votes.NewAggregator(opts.Store),
		deletion:   deletion.NewReparenter(opts.Store),
		moderation: moderation.NewMachine(opts.Store),

		topicLocks:  locks.NewKeyed[int](),
		lockTimeout: opts.LockTimeout,
		now:         time.Now,
	}
}

/*
Takes the topic lock. Only the wait is bounded by the lock timeout; the
caller's context is returned to be used for the work itself.
*/
func (s *Service) lockTopic(ctx context.Context, topicID int) (unlock func(), err error) {
	waitCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	unlock, err = s.topicLocks.Lock(waitCtx, topicID)
	if err != nil {
		return nil, fmt.Errorf("timed out waiting for lock on topic %d: %w", topicID, err)
	}
	return unlock, nil
}

func (s *Service) can(ctx context.Context, userID int, action models.Action, topicID int) (bool, error) {
	ok, err := s.auth.CheckPermission(ctx, userID, action, topicID)
	if err != nil {
		return false, oops.New(err, "failed to check %s permission", action)
	}
	return ok, nil
}

func (s *Service) require(ctx context.Context, userID int, action models.Action, topicID int) error {
	ok, err := s.can(ctx, userID, action, topicID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d may not %s in topic %d", models.ErrForbidden, userID, action, topicID)
	}
	return nil
}

/*
Checks an author acting on their own content. Ownership grants nothing by
itself: the author must still be allowed to reply, so banned users lose control
of what they wrote.
*/
func (s *Service) requireOwnership(ctx context.Context, authorID, actorID, topicID int) error {
	if authorID != actorID {
		return nil
	}
	return s.require(ctx, actorID, models.ActionReply, topicID)
}

/*
Runs after every successful mutation, while the topic lock is still held.
Readers that arrive after this returns never see the old tree.
*/
func (s *Service) afterCommit(ctx context.Context, kind MutationKind, topicID int) {
	s.cache.Invalidate(topicID)

	log := logging.ExtractLogger(ctx)
	log.Debug().Str("kind", string(kind)).Int("topic", topicID).Msg("invalidated reply tree")

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, string(kind), topicID); err != nil {
		log.Warn().Err(err).Int("topic", topicID).Msg("failed to publish invalidation")
	}
}

// Drops a topic's cached tree because another process changed it.
func (s *Service) InvalidateTopic(topicID int) {
	s.cache.Invalidate(topicID)
}

// Drops every cached tree.
func (s *Service) InvalidateAll() {
	s.cache.Purge()
}

func (s *Service) CacheStats() replycache.Stats {
	return s.cache.Stats()
}

func (s *Service) onDriftFixed(drift models.VoteDrift) {
	ctx := context.Background()
	logging.Info().
		Int("reply", drift.ReplyID).
		Int("stored", drift.Stored).
		Int("actual", drift.Actual).
		Msg("fixed drifted vote count")
	s.afterCommit(ctx, MutationReconcile, drift.TopicID)
}

// Fixes every drifted vote count now and returns how many were fixed.
func (s *Service) ReconcileDrifted(ctx context.Context) (int, error) {
	return s.votes.ReconcileDrifted(ctx, s.onDriftFixed)
}

// Starts the background job that keeps vote counts in line with the votes.
func (s *Service) StartReconciler(interval time.Duration) *jobs.Job {
	return s.votes.PeriodicallyReconcile(interval, s.onDriftFixed)
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is empty", models.ErrInvalidArgument)
	}
	if len(content) > MaxContentLength {
		return fmt.Errorf("%w: content is longer than %d bytes", models.ErrInvalidArgument, MaxContentLength)
	}
	return nil
}

const MaxContentLength = 64 * 1024
