/*
Package events carries cache invalidations between processes that share a
database. Every process caches reply trees locally, so a mutation applied by
one process has to evict the tree from all the others as well.
*/
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"git.handmade.network/hmn/discuss/src/jobs"
	"git.handmade.network/hmn/discuss/src/logging"
	"git.handmade.network/hmn/discuss/src/oops"
	"git.handmade.network/hmn/discuss/src/utils"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
)

// Delivered locally after every (re)connect. Invalidations published while
// disconnected are lost, so receivers should drop everything they cached.
const KindResync = "resync"

type Invalidation struct {
	ID      string    `json:"id"`
	Origin  string    `json:"origin"`
	Kind    string    `json:"kind"`
	TopicID int       `json:"topic_id"`
	At      time.Time `json:"at"`
}

var ErrDisconnected = errors.New("invalidation bus is not connected")

// A connection to some message broker.
type Transport interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) error
	// Closed once the connection is gone for good.
	Closed() <-chan struct{}
	Close()
}

type DialFunc func() (Transport, error)

type Bus struct {
	// Identifies this process. Invalidations it published itself are not
	// delivered back to it.
	Origin    string
	Subject   string
	Reconnect backoff.Backoff

	mu        sync.RWMutex
	transport Transport
}

func NewBus(subject string) *Bus {
	return &Bus{
		Origin:  uuid.NewString(),
		Subject: subject,
		Reconnect: backoff.Backoff{
			Min: 1 * time.Second,
			Max: 1 * time.Minute,
		},
	}
}

func (b *Bus) Publish(ctx context.Context, kind string, topicID int) error {
	b.mu.RLock()
	t := b.transport
	b.mu.RUnlock()
	if t == nil {
		return ErrDisconnected
	}

	body, err := json.Marshal(Invalidation{
		ID:      uuid.NewString(),
		Origin:  b.Origin,
		Kind:    kind,
		TopicID: topicID,
		At:      time.Now(),
	})
	if err != nil {
		return oops.New(err, "failed to encode invalidation")
	}
	if err := t.Publish(b.Subject, body); err != nil {
		return oops.New(err, "failed to publish invalidation for topic %d", topicID)
	}
	return nil
}

func (b *Bus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.transport != nil
}

/*
Keeps the bus connected until the job is canceled, dialing again with backoff
whenever the connection fails or closes. handle is called for every
invalidation from another process, and with a KindResync invalidation after
each successful connect.
*/
func (b *Bus) Run(dial DialFunc, handle func(inv Invalidation)) *jobs.Job {
	return jobs.Go("invalidation listener", func(job *jobs.Job) {
		log := job.Logger.With().Str("subject", b.Subject).Logger()

		for {
			err := b.session(job, dial, handle)
			select {
			case <-job.Canceled():
				return
			default:
			}

			dur := b.Reconnect.Duration()
			if err != nil {
				log.Error().Err(err).Dur("retrying after", dur).Msg("invalidation bus failed")
			} else {
				log.Warn().Dur("retrying after", dur).Msg("invalidation bus connection closed")
			}

			if utils.SleepContext(job.Ctx, dur) != nil {
				return
			}
		}
	})
}

// Runs one connection to completion.
func (b *Bus) session(job *jobs.Job, dial DialFunc, handle func(inv Invalidation)) error {
	t, err := dial()
	if err != nil {
		return oops.New(err, "failed to connect")
	}
	defer t.Close()

	err = t.Subscribe(b.Subject, func(data []byte) {
		var inv Invalidation
		if err := json.Unmarshal(data, &inv); err != nil {
			job.Logger.Warn().Err(err).Msg("dropping malformed invalidation")
			return
		}
		if inv.Origin == b.Origin {
			return
		}
		defer logging.LogPanics(&job.Logger)
		handle(inv)
	})
	if err != nil {
		return oops.New(err, "failed to subscribe")
	}

	b.mu.Lock()
	b.transport = t
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.transport = nil
		b.mu.Unlock()
	}()

	job.Logger.Info().Msg("invalidation bus connected")
	b.Reconnect.Reset()
	handle(Invalidation{Origin: b.Origin, Kind: KindResync, At: time.Now()})

	select {
	case <-job.Canceled():
	case <-t.Closed():
	}
	return nil
}
