package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/utils"
)

type voteKey struct {
	ReplyID int
	UserID  int
}

// Published state is never modified in place. A transaction clones whichever
// maps it writes to and the clone replaces the published state on commit.
type memState struct {
	topics  map[int]models.Topic
	replies map[int]models.Reply
	votes   map[voteKey]models.Vote

	nextTopicID int
	nextReplyID int
}

type Memory struct {
	writeMu sync.Mutex // serializes transactions

	mu    sync.RWMutex // guards the state pointer
	state *memState
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		state: &memState{
			topics:      map[int]models.Topic{},
			replies:     map[int]models.Reply{},
			votes:       map[voteKey]models.Vote{},
			nextTopicID: 1,
			nextReplyID: 1,
		},
	}
}

func (m *Memory) current() *memState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Memory) GetTopic(ctx context.Context, topicID int) (models.Topic, error) {
	return m.current().getTopic(topicID)
}

func (m *Memory) GetReply(ctx context.Context, replyID int) (models.Reply, error) {
	return m.current().getReply(replyID)
}

func (m *Memory) ListReplies(ctx context.Context, topicID int) ([]models.Reply, error) {
	return m.current().listReplies(topicID)
}

func (m *Memory) GetVote(ctx context.Context, replyID, userID int) (*models.Vote, error) {
	return m.current().getVote(replyID, userID), nil
}

func (m *Memory) SumVotes(ctx context.Context, replyID int) (int, error) {
	return m.current().sumVotes(replyID), nil
}

func (m *Memory) Atomically(ctx context.Context, fn func(tx Tx) error) (err error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	base := m.current()
	tx := &memTx{staged: *base}

	defer utils.RecoverPanicAsError(&err)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = &tx.staged
	m.mu.Unlock()
	return nil
}

func (m *Memory) DriftedReplies(ctx context.Context, limit int) ([]models.VoteDrift, error) {
	s := m.current()
	var result []models.VoteDrift
	for _, id := range sortedKeys(s.replies) {
		if limit > 0 && len(result) >= limit {
			break
		}
		reply := s.replies[id]
		if actual := s.sumVotes(id); actual != reply.VoteCount {
			result = append(result, models.VoteDrift{
				ReplyID: id,
				TopicID: reply.TopicID,
				Stored:  reply.VoteCount,
				Actual:  actual,
			})
		}
	}
	return result, nil
}

func (s *memState) getTopic(topicID int) (models.Topic, error) {
	topic, ok := s.topics[topicID]
	if !ok {
		return models.Topic{}, fmt.Errorf("topic %d: %w", topicID, models.ErrNotFound)
	}
	return topic.Clone(), nil
}

func (s *memState) getReply(replyID int) (models.Reply, error) {
	reply, ok := s.replies[replyID]
	if !ok {
		return models.Reply{}, fmt.Errorf("reply %d: %w", replyID, models.ErrNotFound)
	}
	return reply.Clone(), nil
}

func (s *memState) listReplies(topicID int) ([]models.Reply, error) {
	if _, ok := s.topics[topicID]; !ok {
		return nil, fmt.Errorf("topic %d: %w", topicID, models.ErrNotFound)
	}
	var result []models.Reply
	for _, id := range sortedKeys(s.replies) {
		if reply := s.replies[id]; reply.TopicID == topicID {
			result = append(result, reply.Clone())
		}
	}
	return result, nil
}

func (s *memState) getVote(replyID, userID int) *models.Vote {
	vote, ok := s.votes[voteKey{replyID, userID}]
	if !ok {
		return nil
	}
	return &vote
}

func (s *memState) sumVotes(replyID int) int {
	sum := 0
	for key, vote := range s.votes {
		if key.ReplyID == replyID {
			sum += vote.Type.Value()
		}
	}
	return sum
}

type memTx struct {
	staged memState

	topicsCloned, repliesCloned, votesCloned bool
}

var _ Tx = (*memTx)(nil)

func (tx *memTx) topics() map[int]models.Topic {
	if !tx.topicsCloned {
		tx.staged.topics = maps.Clone(tx.staged.topics)
		tx.topicsCloned = true
	}
	return tx.staged.topics
}

func (tx *memTx) replies() map[int]models.Reply {
	if !tx.repliesCloned {
		tx.staged.replies = maps.Clone(tx.staged.replies)
		tx.repliesCloned = true
	}
	return tx.staged.replies
}

func (tx *memTx) votes() map[voteKey]models.Vote {
	if !tx.votesCloned {
		tx.staged.votes = maps.Clone(tx.staged.votes)
		tx.votesCloned = true
	}
	return tx.staged.votes
}

func (tx *memTx) GetTopic(ctx context.Context, topicID int) (models.Topic, error) {
	return tx.staged.getTopic(topicID)
}

func (tx *memTx) GetReply(ctx context.Context, replyID int) (models.Reply, error) {
	return tx.staged.getReply(replyID)
}

func (tx *memTx) ListReplies(ctx context.Context, topicID int) ([]models.Reply, error) {
	return tx.staged.listReplies(topicID)
}

func (tx *memTx) GetVote(ctx context.Context, replyID, userID int) (*models.Vote, error) {
	return tx.staged.getVote(replyID, userID), nil
}

func (tx *memTx) SumVotes(ctx context.Context, replyID int) (int, error) {
	return tx.staged.sumVotes(replyID), nil
}

func (tx *memTx) NextTopicID(ctx context.Context) (int, error) {
	id := tx.staged.nextTopicID
	tx.staged.nextTopicID++
	return id, nil
}

func (tx *memTx) InsertTopic(ctx context.Context, topic models.Topic) error {
	if _, exists := tx.staged.topics[topic.ID]; exists {
		return fmt.Errorf("topic %d already exists", topic.ID)
	}
	tx.topics()[topic.ID] = topic.Clone()
	if topic.ID >= tx.staged.nextTopicID {
		tx.staged.nextTopicID = topic.ID + 1
	}
	return nil
}

func (tx *memTx) UpdateTopic(ctx context.Context, topic models.Topic) error {
	if _, exists := tx.staged.topics[topic.ID]; !exists {
		return fmt.Errorf("topic %d: %w", topic.ID, models.ErrNotFound)
	}
	tx.topics()[topic.ID] = topic.Clone()
	return nil
}

func (tx *memTx) NextReplyID(ctx context.Context) (int, error) {
	id := tx.staged.nextReplyID
	tx.staged.nextReplyID++
	return id, nil
}

func (tx *memTx) InsertReply(ctx context.Context, reply models.Reply) error {
	if _, exists := tx.staged.topics[reply.TopicID]; !exists {
		return fmt.Errorf("topic %d: %w", reply.TopicID, models.ErrNotFound)
	}
	if _, exists := tx.staged.replies[reply.ID]; exists {
		return fmt.Errorf("reply %d already exists", reply.ID)
	}
	tx.replies()[reply.ID] = reply.Clone()
	if reply.ID >= tx.staged.nextReplyID {
		tx.staged.nextReplyID = reply.ID + 1
	}
	return nil
}

func (tx *memTx) UpdateReply(ctx context.Context, reply models.Reply) error {
	if _, exists := tx.staged.replies[reply.ID]; !exists {
		return fmt.Errorf("reply %d: %w", reply.ID, models.ErrNotFound)
	}
	tx.replies()[reply.ID] = reply.Clone()
	return nil
}

func (tx *memTx) DeleteReply(ctx context.Context, replyID int) error {
	if _, exists := tx.staged.replies[replyID]; !exists {
		return fmt.Errorf("reply %d: %w", replyID, models.ErrNotFound)
	}
	delete(tx.replies(), replyID)
	return nil
}

func (tx *memTx) PutVote(ctx context.Context, vote models.Vote) error {
	if _, exists := tx.staged.replies[vote.ReplyID]; !exists {
		return fmt.Errorf("reply %d: %w", vote.ReplyID, models.ErrNotFound)
	}
	tx.votes()[voteKey{vote.ReplyID, vote.UserID}] = vote
	return nil
}

func (tx *memTx) DeleteVote(ctx context.Context, replyID, userID int) error {
	if _, exists := tx.staged.votes[voteKey{replyID, userID}]; exists {
		delete(tx.votes(), voteKey{replyID, userID})
	}
	return nil
}

func (tx *memTx) DeleteVotesForReply(ctx context.Context, replyID int) error {
	for key := range tx.staged.votes {
		if key.ReplyID == replyID {
			delete(tx.votes(), key)
		}
	}
	return nil
}

func (tx *memTx) AddVoteCount(ctx context.Context, replyID, delta int) (int, error) {
	reply, exists := tx.staged.replies[replyID]
	if !exists {
		return 0, fmt.Errorf("reply %d: %w", replyID, models.ErrNotFound)
	}
	reply.VoteCount += delta
	tx.replies()[replyID] = reply
	return reply.VoteCount, nil
}

func (tx *memTx) SetVoteCount(ctx context.Context, replyID, count int) error {
	reply, exists := tx.staged.replies[replyID]
	if !exists {
		return fmt.Errorf("reply %d: %w", replyID, models.ErrNotFound)
	}
	reply.VoteCount = count
	tx.replies()[replyID] = reply
	return nil
}
