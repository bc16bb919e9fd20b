package website

import (
	"fmt"
	"net/http"

	"git.handmade.network/hmn/discuss/src/models"
)

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

func topicParam(c *RequestContext) (int, bool) {
	return c.PathInt("topicid")
}

func replyParam(c *RequestContext) (int, bool) {
	return c.PathInt("replyid")
}

func GetThread(c *RequestContext) ResponseData {
	topicID, ok := topicParam(c)
	if !ok {
		return FourOhFour(c)
	}

	thread, err := c.Discuss.GetThread(c, topicID)
	if err != nil {
		return c.ErrorResponse(err)
	}
	return c.JsonResponse(http.StatusOK, thread)
}

func CreateTopic(c *RequestContext) ResponseData {
	var body struct {
		CategoryID int    `json:"category_id" validate:"required,gt=0"`
		Title      string `json:"title" validate:"required,max=255"`
		Content    string `json:"content" validate:"content"`
	}
	if err := c.ReadJson(&body); err != nil {
		return c.ErrorResponse(badRequest(err))
	}

	topic, err := c.Discuss.CreateTopic(c, body.CategoryID, c.CurrentUserID, body.Title, body.Content)
	if err != nil {
		return c.ErrorResponse(err)
	}
	return c.JsonResponse(http.StatusCreated, topic)
}

func CreateReply(c *RequestContext) ResponseData {
	topicID, ok := topicParam(c)
	if !ok {
		return FourOhFour(c)
	}
	var body struct {
		ParentID *int   `json:"parent_id" validate:"omitempty,gt=0"`
		Content  string `json:"content" validate:"required,content"`
	}
	if err := c.ReadJson(&body); err != nil {
		return c.ErrorResponse(badRequest(err))
	}

	reply, err := c.Discuss.CreateReply(c, topicID, body.ParentID, c.CurrentUserID, body.Content)
	if err != nil {
		return c.ErrorResponse(err)
	}
	return c.JsonResponse(http.StatusCreated, reply)
}

func EditReply(c *RequestContext) ResponseData {
	replyID, ok := replyParam(c)
	if !ok {
		return FourOhFour(c)
	}
	var body struct {
		Content string `json:"content" validate:"required,content"`
	}
	if err := c.ReadJson(&body); err != nil {
		return c.ErrorResponse(badRequest(err))
	}

	reply, err := c.Discuss.EditReply(c, replyID, c.CurrentUserID, body.Content)
	if err != nil {
		return c.ErrorResponse(err)
	}
	return c.JsonResponse(http.StatusOK, reply)
}

func SoftDeleteReply(c *RequestContext) ResponseData {
	replyID, ok := replyParam(c)
	if !ok {
		return FourOhFour(c)
	}
	if err := c.Discuss.SoftDeleteReply(c, replyID, c.CurrentUserID); err != nil {
		return c.ErrorResponse(err)
	}
	return noContent()
}

func HardDeleteReply(c *RequestContext) ResponseData {
	replyID, ok := replyParam(c)
	if !ok {
		return FourOhFour(c)
	}
	if err := c.Discuss.HardDeleteReply(c, replyID, c.CurrentUserID); err != nil {
		return c.ErrorResponse(err)
	}
	return noContent()
}

type voteCountResponse struct {
	ReplyID   int `json:"reply_id"`
	VoteCount int `json:"vote_count"`
}

func VoteReply(c *RequestContext) ResponseData {
	replyID, ok := replyParam(c)
	if !ok {
		return FourOhFour(c)
	}
	var body struct {
		Type string `json:"type" validate:"required,oneof=up down"`
	}
	if err := c.ReadJson(&body); err != nil {
		return c.ErrorResponse(badRequest(err))
	}
	voteType, err := models.ParseVoteType(body.Type)
	if err != nil {
		return c.ErrorResponse(err)
	}

	count, err := c.Discuss.VoteReply(c, replyID, c.CurrentUserID, voteType)
	if err != nil {
		return c.ErrorResponse(err)
	}
	return c.JsonResponse(http.StatusOK, voteCountResponse{ReplyID: replyID, VoteCount: count})
}

func RecountVotes(c *RequestContext) ResponseData {
	replyID, ok := replyParam(c)
	if !ok {
		return FourOhFour(c)
	}
	count, err := c.Discuss.Recount(c, replyID)
	if err != nil {
		return c.ErrorResponse(err)
	}
	return c.JsonResponse(http.StatusOK, voteCountResponse{ReplyID: replyID, VoteCount: count})
}

func MarkSolution(c *RequestContext) ResponseData {
	topicID, ok := topicParam(c)
	if !ok {
		return FourOhFour(c)
	}
	var body struct {
		ReplyID int `json:"reply_id" validate:"required,gt=0"`
	}
	if err := c.ReadJson(&body); err != nil {
		return c.ErrorResponse(badRequest(err))
	}

	if err := c.Discuss.MarkSolution(c, topicID, body.ReplyID, c.CurrentUserID); err != nil {
		return c.ErrorResponse(err)
	}
	return noContent()
}

func UnmarkSolution(c *RequestContext) ResponseData {
	topicID, ok := topicParam(c)
	if !ok {
		return FourOhFour(c)
	}
	if err := c.Discuss.UnmarkSolution(c, topicID, c.CurrentUserID); err != nil {
		return c.ErrorResponse(err)
	}
	return noContent()
}

func SetTopicLock(c *RequestContext) ResponseData {
	topicID, ok := topicParam(c)
	if !ok {
		return FourOhFour(c)
	}
	var body struct {
		Locked *bool `json:"locked" validate:"required"`
	}
	if err := c.ReadJson(&body); err != nil {
		return c.ErrorResponse(badRequest(err))
	}

	if err := c.Discuss.SetTopicLock(c, topicID, c.CurrentUserID, *body.Locked); err != nil {
		return c.ErrorResponse(err)
	}
	return noContent()
}

func SetTopicPin(c *RequestContext) ResponseData {
	topicID, ok := topicParam(c)
	if !ok {
		return FourOhFour(c)
	}
	var body struct {
		Pinned *bool `json:"pinned" validate:"required"`
	}
	if err := c.ReadJson(&body); err != nil {
		return c.ErrorResponse(badRequest(err))
	}

	if err := c.Discuss.SetTopicPin(c, topicID, c.CurrentUserID, *body.Pinned); err != nil {
		return c.ErrorResponse(err)
	}
	return noContent()
}
