package handlers

import (
	"Guardian/internal/notify"
	"Guardian/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleStream 以 SSE 推送所选主题及本人队列的事件，默认订阅 /topic/sos
func (h *Handlers) handleStream(c *gin.Context) {
	me := currentIdentity(c)
	topics := c.QueryArray("topic")
	if len(topics) == 0 {
		topics = []string{notify.TopicSOS}
	}
	for _, topic := range topics {
		if err := topicAllowed(me.Role, topic); err != nil {
			response.Fail(c, err)
			return
		}
	}
	groups := append(topics, notify.IdentityGroup(me.ID))
	h.stream.Serve(c, uuid.NewString(), groups...)
}
