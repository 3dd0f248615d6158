package catalogsync

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/maresto/inventory_backend/config"
)

// PubSubPushHandler consumes tasks published by PubSubDispatcher.
// Malformed messages are acked (204) so Pub/Sub does not redeliver them forever;
// processing failures answer 500 so the message is retried.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var envelope config.PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "catalogsync", "PubSubPushHandler", "decoding envelope", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		var task Task
		if err := json.Unmarshal(envelope.Message.Data, &task); err != nil {
			config.LogError(logger, "catalogsync", "PubSubPushHandler", "decoding task", envelope.Message.ID, err)
			c.Status(http.StatusNoContent)
			return
		}
		if task.BranchId <= 0 {
			c.Status(http.StatusNoContent)
			return
		}

		if _, err := ProcessTask(c.Request.Context(), task); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
