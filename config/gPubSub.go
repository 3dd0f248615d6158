package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const pubsubInitAttempts = 5

// PubSubPushEnvelope is the body a push subscription POSTs.
type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data,omitempty"`
		ID         string            `json:"messageId"`
		Attributes map[string]string `json:"attributes,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

var (
	pubsubMu     sync.Mutex
	pubsubClient *pubsub.Client
	pubsubTopics = map[string]*pubsub.Topic{}
)

// GetClient returns the shared Pub/Sub client, creating it on first use.
// Credentials come from PUBSUB_CREDENTIALS_JSON when set, otherwise ADC.
func GetClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectId := firstEnv("PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT")
	if projectId == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID is not set")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	logger := GetLogger()
	for attempt := 1; ; attempt++ {
		c, err := pubsub.NewClient(ctx, projectId, opts...)
		if err == nil {
			logger.WithFields(logrus.Fields{"project_id": projectId, "attempt": attempt}).Info("pubsub client ready")
			pubsubClient = c
			return c, nil
		}
		if attempt >= pubsubInitAttempts {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		wait := time.Duration(1<<attempt) * time.Second
		logger.WithFields(logrus.Fields{"project_id": projectId, "attempt": attempt, "retry_in": wait.String()}).Warn(err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// CreateTopicIfNotExists is used at startup when the dispatcher owns its topic.
func CreateTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil || topic == "" {
		return nil, errors.New("pubsub client and topic are required")
	}
	t := c.Topic(topic)
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return t, nil
	}
	if t, err = c.CreateTopic(ctx, topic); err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

// PublishJSON publishes obj and waits for the server-assigned message id.
func PublishJSON(ctx context.Context, topicName string, obj interface{}, attributes map[string]string) (string, error) {
	if topicName == "" {
		return "", errors.New("topic name is required")
	}
	client, err := GetClient(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}

	pubsubMu.Lock()
	topic, ok := pubsubTopics[topicName]
	if !ok {
		topic = client.Topic(topicName)
		pubsubTopics[topicName] = topic
	}
	pubsubMu.Unlock()

	return topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes}).Get(ctx)
}

func ClosePubSub() {
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	for name, t := range pubsubTopics {
		t.Stop()
		delete(pubsubTopics, name)
	}
	if pubsubClient != nil {
		_ = pubsubClient.Close()
		pubsubClient = nil
	}
}
