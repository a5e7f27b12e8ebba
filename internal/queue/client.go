package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/botfleet/internal/config"
)

type Client struct {
	client     *asynq.Client
	maxRetries int
	timeout    time.Duration
}

func NewClient(redisCfg config.RedisConfig, hookCfg config.WebhookConfig) *Client {
	return &Client{
		client:     asynq.NewClient(RedisOpt(redisCfg)),
		maxRetries: hookCfg.MaxRetries,
		timeout:    hookCfg.DeliveryTimeout + 5*time.Second,
	}
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueWebhookDeliver(payload WebhookDeliverPayload) error {
	return c.enqueue(TypeWebhookDeliver, payload,
		asynq.MaxRetry(c.maxRetries), asynq.Timeout(c.timeout), asynq.Queue("critical"))
}

func (c *Client) enqueue(taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.Enqueue(task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
