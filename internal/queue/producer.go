package queue

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

func (p *Producer) Enqueue(ctx context.Context, task Task) error {
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: task.values(),
	}).Err()
}

func (p *Producer) EnqueueDispatch(ctx context.Context, documentID string) error {
	return p.Enqueue(ctx, Task{Type: TaskDispatch, DocumentID: documentID})
}

func (p *Producer) EnqueuePoll(ctx context.Context, documentID string) error {
	return p.Enqueue(ctx, Task{Type: TaskPoll, DocumentID: documentID})
}
