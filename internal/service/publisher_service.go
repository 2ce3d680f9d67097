package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/dto"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IPublisherService interface {
	PublishJob(ctx context.Context, job *dto.PipelineJobMessage) error
}

type publisherService struct {
	topicName string
	pubSub    *gochannel.GoChannel
}

func NewPublisherService(topicName string, pubSub *gochannel.GoChannel) IPublisherService {
	return &publisherService{
		topicName: topicName,
		pubSub:    pubSub,
	}
}

func (ps *publisherService) PublishJob(ctx context.Context, job *dto.PipelineJobMessage) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := ps.pubSub.Publish(ps.topicName, msg); err != nil {
		return fmt.Errorf("publish job message: %w", err)
	}
	return nil
}
