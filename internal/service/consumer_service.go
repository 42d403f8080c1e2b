package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/dto"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/memory"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/specification"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/unitofwork"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/dbexec"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/events"
	pktNats "github.com/DarshilChauhan1/sql-query-builder-llm/pkg/nats"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/schemaformat"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains the schema-refresh job topic: it re-introspects the
// workspace's database, stores the new snapshot, and drops the cached
// formatted schema so the next turn sees fresh metadata.
type consumerService struct {
	pubSub       *gochannel.GoChannel
	topicName    string
	uowFactory   unitofwork.RepositoryFactory
	introspector *dbexec.Introspector
	schemaCache  *memory.SchemaCache
	natsPub      *pktNats.Publisher
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	introspector *dbexec.Introspector,
	schemaCache *memory.SchemaCache,
	natsPub *pktNats.Publisher,
) IConsumerService {
	return &consumerService{
		pubSub:       pubSub,
		topicName:    topicName,
		uowFactory:   uowFactory,
		introspector: introspector,
		schemaCache:  schemaCache,
		natsPub:      natsPub,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishRefreshSchemaMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	log.Printf("[INFO] Refreshing schema for workspace: %s", payload.WorkspaceId)

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	workspace, err := uow.WorkspaceRepository().FindOne(ctx, specification.ByID{ID: payload.WorkspaceId})
	if err != nil {
		log.Printf("[ERROR] Failed to get workspace %s: %v", payload.WorkspaceId, err)
		msg.Nack() // Nack for retriable errors
		return
	}
	if workspace == nil || workspace.Connection == nil {
		log.Printf("[ERROR] Workspace or connection not found: %s", payload.WorkspaceId)
		msg.Ack() // Workspace deleted? Ack.
		return
	}

	conn := workspace.Connection
	snapshot, err := cs.introspector.Snapshot(ctx, dbexec.Kind(conn.Kind), conn.ConnectionString)
	if err != nil {
		log.Printf("[ERROR] Introspection failed for workspace %s: %v", workspace.Id, err)
		msg.Nack()
		return
	}

	now := time.Now()
	conn.SchemaSnapshot = snapshot
	conn.SchemaRefreshedAt = &now
	if err := uow.WorkspaceRepository().UpdateConnection(ctx, conn); err != nil {
		log.Printf("[ERROR] Failed to store snapshot for workspace %s: %v", workspace.Id, err)
		msg.Nack()
		return
	}

	cs.schemaCache.Invalidate(workspace.Id)

	if cs.natsPub != nil {
		tableCount := 0
		var tables map[string][]schemaformat.Column
		if err := json.Unmarshal(snapshot, &tables); err == nil {
			tableCount = len(tables)
		}
		event := events.NewWorkspaceSchemaRefreshed(payload.UserId.String(), workspace.Id.String(), tableCount)
		if err := cs.natsPub.Publish(ctx, event); err != nil {
			log.Printf("[WARN] Failed to publish schema refresh event: %v", err)
		}
	}

	msg.Ack()
}
