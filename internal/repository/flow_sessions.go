package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	"handbook-agent/internal/domain"
)

const (
	skFlowState       = "STATE#"
	DefaultSessionTTL = 24 * time.Hour
)

// FlowSessions stores scripted-flow progress in the conversation table,
// one item per session.
type FlowSessions struct {
	client *Client
	ttl    time.Duration
}

// FlowSessions returns a session store sharing this client's table.
func (c *Client) FlowSessions(ttl time.Duration) *FlowSessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &FlowSessions{client: c, ttl: ttl}
}

func flowPK(sessionID string) string {
	return "FLOW#" + sessionID
}

func (f *FlowSessions) key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: flowPK(sessionID)},
		"SK": &types.AttributeValueMemberS{Value: skFlowState},
	}
}

func (f *FlowSessions) Load(ctx context.Context, sessionID string) (domain.FlowSession, bool, error) {
	out, err := f.client.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(f.client.tableName),
		Key:            f.key(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.FlowSession{}, false, errors.Wrap(err, "repository: load flow session")
	}
	if out == nil || len(out.Item) == 0 {
		return domain.FlowSession{}, false, nil
	}
	sess, err := itemToFlowSession(out.Item)
	if err != nil {
		return domain.FlowSession{}, false, errors.Wrap(err, "repository: decode flow session")
	}
	return sess, true, nil
}

func (f *FlowSessions) Save(ctx context.Context, sessionID string, sess domain.FlowSession) error {
	item := f.key(sessionID)
	answers := make(map[string]types.AttributeValue, len(sess.Answers))
	for k, v := range sess.Answers {
		answers[k] = &types.AttributeValueMemberS{Value: v}
	}
	item["step"] = &types.AttributeValueMemberN{Value: strconv.Itoa(sess.Step)}
	item["answers"] = &types.AttributeValueMemberM{Value: answers}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: sess.UpdatedAt.UTC().Format(time.RFC3339Nano)}
	item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(f.client.ttlValue(f.ttl), 10)}

	if _, err := f.client.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(f.client.tableName),
		Item:      item,
	}); err != nil {
		return errors.Wrap(err, "repository: save flow session")
	}
	return nil
}

func (f *FlowSessions) Delete(ctx context.Context, sessionID string) error {
	if _, err := f.client.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(f.client.tableName),
		Key:       f.key(sessionID),
	}); err != nil {
		return errors.Wrap(err, "repository: delete flow session")
	}
	return nil
}

func itemToFlowSession(item map[string]types.AttributeValue) (domain.FlowSession, error) {
	step, err := intAttr(item, "step")
	if err != nil {
		return domain.FlowSession{}, err
	}
	sess := domain.NewFlowSession()
	sess.Step = step
	if raw, ok := item["answers"].(*types.AttributeValueMemberM); ok {
		for k, v := range raw.Value {
			s, ok := v.(*types.AttributeValueMemberS)
			if !ok {
				return domain.FlowSession{}, errors.Errorf("repository: answer %q is not a string", k)
			}
			sess.Answers[k] = s.Value
		}
	}
	if ts, err := strAttr(item, "updatedAt"); err == nil {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			sess.UpdatedAt = parsed
		}
	}
	return sess, nil
}
