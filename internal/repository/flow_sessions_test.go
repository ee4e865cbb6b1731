package repository

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"handbook-agent/internal/domain"
)

func TestFlowSessions_SaveWritesItem(t *testing.T) {
	db := &fakeDynamo{}
	store := mustNewClient(t, db).FlowSessions(time.Hour)

	sess := domain.NewFlowSession()
	sess.Step = 2
	sess.Answers["name"] = "Ada"
	sess.Answers["email"] = "ada@example.com"
	sess.UpdatedAt = fixedNow

	require.NoError(t, store.Save(context.Background(), "s-1", sess))

	item := db.lastPutInput.Item
	require.Equal(t, "test-table", *db.lastPutInput.TableName)
	require.Equal(t, "FLOW#s-1", item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, skFlowState, item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "2", item["step"].(*types.AttributeValueMemberN).Value)
	answers := item["answers"].(*types.AttributeValueMemberM).Value
	require.Equal(t, "Ada", answers["name"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, strconv.FormatInt(fixedNow.Add(time.Hour).Unix(), 10), item["ttl"].(*types.AttributeValueMemberN).Value)
}

func TestFlowSessions_LoadRoundTrip(t *testing.T) {
	db := &fakeDynamo{}
	store := mustNewClient(t, db).FlowSessions(0)

	sess := domain.NewFlowSession()
	sess.Step = 1
	sess.Answers["name"] = "Ada"
	sess.UpdatedAt = fixedNow
	require.NoError(t, store.Save(context.Background(), "s-1", sess))

	db.getOut = &dynamodb.GetItemOutput{Item: db.lastPutInput.Item}
	got, ok, err := store.Load(context.Background(), "s-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, got.Step)
	require.Equal(t, map[string]string{"name": "Ada"}, got.Answers)
	require.True(t, fixedNow.Equal(got.UpdatedAt))
	require.True(t, *db.lastGetInput.ConsistentRead)
}

func TestFlowSessions_LoadMissing(t *testing.T) {
	store := mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}).FlowSessions(0)
	_, ok, err := store.Load(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFlowSessions_LoadErrors(t *testing.T) {
	store := mustNewClient(t, &fakeDynamo{getErr: errors.New("throttled")}).FlowSessions(0)
	_, _, err := store.Load(context.Background(), "s-1")
	require.ErrorContains(t, err, "load flow session")

	bad := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"step": &types.AttributeValueMemberN{Value: "0"},
		"answers": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberN{Value: "1"},
		}},
	}}}
	store = mustNewClient(t, bad).FlowSessions(0)
	_, _, err = store.Load(context.Background(), "s-1")
	require.ErrorContains(t, err, "not a string")
}

func TestFlowSessions_Delete(t *testing.T) {
	db := &fakeDynamo{}
	store := mustNewClient(t, db).FlowSessions(0)
	require.NoError(t, store.Delete(context.Background(), "s-1"))
	require.Equal(t, "FLOW#s-1", db.lastDeleteIn.Key["PK"].(*types.AttributeValueMemberS).Value)

	db.deleteErr = errors.New("boom")
	require.ErrorContains(t, store.Delete(context.Background(), "s-1"), "delete flow session")
}
