package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewhall/src/models"
)

type recordingPublisher struct {
	msgs []*nats.Msg
	err  error
}

func (r *recordingPublisher) PublishMsg(msg *nats.Msg) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func TestSubject(t *testing.T) {
	event := models.GroupEvent{Type: models.EventJoinApproved, Kind: models.KindFamily}
	assert.Equal(t, "crewhall.family.join_approved", Subject(event))
}

func TestPublishEncodesEvent(t *testing.T) {
	rec := &recordingPublisher{}
	p := &NatsPublisher{pub: rec}
	event := models.GroupEvent{
		Type:     models.EventMemberKicked,
		Kind:     models.KindGang,
		GroupID:  "g-1",
		ActorID:  "leader",
		TargetID: "member",
		At:       1700000000,
	}

	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, rec.msgs, 1)

	msg := rec.msgs[0]
	assert.Equal(t, "crewhall.gang.member_kicked", msg.Subject)
	assert.Equal(t, "g-1", msg.Header.Get("Group-Id"))

	var decoded models.GroupEvent
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, event, decoded)
}

func TestPublishWrapsTransportError(t *testing.T) {
	boom := errors.New("connection closed")
	p := &NatsPublisher{pub: &recordingPublisher{err: boom}}

	err := p.Publish(context.Background(), models.GroupEvent{Type: models.EventGroupCreated, Kind: models.KindGang})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	rec := &recordingPublisher{}
	p := &NatsPublisher{pub: rec}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, models.GroupEvent{Type: models.EventGroupCreated, Kind: models.KindGang})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.msgs)
}

func TestCloseWithoutConnection(t *testing.T) {
	p := &NatsPublisher{pub: &recordingPublisher{}}
	p.Close()
}
