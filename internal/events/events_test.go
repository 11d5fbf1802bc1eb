package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/logging"
	"github.com/jonathan/contract-signer/internal/types"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w, "contracts", map[Type]string{ContractCompleted: "contracts.completed"})

	id := uuid.New()
	require.NoError(t, p.Publish(context.Background(), Event{Type: ContractSent, ContractID: id, Status: types.StatusSent, OccurredAt: time.Now()}))
	require.NoError(t, p.Publish(context.Background(), Event{Type: ContractCompleted, ContractID: id, Status: types.StatusCompleted}))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "contracts", w.msgs[0].Topic)
	assert.Equal(t, "contracts.completed", w.msgs[1].Topic)
	assert.Equal(t, id.String(), string(w.msgs[0].Key))
	assert.Equal(t, "contract.sent", string(w.msgs[0].Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, ContractSent, decoded.Type)
	assert.Equal(t, id, decoded.ContractID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: boom}, "contracts", nil)
	err := p.Publish(context.Background(), Event{Type: ContractSent})
	assert.ErrorIs(t, err, boom)
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "contracts", nil)
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "", nil)
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(logging.NewTestLogger())
	assert.NoError(t, p.Publish(context.Background(), Event{Type: ContractSellerSigned, ContractID: uuid.New()}))
}
