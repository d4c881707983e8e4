package outbox

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatvault/beatvault-backend/pkg/enums"
)

func TestNewEnvelopeDefaults(t *testing.T) {
	env, err := newEnvelope(DomainEvent{
		EventType: enums.EventPurchaseCompleted,
		Data:      map[string]int{"items": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, envelopeVersion, env.Version)
	assert.NotEmpty(t, env.EventID)
	assert.WithinDuration(t, time.Now(), env.OccurredAt, time.Minute)
	assert.JSONEq(t, `{"items":2}`, string(env.Data))
}

func TestNewEnvelopeRejectsUnencodableData(t *testing.T) {
	_, err := newEnvelope(DomainEvent{EventType: enums.EventPurchaseCompleted, Data: make(chan int)})
	assert.Error(t, err)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e1","occurredAt":"2026-01-02T03:04:05Z","data":{"ok":true}}`))
	require.NoError(t, err)
	assert.Equal(t, "e1", env.EventID)

	for name, raw := range map[string]string{
		"missing data": `{"version":1,"eventId":"e2"}`,
		"null data":    `{"version":1,"eventId":"e3","data":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(raw))
			assert.True(t, errors.Is(err, ErrEmptyEventData), "got %v", err)
		})
	}

	_, err = DecodeEnvelope([]byte(`not-json`))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmptyEventData))
}
