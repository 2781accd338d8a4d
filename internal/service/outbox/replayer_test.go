package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestReplayer_ReenqueuesWithNewID(t *testing.T) {
	repo := memory.NewOutboxRepository()
	msg := cartEvent(7)
	msg.ID = "original"

	dl := domain.NewDeadLetter(msg, errors.New("status 503"), 3, time.Now())
	require.NoError(t, NewReplayer(repo, nil, nil).Replay(context.Background(), dl))

	pending := repo.AllPending()
	require.Len(t, pending, 1)
	require.NotEqual(t, "original", pending[0].ID)
	require.Equal(t, msg.Payload, pending[0].Payload)
	require.Equal(t, domain.EventCartItemAdded, pending[0].EventType)
}

func TestReplayer_RejectsUnknownEvent(t *testing.T) {
	repo := memory.NewOutboxRepository()
	dl := domain.DeadLetter{OutboxID: "x", EventType: "order.created"}

	err := NewReplayer(repo, nil, nil).Replay(context.Background(), dl)
	require.ErrorIs(t, err, ErrUnsupportedEvent)
	require.Empty(t, repo.AllPending())
}
