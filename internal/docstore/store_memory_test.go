package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nivaran/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s := NewInMemoryStore()
		doc := Document{ContentType: "text/plain", Body: []byte("notice body")}
		require.NoError(t, s.Put(ctx, "notices/1/rendered", doc))

		got, err := s.Get(ctx, "notices/1/rendered")
		require.NoError(t, err)
		assert.Equal(t, doc, got)
	})

	t.Run("missing ref returns ErrNotFound", func(t *testing.T) {
		s := NewInMemoryStore()
		_, err := s.Get(ctx, "nope")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("entries expire after the TTL", func(t *testing.T) {
		now := time.Now()
		clock := func() time.Time { return now }
		s := NewInMemoryStore(WithTTL(time.Hour), WithClock(clock))

		require.NoError(t, s.Put(ctx, "ref", Document{Body: []byte("x")}))

		_, err := s.Get(ctx, "ref")
		require.NoError(t, err)

		now = now.Add(2 * time.Hour)
		_, err = s.Get(ctx, "ref")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("stored body is isolated from caller mutation", func(t *testing.T) {
		s := NewInMemoryStore()
		body := []byte("original")
		require.NoError(t, s.Put(ctx, "ref", Document{Body: body}))
		body[0] = 'X'

		got, err := s.Get(ctx, "ref")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), got.Body)
	})
}
