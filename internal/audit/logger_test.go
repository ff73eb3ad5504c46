package audit

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCallbackLog(t *testing.T) {
	t.Run("appends in order", func(t *testing.T) {
		log := NewCallbackLog(zerolog.Nop())
		log.Append("s1", map[string]any{"message": "first"})
		log.Append("s2", map[string]any{"message": "second"})

		entries := log.Entries()
		assert.Len(t, entries, 2)
		assert.Equal(t, "first", entries[0]["message"])
		assert.Equal(t, "second", entries[1]["message"])
	})

	t.Run("snapshot is stable against later appends", func(t *testing.T) {
		log := NewCallbackLog(zerolog.Nop())
		log.Append("s1", map[string]any{"message": "only"})

		snapshot := log.Entries()
		log.Append("s1", map[string]any{"message": "later"})
		assert.Len(t, snapshot, 1)
		assert.Equal(t, 2, log.Len())
	})

	t.Run("is safe under concurrent appends", func(t *testing.T) {
		log := NewCallbackLog(zerolog.Nop())

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Append("s1", map[string]any{"message": "x"})
			}()
		}
		wg.Wait()
		assert.Equal(t, 20, log.Len())
	})
}
