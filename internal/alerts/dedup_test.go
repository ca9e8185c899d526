package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDedupStoreDefault(t *testing.T) {
	store := NewDedupStore(0)
	assert.Equal(t, 30*time.Minute, store.window)
}

func TestIsDuplicate(t *testing.T) {
	store := NewDedupStore(100 * time.Millisecond)
	key := "reauth:default"

	assert.False(t, store.IsDuplicate(key))
	store.Record(key)
	assert.True(t, store.IsDuplicate(key))
	assert.False(t, store.IsDuplicate("reauth:other"))

	time.Sleep(150 * time.Millisecond)
	assert.False(t, store.IsDuplicate(key))
}

func TestRecordDropsExpiredKeys(t *testing.T) {
	store := NewDedupStore(50 * time.Millisecond)
	store.Record("a")
	store.Record("b")
	assert.Equal(t, 2, store.Size())

	time.Sleep(80 * time.Millisecond)
	store.Record("c")
	assert.Equal(t, 1, store.Size())
}
