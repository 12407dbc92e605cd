package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-subfield/pkg/lib/crypto"
	"github.com/dep2p/go-subfield/pkg/types"
)

// TestFeed_Lossless 测试订阅方落后时事件不丢失
func TestFeed_Lossless(t *testing.T) {
	mem, err := NewMemory(1024)
	require.NoError(t, err)
	f := WithFeed(mem)
	defer f.Close()

	events, cancel := f.Subscribe()
	defer cancel()

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	const n = 200
	for i := 0; i < n; i++ {
		k := types.CompleteKey{Signer: kp.ID(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}
		require.NoError(t, f.Put(k, signed(t, kp, k, "x", time.Now())))
	}

	for i := 0; i < n; i++ {
		select {
		case ev := <-events:
			assert.Equal(t, kp.ID(), ev.Key.Signer)
		case <-time.After(5 * time.Second):
			t.Fatalf("只收到 %d 个事件", i)
		}
	}
}

// TestFeed_Cancel 测试取消订阅关闭通道
func TestFeed_Cancel(t *testing.T) {
	mem, err := NewMemory(8)
	require.NoError(t, err)
	f := WithFeed(mem)

	events, cancel := f.Subscribe()
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("通道未关闭")
	}

	require.NoError(t, f.Close())
	cancel()
}
