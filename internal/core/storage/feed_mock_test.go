package storage_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dep2p/go-subfield/internal/core/storage"
	"github.com/dep2p/go-subfield/internal/core/storage/mocks"
	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

// TestFeed_PutErrorNotPublished 测试写入失败时不投递
func TestFeed_PutErrorNotPublished(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	boom := errors.New("disk full")
	store.EXPECT().Put(gomock.Any(), gomock.Any()).Return(boom)
	store.EXPECT().Close().Return(nil)

	f := storage.WithFeed(store)
	events, cancel := f.Subscribe()
	defer cancel()

	key := types.CompleteKey{Signer: types.RandomV256(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}
	assert.ErrorIs(t, f.Put(key, nil), boom)

	select {
	case <-events:
		t.Fatal("失败的写入不应产生事件")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, f.Close())
}

// TestFeed_DeletePassthrough 测试删除与水位直达底层存储且不产生事件
func TestFeed_DeletePassthrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	key := types.CompleteKey{Signer: types.RandomV256(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}
	tomb := &record.Tombstone{DeletedAt: time.Now().UTC(), Signature: []byte{1}}
	store.EXPECT().Delete(key, tomb).Return(true, nil)
	store.EXPECT().Watermark(key).Return(storage.Watermark{At: tomb.DeletedAt, Tombstone: tomb}, nil)
	store.EXPECT().Close().Return(nil)

	f := storage.WithFeed(store)
	events, cancel := f.Subscribe()
	defer cancel()

	existed, err := f.Delete(key, tomb)
	require.NoError(t, err)
	assert.True(t, existed)

	wm, err := f.Watermark(key)
	require.NoError(t, err)
	assert.Same(t, tomb, wm.Tombstone)

	select {
	case <-events:
		t.Fatal("删除不应产生写入事件")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, f.Close())
}
