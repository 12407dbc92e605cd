package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

// 键前缀
var (
	prefixRecord    = []byte("r/")
	prefixIndex     = []byte("i/")
	prefixTombstone = []byte("t/")
)

func tombstoneKey(hash types.V256) []byte {
	return append(append([]byte{}, prefixTombstone...), hash.Payload[:]...)
}

func recordKey(hash types.V256) []byte {
	return append(append([]byte{}, prefixRecord...), hash.Payload[:]...)
}

func indexPrefix(combo types.V256) []byte {
	k := append(append([]byte{}, prefixIndex...), combo.Payload[:]...)
	return append(k, '/')
}

func indexKey(combo, hash types.V256) []byte {
	return append(indexPrefix(combo), hash.Payload[:]...)
}

// Badger BadgerDB 记录存储
type Badger struct {
	db     *badger.DB
	cfg    Config
	closed atomic.Bool

	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// NewBadger 打开或创建 BadgerDB 存储
func NewBadger(cfg Config) (*Badger, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}

	db, err := badger.Open(buildBadgerOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Badger{db: db, cfg: cfg, gcCancel: cancel}
	if cfg.GCInterval > 0 {
		b.startGC(ctx)
	}
	logger.Info("BadgerDB 存储已打开", "path", cfg.Path)
	return b, nil
}

// buildBadgerOptions 根据配置构建 BadgerDB 选项
func buildBadgerOptions(cfg Config) badger.Options {
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{})

	if cfg.BlockCacheSize > 0 {
		opts = opts.WithBlockCacheSize(cfg.BlockCacheSize)
	}
	if cfg.Compression > 0 {
		opts = opts.WithZSTDCompressionLevel(cfg.Compression)
	}
	return opts
}

// badgerLogger 将 badger 日志转发到组件 logger
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

// startGC 启动值日志垃圾回收
func (b *Badger) startGC(ctx context.Context) {
	b.gcWg.Add(1)
	go func() {
		defer b.gcWg.Done()

		ticker := time.NewTicker(b.cfg.GCInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.runGC()
			}
		}
	}()
}

// runGC 运行 GC 直到没有可回收的空间
func (b *Badger) runGC() {
	for !b.closed.Load() {
		if err := b.db.RunValueLogGC(b.cfg.GCDiscardRatio); err != nil {
			return
		}
	}
}

// Get 实现 Store
func (b *Badger) Get(key types.PartialKey) (*record.Signed, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	var found []*record.Signed
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = indexPrefix(key.Hash())
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			hash, err := types.V256FromBytes(k[len(k)-32:])
			if err != nil {
				continue
			}
			s, err := getSigned(txn, hash)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			found = append(found, s)
		}
		return nil
	})
	if err != nil {
		return nil, convertError(err)
	}
	return pick(key, found)
}

func getSigned(txn *badger.Txn, hash types.V256) (*record.Signed, error) {
	item, err := txn.Get(recordKey(hash))
	if err != nil {
		return nil, convertError(err)
	}
	var s record.Signed
	err = item.Value(func(val []byte) error {
		return record.Unmarshal(val, &s)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Put 实现 Store
func (b *Badger) Put(key types.CompleteKey, signed *record.Signed) error {
	if b.closed.Load() {
		return ErrClosed
	}
	val, err := record.Marshal(signed)
	if err != nil {
		return err
	}

	hash := key.Hash()
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recordKey(hash), val); err != nil {
			return err
		}
		for _, combo := range key.Partial().HashCombinations() {
			if err := txn.Set(indexKey(combo, hash), nil); err != nil {
				return err
			}
		}
		return nil
	})
	return convertError(err)
}

func getTombstone(txn *badger.Txn, hash types.V256) (*record.Tombstone, error) {
	item, err := txn.Get(tombstoneKey(hash))
	if err != nil {
		return nil, convertError(err)
	}
	var t record.Tombstone
	err = item.Value(func(val []byte) error {
		return record.Unmarshal(val, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Delete 实现 Store
//
// 墓碑与记录删除在同一事务中写入。
func (b *Badger) Delete(key types.CompleteKey, tomb *record.Tombstone) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	val, err := record.Marshal(tomb)
	if err != nil {
		return false, err
	}

	hash := key.Hash()
	existed := false
	err = b.db.Update(func(txn *badger.Txn) error {
		old, err := getTombstone(txn, hash)
		switch {
		case err == nil && old.DeletedAt.After(tomb.DeletedAt):
		case err == nil || errors.Is(err, ErrNotFound):
			if err := txn.Set(tombstoneKey(hash), val); err != nil {
				return err
			}
		default:
			return err
		}

		if _, err := txn.Get(recordKey(hash)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		if err := txn.Delete(recordKey(hash)); err != nil {
			return err
		}
		for _, combo := range key.Partial().HashCombinations() {
			if err := txn.Delete(indexKey(combo, hash)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, convertError(err)
	}
	return existed, nil
}

// Watermark 实现 Store
//
// 持久存储不淘汰记录，水位只来自墓碑。
func (b *Badger) Watermark(key types.CompleteKey) (Watermark, error) {
	if b.closed.Load() {
		return Watermark{}, ErrClosed
	}
	var tomb *record.Tombstone
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		tomb, err = getTombstone(txn, key.Hash())
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Watermark{}, ErrNotFound
		}
		return Watermark{}, convertError(err)
	}
	return Watermark{At: tomb.DeletedAt, Tombstone: tomb}, nil
}

// Len 实现 Store
func (b *Badger) Len() int {
	if b.closed.Load() {
		return 0
	}
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefixRecord
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		logger.Debug("统计记录数失败", "error", err)
		return 0
	}
	return count
}

// Close 实现 Store
func (b *Badger) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.gcCancel()
	b.gcWg.Wait()
	return b.db.Close()
}

// convertError 转换 BadgerDB 错误
func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return ErrClosed
	default:
		return fmt.Errorf("storage: %w", err)
	}
}

var _ Store = (*Badger)(nil)
