package selector

import (
	"encoding/binary"
	"time"

	"github.com/patrickmn/go-cache"
	"go.etcd.io/bbolt"
)

// Store 是 带过期时间的 kv 存储
type Store interface {
	// 不存在 或 已过期 时 ok 为 false. expire 为 零值 表示 永不过期.
	Get(key string) (val []byte, expire time.Time, ok bool, err error)
	Put(key string, val []byte, ttl time.Duration) error
	Close() error
}

var bucketName = []byte("siren")

// BoltStore 把 过期时间 (unix nano, 8字节大端) 写在 值的 前面.
type BoltStore struct {
	db *bbolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(key string) (val []byte, expire time.Time, ok bool, err error) {
	expired := false
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if len(v) < 8 {
			return nil
		}
		expire = time.Unix(0, int64(binary.BigEndian.Uint64(v[:8])))
		if time.Now().After(expire) {
			expired = true
			return nil
		}
		//bbolt 返回的切片 只在事务内有效
		val = append([]byte(nil), v[8:]...)
		ok = true
		return nil
	})
	if !ok {
		expire = time.Time{}
	}
	if err == nil && expired {
		err = s.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucketName).Delete([]byte(key))
		})
	}
	return
}

func (s *BoltStore) Put(key string, val []byte, ttl time.Duration) error {
	v := make([]byte, 8+len(val))
	binary.BigEndian.PutUint64(v[:8], uint64(time.Now().Add(ttl).UnixNano()))
	copy(v[8:], val)

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), v)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemStore 只保存在 内存中, 没有配置 db_path 时 使用.
type MemStore struct {
	c *cache.Cache
}

func NewMemStore() *MemStore {
	return &MemStore{c: cache.New(DefaultTTL, 10*time.Minute)}
}

func (s *MemStore) Get(key string) ([]byte, time.Time, bool, error) {
	v, expire, ok := s.c.GetWithExpiration(key)
	if !ok {
		return nil, time.Time{}, false, nil
	}
	return v.([]byte), expire, true, nil
}

func (s *MemStore) Put(key string, val []byte, ttl time.Duration) error {
	s.c.Set(key, val, ttl)
	return nil
}

func (s *MemStore) Close() error {
	s.c.Flush()
	return nil
}
