package cache

import (
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gorustyt/vnavmesh/common/message"
	"github.com/gorustyt/vnavmesh/detour"
)

// Cache stores navmeshes in a Store. Each entry is a message.Envelope whose
// payload is the zstd-compressed detour encoding.
type Cache struct {
	store Store
	log   *zap.Logger
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func New(store Store, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, log: log.Named("cache"), enc: enc, dec: dec}, nil
}

func (c *Cache) Exists(key string) bool {
	return c.store.Exists(key)
}

// Load reads the navmesh stored under key. Entries that cannot be decoded, or
// were built with a customization version other than version, fail with a
// *CorruptError.
func (c *Cache) Load(key string, version int32) (*detour.Navmesh, error) {
	data, err := c.store.Read(key)
	if err != nil {
		return nil, err
	}
	env, err := message.Decode(data)
	if err != nil {
		return nil, &CorruptError{Key: key, Err: err}
	}
	if env.Key != key {
		return nil, &CorruptError{Key: key, Err: errors.Errorf("entry holds %q", env.Key)}
	}
	if env.Version != int64(version) {
		return nil, &CorruptError{Key: key, Err: errors.Wrapf(detour.ErrWrongVersion, "entry version %d, want %d", env.Version, version)}
	}
	body, err := c.dec.DecodeAll(env.Payload, nil)
	if err != nil {
		return nil, &CorruptError{Key: key, Err: errors.Wrap(err, "decompress")}
	}
	nm, err := detour.Decode(body, version)
	if err != nil {
		return nil, &CorruptError{Key: key, Err: err}
	}
	c.log.Debug("loaded navmesh from cache",
		zap.String("key", key),
		zap.Int("bytes", len(data)),
		zap.Time("created", time.Unix(0, env.CreatedAt)))
	return nm, nil
}

func (c *Cache) Save(key string, nm *detour.Navmesh) error {
	body := detour.Encode(nm)
	data := message.Encode(&message.Envelope{
		Key:       key,
		Version:   int64(nm.Version),
		CreatedAt: time.Now().UnixNano(),
		Payload:   c.enc.EncodeAll(body, nil),
	})
	if err := c.store.Write(key, data); err != nil {
		return err
	}
	c.log.Debug("saved navmesh to cache",
		zap.String("key", key),
		zap.Int("raw", len(body)),
		zap.Int("bytes", len(data)))
	return nil
}
