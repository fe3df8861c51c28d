// Package redisstore keeps the store in Redis so that several server nodes
// share sessions.
//
// Each path is a hash {v: value, r: revision} where revisions come from one
// global counter. Every write is a Lua script that bumps the counter, writes
// the hash and publishes the change on the path's channel, so a watcher can
// discard live changes already covered by its snapshot.
package redisstore

import (
	"board-lab/contract"
	"board-lab/errors"
	"board-lab/store"
	"board-lab/store/feed"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 16

// Config for the redis store. Defaults can be loaded via envdecode.
type Config struct {
	// Addr like "localhost:6379". ENV: REDIS_ADDR
	Addr     string `env:"REDIS_ADDR,default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,default=0"`
	// KeyPrefix for all keys and channels. ENV: BOARD_KEY_PREFIX
	KeyPrefix string `env:"BOARD_KEY_PREFIX,default=board:"`
}

type Store struct {
	log       *slog.Logger
	client    *redis.Client
	keyPrefix string
	shutdown  chan struct{}
	closeOnce sync.Once
}

func New(log *slog.Logger, cfg Config) (*Store, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, errors.Transient(fmt.Errorf("redis ping: %w", err))
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "board:"
	}
	return &Store{log: log, client: cl, keyPrefix: prefix, shutdown: make(chan struct{})}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv(log *slog.Logger) (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !stderrors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, err
	}
	return New(log, cfg)
}

// --- Key helpers ---

func (s *Store) valueKey(path string) string { return s.keyPrefix + "v:" + path }
func (s *Store) seqKey(parent string) string { return s.keyPrefix + "seq:" + parent }
func (s *Store) revKey() string              { return s.keyPrefix + "rev" }
func (s *Store) channel(path string) string  { return s.keyPrefix + "c:" + path }

var setScript = redis.NewScript(`
local rev = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'r', rev)
redis.call('PUBLISH', ARGV[2], rev .. ':p:' .. ARGV[1])
return rev
`)

var removeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local rev = redis.call('INCR', KEYS[2])
redis.call('DEL', KEYS[1])
redis.call('PUBLISH', ARGV[1], rev .. ':d:')
return rev
`)

var pushScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
local id = string.format('%020d', seq)
local rev = redis.call('INCR', KEYS[2])
redis.call('HSET', ARGV[2] .. id, 'v', ARGV[1], 'r', rev)
redis.call('PUBLISH', ARGV[3] .. id, rev .. ':p:' .. ARGV[1])
return id
`)

// wrap marks connectivity failures as transient. Server replies and context
// errors are returned unchanged.
func wrap(err error) error {
	if err == nil || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var replyErr redis.Error
	if stderrors.As(err, &replyErr) {
		return err
	}
	return errors.Transient(err)
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, false, err
	}
	v, err := s.client.HGet(ctx, s.valueKey(path), "v").Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap(err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, path string, value []byte) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	keys := []string{s.valueKey(path), s.revKey()}
	return wrap(setScript.Run(ctx, s.client, keys, value, s.channel(path)).Err())
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	_, err := s.Transact(ctx, path, func(current []byte) ([]byte, error) {
		return store.MergeFields(current, fields)
	})
	return err
}

func (s *Store) Push(ctx context.Context, parent string, value []byte) (string, error) {
	if err := store.ValidatePath(parent); err != nil {
		return "", err
	}
	keys := []string{s.seqKey(parent), s.revKey()}
	id, err := pushScript.Run(ctx, s.client, keys,
		value, s.valueKey(parent+"/"), s.channel(parent+"/")).Text()
	if err != nil {
		return "", wrap(err)
	}
	return id, nil
}

// Transact runs fn under WATCH and commits with MULTI/EXEC, retrying when a
// concurrent writer touched the path in between.
func (s *Store) Transact(ctx context.Context, path string, fn contract.TransactFunc) (bool, error) {
	if err := store.ValidatePath(path); err != nil {
		return false, err
	}
	key := s.valueKey(path)
	committed := false
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "v").Bytes()
		if err != nil && !stderrors.Is(err, redis.Nil) {
			return err
		}
		next, err := fn(current)
		if stderrors.Is(err, errors.ErrTxAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			setScript.Eval(ctx, pipe, []string{key, s.revKey()}, next, s.channel(path))
			return nil
		})
		if err == nil {
			committed = true
		}
		return err
	}
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if stderrors.Is(err, redis.TxFailedErr) {
			s.log.Debug("Transaction conflict, retrying", "path", path, "attempt", attempt)
			continue
		}
		return committed, wrap(err)
	}
	return false, errors.Transient(fmt.Errorf("transaction on %s kept conflicting", path))
}

func (s *Store) Remove(ctx context.Context, path string) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	keys := []string{s.valueKey(path), s.revKey()}
	return wrap(removeScript.Run(ctx, s.client, keys, s.channel(path)).Err())
}

// Watch subscribes before reading the snapshot so that no change is missed,
// then drops live changes whose revision the snapshot already covers.
func (s *Store) Watch(ctx context.Context, prefix string) (contract.Watcher, error) {
	if err := store.ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	pubsub := s.client.PSubscribe(ctx, s.channel(store.GlobEscape(prefix))+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, wrap(err)
	}
	snapshot, err := s.snapshot(ctx, prefix)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	w := feed.NewWatcher(ctx, s.shutdown)
	seen := make(map[string]uint64, len(snapshot))
	for _, e := range snapshot {
		seen[e.path] = e.rev
		w.Send(contract.Change{Kind: contract.Put, Path: e.path, Value: e.value})
	}
	w.Send(contract.Change{Kind: contract.Synced, Path: prefix})

	go func() {
		<-w.Done()
		_ = pubsub.Close()
	}()
	go s.follow(ctx, pubsub, w, seen)
	return w, nil
}

func (s *Store) follow(ctx context.Context, pubsub *redis.PubSub, w *feed.Watcher, seen map[string]uint64) {
	channelPrefix := s.channel("")
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			select {
			case <-w.Done():
			default:
				s.log.Debug("Watch interrupted", "error", err)
				w.Fail(wrap(err))
			}
			return
		}
		path := strings.TrimPrefix(msg.Channel, channelPrefix)
		c, rev, ok := decode(path, msg.Payload)
		if !ok {
			s.log.Warn("Malformed change notification", "channel", msg.Channel)
			continue
		}
		if rev <= seen[path] {
			continue
		}
		delete(seen, path)
		if !w.Send(c) {
			return
		}
	}
}

// decode parses "{rev}:p:{value}" and "{rev}:d:".
func decode(path, payload string) (contract.Change, uint64, bool) {
	revStr, rest, ok := strings.Cut(payload, ":")
	if !ok {
		return contract.Change{}, 0, false
	}
	rev, err := strconv.ParseUint(revStr, 10, 64)
	if err != nil {
		return contract.Change{}, 0, false
	}
	kind, value, ok := strings.Cut(rest, ":")
	if !ok {
		return contract.Change{}, 0, false
	}
	switch kind {
	case "p":
		return contract.Change{Kind: contract.Put, Path: path, Value: []byte(value)}, rev, true
	case "d":
		return contract.Change{Kind: contract.Removed, Path: path}, rev, true
	default:
		return contract.Change{}, 0, false
	}
}

type snapshotEntry struct {
	path  string
	value []byte
	rev   uint64
}

func (s *Store) snapshot(ctx context.Context, prefix string) ([]snapshotEntry, error) {
	valuePrefix := s.valueKey("")
	pattern := s.valueKey(store.GlobEscape(prefix)) + "*"
	var keys []string
	var cursor uint64
	for {
		batch, cur, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, wrap(err)
		}
		keys = append(keys, batch...)
		if cur == 0 {
			break
		}
		cursor = cur
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	cmds := make([]*redis.SliceCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HMGet(ctx, k, "v", "r")
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err)
	}

	entries := make([]snapshotEntry, 0, len(keys))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 2 || vals[0] == nil {
			// removed between SCAN and HMGET
			continue
		}
		value, _ := vals[0].(string)
		revStr, _ := vals[1].(string)
		rev, _ := strconv.ParseUint(revStr, 10, 64)
		entries = append(entries, snapshotEntry{
			path:  strings.TrimPrefix(keys[i], valuePrefix),
			value: []byte(value),
			rev:   rev,
		})
	}
	return entries, nil
}

// Close ends every watch and closes the Redis client.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.shutdown)
		err = s.client.Close()
	})
	return err
}

// Interface compliance
var _ contract.Store = (*Store)(nil)
