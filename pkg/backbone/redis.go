package backbone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Vamsi-o/collaborative-workspace/pkg/events"
	"github.com/redis/go-redis/v9"
)

const fieldSep = "|"

type RedisOptions struct {
	// Prefix namespaces every key and channel, e.g. "presence:".
	Prefix string
	// NodeID identifies this process in the membership registry.
	NodeID string
	// NodeTTL bounds how long a crashed process's members stay visible.
	NodeTTL time.Duration
}

// Redis is a backbone for multi-process deployments. Broadcasts travel over one
// pattern subscription per process; membership is a hash per room whose fields
// are scoped by node, and a node's fields only count while its heartbeat key lives.
type Redis struct {
	rdb    *redis.Client
	opts   RedisOptions
	logger *slog.Logger

	mu    sync.Mutex
	owned map[string]map[string]struct{} // roomID -> hash fields registered by this node
}

func NewRedis(rdb *redis.Client, opts RedisOptions, logger *slog.Logger) *Redis {
	if opts.NodeTTL <= 0 {
		opts.NodeTTL = 30 * time.Second
	}
	return &Redis{
		rdb:    rdb,
		opts:   opts,
		logger: logger.With(slog.String("component", "backbone_redis"), slog.String("nodeID", opts.NodeID)),
		owned:  make(map[string]map[string]struct{}),
	}
}

var _ Backbone = (*Redis)(nil)

func (r *Redis) channel(roomID string) string { return r.opts.Prefix + "room:" + roomID }
func (r *Redis) membersKey(roomID string) string {
	return r.opts.Prefix + "members:" + roomID
}
func (r *Redis) nodeKey(nodeID string) string { return r.opts.Prefix + "node:" + nodeID }
func (r *Redis) field(sessionID string) string {
	return r.opts.NodeID + fieldSep + sessionID
}

func (r *Redis) Publish(ctx context.Context, msg Message) error {
	msg.Origin = r.opts.NodeID
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal backbone message: %w", err)
	}
	return r.rdb.Publish(ctx, r.channel(msg.Room), data).Err()
}

type redisSub struct {
	cancel context.CancelFunc
	exited chan struct{}
}

func (s *redisSub) Close() error {
	s.cancel()
	<-s.exited
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, h Handler) (Subscription, error) {
	pubsub := r.rdb.PSubscribe(ctx, r.channel("*"))
	// wait for the subscription confirmation so nothing published after we
	// return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := r.heartbeat(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	sub := &redisSub{cancel: cancel, exited: make(chan struct{})}
	ch := pubsub.Channel()

	go func() {
		defer close(sub.exited)
		defer pubsub.Close()
		ticker := time.NewTicker(r.opts.NodeTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					r.logger.Warn("Dropping undecodable backbone message", slog.String("channel", m.Channel), slog.Any("error", err))
					continue
				}
				h(msg)
			case <-ticker.C:
				if err := r.heartbeat(loopCtx); err != nil {
					r.logger.Warn("Heartbeat failed", slog.Any("error", err))
				}
			case <-loopCtx.Done():
				return
			}
		}
	}()
	return sub, nil
}

func (r *Redis) heartbeat(ctx context.Context) error {
	if err := r.rdb.Set(ctx, r.nodeKey(r.opts.NodeID), time.Now().Unix(), r.opts.NodeTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh node heartbeat: %w", err)
	}
	return nil
}

func (r *Redis) Register(ctx context.Context, roomID, sessionID string, member events.Member) error {
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to marshal member: %w", err)
	}
	field := r.field(sessionID)
	if err := r.rdb.HSet(ctx, r.membersKey(roomID), field, data).Err(); err != nil {
		return err
	}

	r.mu.Lock()
	fields, ok := r.owned[roomID]
	if !ok {
		fields = make(map[string]struct{})
		r.owned[roomID] = fields
	}
	fields[field] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *Redis) Unregister(ctx context.Context, roomID, sessionID string) error {
	field := r.field(sessionID)
	// redis drops the hash once its last field is gone.
	if err := r.rdb.HDel(ctx, r.membersKey(roomID), field).Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if fields, ok := r.owned[roomID]; ok {
		delete(fields, field)
		if len(fields) == 0 {
			delete(r.owned, roomID)
		}
	}
	r.mu.Unlock()
	return nil
}

func (r *Redis) Members(ctx context.Context, roomID string) ([]events.Member, error) {
	key := r.membersKey(roomID)
	raw, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []events.Member{}, nil
	}

	nodes := make([]string, 0)
	seen := make(map[string]bool)
	for field := range raw {
		node, _, ok := strings.Cut(field, fieldSep)
		if ok && !seen[node] {
			seen[node] = true
			nodes = append(nodes, node)
		}
	}
	alive, err := r.aliveNodes(ctx, nodes)
	if err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(raw))
	var stale []string
	for field, value := range raw {
		node, sessionID, ok := strings.Cut(field, fieldSep)
		if !ok || !alive[node] {
			stale = append(stale, field)
			continue
		}
		var m events.Member
		if err := json.Unmarshal([]byte(value), &m); err != nil {
			stale = append(stale, field)
			continue
		}
		entries = append(entries, entry{sessionID: sessionID, member: m})
	}

	if len(stale) > 0 {
		if err := r.rdb.HDel(ctx, key, stale...).Err(); err != nil {
			r.logger.Debug("Failed to prune stale members", slog.String("roomID", roomID), slog.Any("error", err))
		}
	}
	return sortedMembers(entries), nil
}

func (r *Redis) aliveNodes(ctx context.Context, nodes []string) (map[string]bool, error) {
	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = r.nodeKey(n)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	alive := make(map[string]bool, len(nodes))
	for i, v := range vals {
		alive[nodes[i]] = v != nil
	}
	return alive, nil
}

// Close removes everything this node registered and its heartbeat key. The
// redis client itself belongs to the caller.
func (r *Redis) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.mu.Lock()
	owned := r.owned
	r.owned = make(map[string]map[string]struct{})
	r.mu.Unlock()

	pipe := r.rdb.Pipeline()
	for roomID, fields := range owned {
		names := make([]string, 0, len(fields))
		for f := range fields {
			names = append(names, f)
		}
		pipe.HDel(ctx, r.membersKey(roomID), names...)
	}
	pipe.Del(ctx, r.nodeKey(r.opts.NodeID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to clear node registrations: %w", err)
	}
	return nil
}
