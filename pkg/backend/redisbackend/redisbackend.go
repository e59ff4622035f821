// Package redisbackend is a reference backend.Backend implementation that
// mirrors every switch's flow table into Redis, the same hash-of-hashes
// idiom ("table|key" keys, HSET per field) the teacher's ConfigDBClient
// uses for SONiC's config_db, plus pub/sub notifications so a CLI or test
// harness can observe barriers, clears, and packet-outs as they happen.
package redisbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/jameskyle/pyretic/pkg/backend"
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
	"github.com/jameskyle/pyretic/pkg/policy"
	"github.com/jameskyle/pyretic/pkg/rlog"
)

// flowDB is the Redis database index the reference backend uses, picked to
// sit alongside the teacher's CONFIG_DB (4) and STATE_DB (6) convention
// without colliding with either.
const flowDB = 8

// Backend mirrors flow tables into Redis. A switch's rules live under keys
// "FLOW_TABLE|<switch>:<priority>:<seq>"; clears and barriers publish to
// per-switch pub/sub channels, and packet-outs to one global "packet-out"
// channel, so a watching client can follow pipeline activity live.
type Backend struct {
	client *redis.Client
	ctx    context.Context
	seq    map[network.SwitchID]int
}

// New returns a Backend connected to addr (host:port), talking to flowDB.
func New(addr string) *Backend {
	return &Backend{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: flowDB}),
		ctx:    context.Background(),
		seq:    make(map[network.SwitchID]int),
	}
}

// NewWithClient wraps an already-configured *redis.Client, e.g. one dialed
// through an SSH tunnel's local address (see Tunnel).
func NewWithClient(client *redis.Client) *Backend {
	return &Backend{client: client, ctx: context.Background(), seq: make(map[network.SwitchID]int)}
}

// Connect verifies the Redis connection is reachable.
func (b *Backend) Connect() error {
	return b.client.Ping(b.ctx).Err()
}

// Close releases the underlying Redis connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

type installedRule struct {
	Match    backend.Match  `json:"match"`
	Priority int            `json:"priority"`
	Actions  []actionRecord `json:"actions"`
}

type actionRecord struct {
	Kind   string                 `json:"kind"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

func encodeActions(actions []policy.Action) []actionRecord {
	out := make([]actionRecord, 0, len(actions))
	for _, a := range actions {
		switch act := a.(type) {
		case policy.SendToController:
			out = append(out, actionRecord{Kind: "send_to_controller"})
		case policy.Modify:
			out = append(out, actionRecord{Kind: "modify", Fields: act.Fields})
		default:
			rlog.WithField("action", fmt.Sprintf("%T", a)).
				Warn("redisbackend: action type should never reach the backend boundary")
		}
	}
	return out
}

func flowKey(sw network.SwitchID, priority, seq int) string {
	return fmt.Sprintf("FLOW_TABLE|%d:%010d:%04d", sw, priority, seq)
}

func flowKeyPattern(sw network.SwitchID) string {
	return fmt.Sprintf("FLOW_TABLE|%d:*", sw)
}

func switchChannel(sw network.SwitchID, suffix string) string {
	return fmt.Sprintf("switch:%d:%s", sw, suffix)
}

// SendInstall writes one flow entry for sw to Redis.
func (b *Backend) SendInstall(sw network.SwitchID, match backend.Match, priority int, actions []policy.Action) error {
	rule := installedRule{Match: match, Priority: priority, Actions: encodeActions(actions)}
	payload, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("redisbackend: marshal rule: %w", err)
	}

	seq := b.seq[sw]
	b.seq[sw] = seq + 1
	key := flowKey(sw, priority, seq)

	if err := b.client.HSet(b.ctx, key, "rule", string(payload)).Err(); err != nil {
		return fmt.Errorf("redisbackend: install on switch %d: %w", sw, err)
	}
	return nil
}

// SendBarrier publishes a barrier notification for sw.
func (b *Backend) SendBarrier(sw network.SwitchID) error {
	return b.client.Publish(b.ctx, switchChannel(sw, "barrier"), "1").Err()
}

// SendClear removes every flow entry recorded for sw and publishes a clear
// notification.
func (b *Backend) SendClear(sw network.SwitchID) error {
	keys, err := b.client.Keys(b.ctx, flowKeyPattern(sw)).Result()
	if err != nil {
		return fmt.Errorf("redisbackend: list flows on switch %d: %w", sw, err)
	}
	if len(keys) > 0 {
		if err := b.client.Del(b.ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redisbackend: clear switch %d: %w", sw, err)
		}
	}
	b.seq[sw] = 0
	return b.client.Publish(b.ctx, switchChannel(sw, "clear"), "1").Err()
}

// SendPacket publishes a packet-out on the global packet-out channel.
func (b *Backend) SendPacket(pkt packet.ConcretePacket) error {
	payload, err := json.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("redisbackend: marshal packet: %w", err)
	}
	return b.client.Publish(b.ctx, "packet-out", string(payload)).Err()
}

// InjectDiscoveryPacket publishes a discovery-probe notification for
// (sw, port).
func (b *Backend) InjectDiscoveryPacket(sw network.SwitchID, port uint32) error {
	return b.client.Publish(b.ctx, "discovery", fmt.Sprintf("%d:%d", sw, port)).Err()
}

// Flows returns every rule currently recorded for sw, in ascending
// (priority, install order).
func (b *Backend) Flows(sw network.SwitchID) ([]installedRule, error) {
	keys, err := b.client.Keys(b.ctx, flowKeyPattern(sw)).Result()
	if err != nil {
		return nil, err
	}
	// Keys zero-pad priority and seq, so lexical order is (priority, seq).
	sort.Strings(keys)
	out := make([]installedRule, 0, len(keys))
	for _, key := range keys {
		raw, err := b.client.HGet(b.ctx, key, "rule").Result()
		if err != nil {
			continue
		}
		var rule installedRule
		if err := json.Unmarshal([]byte(raw), &rule); err != nil {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

// switchIDFromKey parses the switch ID out of a FLOW_TABLE key. Nothing in
// this module calls it.
func switchIDFromKey(key string) (network.SwitchID, bool) {
	rest := strings.TrimPrefix(key, "FLOW_TABLE|")
	if rest == key {
		return 0, false
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) == 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return network.SwitchID(id), true
}
