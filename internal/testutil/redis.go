//go:build integration || e2e

// Package testutil provides Redis-backed test helpers for the
// redisbackend integration suite, adapted from the teacher's Docker-based
// test-Redis discovery.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// testRedisContainer is the Docker container name the local test harness
// starts before running integration/e2e tests.
const testRedisContainer = "pyretic-test-redis"

// RedisAddr returns the address of the test Redis container (IP:port). It
// first checks PYRETIC_TEST_REDIS_ADDR, then discovers the Docker
// container's IP.
func RedisAddr() string {
	if addr := os.Getenv("PYRETIC_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	ip := redisContainerIP()
	if ip == "" {
		return ""
	}
	return ip + ":6379"
}

func redisContainerIP() string {
	out, err := exec.Command("docker", "inspect",
		"--format", "{{range .NetworkSettings.Networks}}{{.IPAddress}}{{end}}",
		testRedisContainer).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// SkipIfNoRedis skips the test if the test Redis container is not
// reachable.
func SkipIfNoRedis(t *testing.T) {
	t.Helper()

	addr := RedisAddr()
	if addr == "" {
		t.Skip("test Redis not available: start it with docker run -d --name " + testRedisContainer + " redis:7")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test Redis not reachable at %s: %v", addr, err)
	}
}

// flowDB mirrors redisbackend's database index, kept in sync by hand since
// the constant there is unexported.
const flowDB = 8

// FlushFlowDB flushes the flow-table database, leaving every other DB
// (including whatever config/state DBs a co-located test might use)
// untouched.
func FlushFlowDB(t *testing.T, addr string) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: flowDB})
	defer client.Close()

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing flow DB: %v", err)
	}
}

// FlowKeys returns every FLOW_TABLE key currently recorded for sw, for
// assertions that want to count installed rules without decoding them.
func FlowKeys(t *testing.T, addr string, sw uint64) []string {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: flowDB})
	defer client.Close()

	keys, err := client.Keys(context.Background(), flowKeyPattern(sw)).Result()
	if err != nil {
		t.Fatalf("listing flow keys for switch %d: %v", sw, err)
	}
	return keys
}

// WaitForChannelMessage subscribes to channel and blocks until a publish
// arrives or the timeout elapses, returning the payload and whether one
// arrived in time.
func WaitForChannelMessage(t *testing.T, addr, channel string, timeout time.Duration) (string, bool) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		return "", false
	}
	return msg.Payload, true
}

func flowKeyPattern(sw uint64) string {
	return "FLOW_TABLE|" + strconv.FormatUint(sw, 10) + ":*"
}
