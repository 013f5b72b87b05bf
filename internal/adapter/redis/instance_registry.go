package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/agentpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// instanceStaleAfter is how many missed heartbeats make an instance inactive.
const instanceStaleAfter = 3

// InstanceRegistry lets relay instances sharing a Redis announce themselves
// and their open stream count in one hash.
type InstanceRegistry struct {
	rdb        *goredis.Client
	key        string
	instanceID string
	version    string
	interval   time.Duration
	clock      clockwork.Clock
	streams    func() int
}

func NewInstanceRegistry(rdb *goredis.Client, key, instanceID, version string, interval time.Duration, clock clockwork.Clock, streams func() int) *InstanceRegistry {
	return &InstanceRegistry{
		rdb:        rdb,
		key:        key,
		instanceID: instanceID,
		version:    version,
		interval:   interval,
		clock:      clock,
		streams:    streams,
	}
}

// Run registers immediately, refreshes the entry every interval and removes it
// once ctx is cancelled.
func (r *InstanceRegistry) Run(ctx context.Context) {
	r.register(ctx)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.register(ctx)
		case <-ctx.Done():
			r.unregister()
			return
		}
	}
}

func (r *InstanceRegistry) register(ctx context.Context) {
	data, err := json.Marshal(domain.Instance{
		ID:            r.instanceID,
		Version:       r.version,
		ActiveStreams: r.streams(),
		Timestamp:     r.clock.Now().Unix(),
	})
	if err != nil {
		return
	}

	if err := r.rdb.HSet(ctx, r.key, r.instanceID, data).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to register instance", "instance_id", r.instanceID, "error", err)
	}
}

func (r *InstanceRegistry) unregister() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	if err := r.rdb.HDel(ctx, r.key, r.instanceID).Err(); err != nil {
		slog.Warn("Failed to unregister instance", "instance_id", r.instanceID, "error", err)
	}
}

// Instances returns the instances that reported within the last three
// intervals, ordered by ID.
func (r *InstanceRegistry) Instances(ctx context.Context) ([]domain.Instance, error) {
	entries, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read instances from %s: %w", r.key, err)
	}

	cutoff := r.clock.Now().Add(-instanceStaleAfter * r.interval).Unix()
	infos := make([]domain.Instance, 0, len(entries))
	for _, data := range entries {
		var info domain.Instance
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			continue
		}
		if info.Timestamp >= cutoff {
			infos = append(infos, info)
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}
