package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/listing-service/internal/model"
)

const (
	redisPrefix  = "analytics:"
	redisDaysKey = redisPrefix + "days"
	// visitorSep joins client id and user agent into one set member. It is
	// the ASCII unit separator, which does not occur in either value.
	visitorSep = "\x1f"
)

// RedisStore keeps each bucket as a group of keys under analytics:<day>:
//
//	visits    string  INCR
//	visitors  set     SADD clientID␟userAgent
//	views     hash    HINCRBY jobID
//	clicks    hash    HINCRBY jobID
//	devices   hash    HINCRBY category
//	browsers  hash    HINCRBY category
//
// analytics:days is a sorted set of known days scored by unix time, used
// for range scans. Writes go through MULTI/EXEC.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func dayKey(day time.Time, field string) string {
	return redisPrefix + day.Format(dayLayout) + ":" + field
}

func (s *RedisStore) markDay(ctx context.Context, pipe redis.Pipeliner, day time.Time) {
	pipe.ZAddNX(ctx, redisDaysKey, redis.Z{Score: float64(day.Unix()), Member: day.Format(dayLayout)})
}

func (s *RedisStore) RecordVisit(ctx context.Context, day time.Time, v model.Visitor, device, browser string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.markDay(ctx, pipe, day)
		pipe.Incr(ctx, dayKey(day, "visits"))
		pipe.SAdd(ctx, dayKey(day, "visitors"), v.ClientID+visitorSep+v.UserAgent)
		pipe.HIncrBy(ctx, dayKey(day, "devices"), device, 1)
		pipe.HIncrBy(ctx, dayKey(day, "browsers"), browser, 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

func (s *RedisStore) IncrementJob(ctx context.Context, day time.Time, kind EventKind, jobID string) error {
	var field string
	switch kind {
	case EventView:
		field = "views"
	case EventClick:
		field = "clicks"
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.markDay(ctx, pipe, day)
		pipe.HIncrBy(ctx, dayKey(day, field), jobID, 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("increment job %s: %w", kind, err)
	}
	return nil
}

type redisDay struct {
	day      time.Time
	visits   *redis.StringCmd
	visitors *redis.StringSliceCmd
	views    *redis.MapStringStringCmd
	clicks   *redis.MapStringStringCmd
	devices  *redis.MapStringStringCmd
	browsers *redis.MapStringStringCmd
}

func (s *RedisStore) Buckets(ctx context.Context, from, to time.Time) ([]model.Bucket, error) {
	days, err := s.rdb.ZRangeByScore(ctx, redisDaysKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(from.Unix(), 10),
		Max: strconv.FormatInt(to.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range days: %w", err)
	}
	buckets := make([]model.Bucket, 0, len(days))
	if len(days) == 0 {
		return buckets, nil
	}

	cmds := make([]redisDay, 0, len(days))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, d := range days {
			day, err := time.Parse(dayLayout, d)
			if err != nil {
				return fmt.Errorf("bad day member %q: %w", d, err)
			}
			cmds = append(cmds, redisDay{
				day:      day,
				visits:   pipe.Get(ctx, dayKey(day, "visits")),
				visitors: pipe.SMembers(ctx, dayKey(day, "visitors")),
				views:    pipe.HGetAll(ctx, dayKey(day, "views")),
				clicks:   pipe.HGetAll(ctx, dayKey(day, "clicks")),
				devices:  pipe.HGetAll(ctx, dayKey(day, "devices")),
				browsers: pipe.HGetAll(ctx, dayKey(day, "browsers")),
			})
		}
		return nil
	})
	// A day with job events but no visits has no visits key.
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("load buckets: %w", err)
	}

	for _, c := range cmds {
		b := model.NewBucket(c.day)
		if n, err := c.visits.Int64(); err == nil {
			b.WebsiteVisits = n
		} else if err != redis.Nil {
			return nil, fmt.Errorf("visits %s: %w", c.day.Format(dayLayout), err)
		}
		for _, m := range c.visitors.Val() {
			client, agent, _ := strings.Cut(m, visitorSep)
			b.UniqueVisitors = append(b.UniqueVisitors, model.Visitor{ClientID: client, UserAgent: agent})
		}
		for _, pair := range []struct {
			dst map[string]int64
			cmd *redis.MapStringStringCmd
		}{
			{b.JobViews, c.views},
			{b.JobClicks, c.clicks},
			{b.DeviceInfo, c.devices},
			{b.BrowserInfo, c.browsers},
		} {
			if err := parseCounts(pair.dst, pair.cmd.Val()); err != nil {
				return nil, fmt.Errorf("counts %s: %w", c.day.Format(dayLayout), err)
			}
		}
		buckets = append(buckets, *b)
	}
	return buckets, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func parseCounts(dst map[string]int64, src map[string]string) error {
	for k, v := range src {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		dst[k] = n
	}
	return nil
}
