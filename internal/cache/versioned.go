package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// setIfNewer stores a JSON document unless the stored one carries a higher
// "version". Commits are mirrored outside the session lock, so two of them
// can reach Redis out of order.
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, doc = pcall(cjson.decode, cur)
	if ok and type(doc) == 'table' and tonumber(doc['version'] or 0) > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// setVersioned reports whether data was written
func setVersioned(ctx context.Context, client *redis.Client, key string, data []byte, version int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	n, err := setIfNewer.Run(ctx, client, []string{key}, data, version, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
