package store

import "context"

// FlushForTest removes every user hash written by RedisStore.
func (s *RedisStore) FlushForTest() error {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", redisScanBatches).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
