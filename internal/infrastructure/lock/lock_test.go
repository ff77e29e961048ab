package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-api/internal/infrastructure/lock"
)

type locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func lockers(t *testing.T) map[string]locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]locker{
		"memoria": lock.NewMemoryLocker(),
		"redis":   lock.NewRedisLocker(client, "test:lock:", time.Minute, zerolog.Nop()),
	}
}

func TestLocker_ExclusionMutuaPorClave(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var inside, maxInside int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := l.Lock(context.Background(), "inv-1")
					if !assert.NoError(t, err) {
						return
					}
					n := atomic.AddInt32(&inside, 1)
					for {
						m := atomic.LoadInt32(&maxInside)
						if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					unlock()
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), maxInside)
		})
	}
}

func TestLocker_ClavesDistintasSonIndependientes(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			u1, err := l.Lock(context.Background(), "inv-a")
			require.NoError(t, err)
			defer u1()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			u2, err := l.Lock(ctx, "inv-b")
			require.NoError(t, err)
			u2()
		})
	}
}

func TestLocker_RespetaContexto(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			unlock, err := l.Lock(context.Background(), "inv-x")
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
			defer cancel()
			_, err = l.Lock(ctx, "inv-x")
			assert.ErrorIs(t, err, context.DeadlineExceeded)

			unlock()
			unlock() // idempotente
			again, err := l.Lock(context.Background(), "inv-x")
			require.NoError(t, err)
			again()
		})
	}
}

func TestRedisLocker_NoLiberaCandadoAjeno(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := lock.NewRedisLocker(client, "p:", time.Minute, zerolog.Nop())

	unlock, err := l.Lock(context.Background(), "inv-1")
	require.NoError(t, err)
	// otro proceso tomó la clave tras expirar
	require.NoError(t, mr.Set("p:inv-1", "otro-token"))
	unlock()

	v, err := mr.Get("p:inv-1")
	require.NoError(t, err)
	assert.Equal(t, "otro-token", v)
}
