package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound se devuelve cuando la clave no existe en Redis
var ErrNotFound = errors.New("redis: key not found")

// RedisClient estructura para manejar conexiones con Redis
type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisClient crea una nueva instancia del cliente Redis
func NewRedisClient(addr, password string, db int) *RedisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()

	// Verificar conexión
	_, err := rdb.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("❌ Error conectando a Redis: %v", err)
	}

	log.Println("✅ Conexión exitosa a Redis")

	return &RedisClient{
		client: rdb,
		ctx:    ctx,
	}
}

// Get obtiene el valor de una clave
func (r *RedisClient) Get(key string) (string, error) {
	value, err := r.client.Get(r.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("error getting key %s: %v", key, err)
	}
	return value, nil
}

// Set guarda un valor con TTL opcional (0 = sin expiración)
func (r *RedisClient) Set(key, value string, ttl time.Duration) error {
	return r.client.Set(r.ctx, key, value, ttl).Err()
}

// Del elimina una o más claves
func (r *RedisClient) Del(keys ...string) error {
	return r.client.Del(r.ctx, keys...).Err()
}

// AddToSet agrega un miembro a un set
func (r *RedisClient) AddToSet(key, member string) error {
	return r.client.SAdd(r.ctx, key, member).Err()
}

// RemoveFromSet elimina un miembro de un set
func (r *RedisClient) RemoveFromSet(key, member string) error {
	return r.client.SRem(r.ctx, key, member).Err()
}

// GetSetMembers obtiene todos los miembros de un set
func (r *RedisClient) GetSetMembers(key string) ([]string, error) {
	members, err := r.client.SMembers(r.ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("error getting set members of %s: %v", key, err)
	}
	return members, nil
}

// IsSetMember verifica si un miembro pertenece a un set
func (r *RedisClient) IsSetMember(key, member string) (bool, error) {
	exists, err := r.client.SIsMember(r.ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("error checking membership in %s: %v", key, err)
	}
	return exists, nil
}

// GetKeysByPattern obtiene las claves que coinciden con un patrón
func (r *RedisClient) GetKeysByPattern(pattern string) ([]string, error) {
	keys, err := r.client.Keys(r.ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("error getting keys by pattern %s: %v", pattern, err)
	}
	return keys, nil
}

// Close cierra la conexión con Redis
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// HealthCheck verifica que Redis esté funcionando
func (r *RedisClient) HealthCheck() error {
	_, err := r.client.Ping(r.ctx).Result()
	if err != nil {
		return fmt.Errorf("redis health check failed: %v", err)
	}
	return nil
}
