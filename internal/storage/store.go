// Package storage хранит документы зон и резервных копий по ключу.
package storage

import (
	"context"
	"fmt"

	"github.com/annel0/shopzones/internal/config"
	"github.com/annel0/shopzones/internal/zone"
)

// ErrNotFound документ с таким ключом отсутствует
var ErrNotFound = fmt.Errorf("документ %w", zone.ErrNotFound)

// DocumentStore определяет интерфейс хранилища документов по ключу.
// Ключи имеют вид "<namespace>:<id>"; содержимое непрозрачно для хранилища.
type DocumentStore interface {
	// Load загружает документ.
	// Возвращает:
	//   []byte - содержимое документа
	//   error - ErrNotFound, если ключа нет, или ошибка backend'а
	Load(ctx context.Context, key string) ([]byte, error)

	// Save сохраняет документ, заменяя предыдущее содержимое.
	Save(ctx context.Context, key string, data []byte) error

	// Delete удаляет документ. Отсутствие ключа не считается ошибкой.
	Delete(ctx context.Context, key string) error

	// Keys возвращает ключи с указанным префиксом в порядке возрастания.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close освобождает соединения и файлы.
	Close() error
}

// Key формирует ключ документа
func Key(namespace, id string) string {
	return namespace + ":" + id
}

// Open создает хранилище по конфигурации
func Open(cfg config.StorageConfig) (DocumentStore, error) {
	switch backend := cfg.GetBackend(); backend {
	case "badger":
		return NewBadgerStore(cfg.Path)
	case "redis":
		return NewRedisStore(&RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case "mongo":
		return NewMongoStore(MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
	case "maria", "mysql":
		return NewMariaStore(cfg.Maria.DSN)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("неизвестный backend хранилища %q", backend)
	}
}
