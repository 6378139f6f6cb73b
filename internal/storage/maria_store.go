package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// MariaStore реализует DocumentStore для базы данных MariaDB/MySQL.
// Использует таблицу zone_documents с парами ключ/значение.
type MariaStore struct {
	db *sql.DB
}

// NewMariaStore создает хранилище документов для MariaDB.
// Автоматически создает таблицу, если она не существует.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
//
// Возвращает:
//
//	*MariaStore - экземпляр хранилища
//	error - ошибка при подключении или создании таблицы
func NewMariaStore(dsn string) (*MariaStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	store := &MariaStore{db: db}

	if err := store.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	return store, nil
}

// createTable создает таблицу zone_documents, если она не существует.
func (s *MariaStore) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS zone_documents (
			k          VARCHAR(255) PRIMARY KEY,
			v          LONGBLOB     NOT NULL,
			updated_at TIMESTAMP    DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE    CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка создания таблицы zone_documents: %w", err)
	}
	return nil
}

// Load загружает документ
func (s *MariaStore) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM zone_documents WHERE k = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения документа %s: %w", key, err)
	}
	return data, nil
}

// Save сохраняет документ.
// Использует INSERT ... ON DUPLICATE KEY UPDATE для обновления существующих записей.
func (s *MariaStore) Save(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT INTO zone_documents (k, v)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE
			v = VALUES(v),
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, key, data); err != nil {
		return fmt.Errorf("ошибка сохранения документа %s: %w", key, err)
	}
	return nil
}

// Delete удаляет документ
func (s *MariaStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM zone_documents WHERE k = ?`, key); err != nil {
		return fmt.Errorf("ошибка удаления документа %s: %w", key, err)
	}
	return nil
}

// Keys возвращает ключи с префиксом
func (s *MariaStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT k FROM zone_documents WHERE k LIKE ? ESCAPE '\\' ORDER BY k`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления ключей %q: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close закрывает пул соединений
func (s *MariaStore) Close() error {
	return s.db.Close()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
