package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic первые байты кадра zstd
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Framed сжимает документы zstd перед записью во вложенное хранилище.
// Несжатые документы, записанные ранее, читаются как есть.
type Framed struct {
	DocumentStore
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewFramed оборачивает хранилище сжатием
func NewFramed(inner DocumentStore) (*Framed, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("создание zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("создание zstd decoder: %w", err)
	}
	return &Framed{DocumentStore: inner, encoder: encoder, decoder: decoder}, nil
}

// Load читает и распаковывает документ
func (f *Framed) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := f.DocumentStore.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	out, err := f.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("распаковка %s: %w", key, err)
	}
	return out, nil
}

// Save сжимает и записывает документ
func (f *Framed) Save(ctx context.Context, key string, data []byte) error {
	return f.DocumentStore.Save(ctx, key, f.encoder.EncodeAll(data, nil))
}

// Close закрывает кодеки и вложенное хранилище
func (f *Framed) Close() error {
	f.decoder.Close()
	if err := f.encoder.Close(); err != nil {
		return err
	}
	return f.DocumentStore.Close()
}
