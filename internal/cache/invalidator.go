// Package cache рассылает инвалидации кэша локаций зон между узлами.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/shopzones/internal/logging"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// InvalidationHandler обрабатывает инвалидацию зоны, пришедшую с другого узла.
type InvalidationHandler func(zoneID string) error

// NATSInvalidator реализует index.Invalidator используя NATS Pub/Sub.
// Каждое изменение зоны на одном узле сбрасывает записи кэша локаций этой зоны на остальных.
//
// Особенности:
// - Автоматическое переподключение при сбоях
// - Дедупликация сообщений
// - Собственные сообщения узла игнорируются
type NATSInvalidator struct {
	conn    *nats.Conn
	config  *InvalidatorConfig
	subject string
	nodeID  string
	logger  *logging.Logger

	subscription *nats.Subscription
	handler      InvalidationHandler
	subMu        sync.Mutex

	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	closeConn func()

	// Дедупликация
	recentKeys map[string]time.Time
	keysMutex  sync.RWMutex

	// Метрики (используем atomic для thread safety)
	publishedCount int64
	receivedCount  int64
	errorsCount    int64
}

// InvalidatorConfig содержит конфигурацию для NATS invalidator.
type InvalidatorConfig struct {
	NATSURL string
	Subject string
	// NodeID идентификатор узла; пустой заменяется случайным uuid
	NodeID string

	MaxReconnects int
	ReconnectWait time.Duration
	DedupeWindow  time.Duration
}

// InvalidationMessage сообщение об изменении зоны.
type InvalidationMessage struct {
	ZoneID    string    `json:"zone_id"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

func (c *InvalidatorConfig) applyDefaults() {
	if c.Subject == "" {
		c.Subject = "zones.cache.invalidation"
	}
	if c.NodeID == "" {
		c.NodeID = uuid.NewString()
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 10
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.DedupeWindow == 0 {
		c.DedupeWindow = 2 * time.Second
	}
}

// NewNATSInvalidator подключается к NATS.
//
// Параметры:
//
//	config - конфигурация NATS соединения
//	logger - логгер компонента (nil - логгер по умолчанию)
//
// Возвращает:
//
//	*NATSInvalidator - готовый к использованию invalidator
//	error - ошибка подключения
func NewNATSInvalidator(config *InvalidatorConfig, logger *logging.Logger) (*NATSInvalidator, error) {
	config.applyDefaults()
	log := logging.OrDefault(logger).With("cache")

	opts := []nats.Option{
		nats.Name("shopzones-" + config.NodeID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n := newInvalidator(config, log)
	n.conn = conn
	n.closeConn = conn.Close
	n.startDedupeCleanup()

	log.Info("NATS invalidator initialized: %s (subject: %s, node: %s)", config.NATSURL, config.Subject, config.NodeID)
	return n, nil
}

func newInvalidator(config *InvalidatorConfig, logger *logging.Logger) *NATSInvalidator {
	config.applyDefaults()
	return &NATSInvalidator{
		config:     config,
		subject:    config.Subject,
		nodeID:     config.NodeID,
		logger:     logger,
		stopCh:     make(chan struct{}),
		recentKeys: make(map[string]time.Time),
		closeConn:  func() {},
	}
}

// NodeID идентификатор узла
func (n *NATSInvalidator) NodeID() string {
	return n.nodeID
}

// InvalidateZone публикует изменение зоны для остальных узлов.
func (n *NATSInvalidator) InvalidateZone(zoneID string) error {
	if n.isDuplicate(zoneID) {
		n.logger.Debug("Skipping duplicate invalidation for zone: %s", zoneID)
		return nil
	}

	data, err := json.Marshal(InvalidationMessage{
		ZoneID:    zoneID,
		Timestamp: time.Now(),
		NodeID:    n.nodeID,
	})
	if err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}

	n.recordKey(zoneID)
	atomic.AddInt64(&n.publishedCount, 1)
	return nil
}

// Subscribe подписывается на инвалидации других узлов.
func (n *NATSInvalidator) Subscribe(handler InvalidationHandler) error {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	if n.subscription != nil {
		return fmt.Errorf("already subscribed to invalidations")
	}

	n.handler = handler
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.handleMessage(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}
	n.subscription = sub

	n.logger.Info("Subscribed to zone invalidations on subject: %s", n.subject)
	return nil
}

// Close отписывается и закрывает соединение.
func (n *NATSInvalidator) Close() error {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		n.wg.Wait()

		n.subMu.Lock()
		if n.subscription != nil {
			if err := n.subscription.Unsubscribe(); err != nil {
				n.logger.Warn("Failed to unsubscribe from invalidations: %v", err)
			}
			n.subscription = nil
		}
		n.subMu.Unlock()

		n.closeConn()
		n.logger.Info("NATS invalidator closed")
	})
	return nil
}

// Stats счетчики публикаций, приемов и ошибок.
func (n *NATSInvalidator) Stats() (published, received, errors int64) {
	return atomic.LoadInt64(&n.publishedCount),
		atomic.LoadInt64(&n.receivedCount),
		atomic.LoadInt64(&n.errorsCount)
}

// handleMessage обрабатывает входящее сообщение об инвалидации.
func (n *NATSInvalidator) handleMessage(data []byte) {
	atomic.AddInt64(&n.receivedCount, 1)

	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		n.logger.Error("Failed to unmarshal invalidation message: %v", err)
		return
	}

	if msg.NodeID == n.nodeID {
		return
	}
	if n.isDuplicate(msg.ZoneID) {
		n.logger.Debug("Ignoring duplicate invalidation for zone: %s", msg.ZoneID)
		return
	}
	n.recordKey(msg.ZoneID)

	if n.handler == nil {
		return
	}
	if err := n.handler(msg.ZoneID); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		n.logger.Error("Invalidation handler failed for zone %s: %v", msg.ZoneID, err)
	}
}

// isDuplicate проверяет, встречалась ли зона в окне дедупликации.
func (n *NATSInvalidator) isDuplicate(key string) bool {
	n.keysMutex.RLock()
	defer n.keysMutex.RUnlock()

	lastSeen, exists := n.recentKeys[key]
	if !exists {
		return false
	}
	return time.Since(lastSeen) < n.config.DedupeWindow
}

func (n *NATSInvalidator) recordKey(key string) {
	n.keysMutex.Lock()
	defer n.keysMutex.Unlock()
	n.recentKeys[key] = time.Now()
}

// startDedupeCleanup запускает периодическую очистку дедупликации.
func (n *NATSInvalidator) startDedupeCleanup() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ticker := time.NewTicker(n.config.DedupeWindow)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n.cleanupDedupe()
			case <-n.stopCh:
				return
			}
		}
	}()
}

// cleanupDedupe удаляет старые записи из дедупликации.
func (n *NATSInvalidator) cleanupDedupe() {
	n.keysMutex.Lock()
	defer n.keysMutex.Unlock()

	now := time.Now()
	for key, ts := range n.recentKeys {
		if now.Sub(ts) > n.config.DedupeWindow {
			delete(n.recentKeys, key)
		}
	}
}
