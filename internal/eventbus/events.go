package eventbus

// Event types published by msgwatch.
const (
	NotificationDelivered = "notification.delivered"
	NotificationFailed    = "notification.failed"
	CacheEvicted          = "cache.evicted"
	ConfigReloaded        = "config.reloaded"
)

// Notification is the Data of NotificationDelivered and NotificationFailed.
type Notification struct {
	ID        string `json:"id"`
	Event     string `json:"event"` // "edit" or "delete"
	ScopeID   int64  `json:"scope_id"`
	MessageID int    `json:"message_id"`
	CacheHit  bool   `json:"cache_hit"`
	Path      string `json:"path,omitempty"`
}

// Eviction is the Data of CacheEvicted.
type Eviction struct {
	ScopeID int64  `json:"scope_id"`
	Count   uint64 `json:"count"`
}
