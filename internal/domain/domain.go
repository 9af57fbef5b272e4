package domain

// Bot statuses.
const (
	BotOnline  = "online"
	BotOffline = "offline"
	BotError   = "error"
	BotIdle    = "idle"
)

// Notification types.
const (
	NotifyBotDown         = "bot_down"
	NotifyPaymentReceived = "payment_received"
	NotifyErrorCritical   = "error_critical"
	NotifyNewSubscriber   = "new_subscriber"
	NotifyMediaPosted     = "media_posted"
	NotifyAccountCreated  = "account_created"
)

var BotStatuses = []string{BotOnline, BotOffline, BotError, BotIdle}

var BotTypes = []string{
	"payment", "media_capture", "distributor", "cloner",
	"account_creator", "social_poster", "monitor", "vip_filler",
}

var HostingKinds = []string{"discloud", "vps", "local"}

var LogLevels = []string{"info", "warn", "error", "debug"}

var MediaStatuses = []string{"pending", "posted", "failed", "skipped"}

var MediaTypes = []string{"video", "image", "gif"}

var MediaSources = []string{"erome", "telegram_clone", "manual"}

var SubscriberPlans = []string{"basic", "premium", "vip"}

var SubscriberStatuses = []string{"active", "expired", "banned", "pending"}

var SocialPlatforms = []string{"twitter", "instagram"}

var SocialAccountStatuses = []string{"active", "banned", "suspended", "unverified", "error"}

var PaymentStatuses = []string{"pending", "paid", "expired", "refunded"}

// ValidEnum reports whether v is one of the allowed values.
func ValidEnum(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Bot is the registry record for one managed automation process.
type Bot struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Type            string  `json:"type" enum:"payment,media_capture,distributor,cloner,account_creator,social_poster,monitor,vip_filler"`
	Status          string  `json:"status" enum:"online,offline,error,idle"`
	Description     string  `json:"description,omitempty"`
	Config          string  `json:"config,omitempty"`
	LastHeartbeat   *string `json:"last_heartbeat,omitempty" format:"date-time"`
	LastActivity    string  `json:"last_activity,omitempty"`
	ErrorCount      int64   `json:"error_count"`
	TotalOperations int64   `json:"total_operations"`
	Hosting         string  `json:"hosting" enum:"discloud,vps,local"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	UpdatedAt       string  `json:"updated_at" format:"date-time"`
}

// APIToken binds a bearer secret to exactly one bot. Revoked rows are
// retained for audit and never authenticate again.
type APIToken struct {
	ID         int64   `json:"id"`
	BotID      int64   `json:"bot_id"`
	Name       string  `json:"name"`
	Token      string  `json:"token"`
	IsActive   bool    `json:"is_active"`
	LastUsedAt *string `json:"last_used_at,omitempty" format:"date-time"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

// TokenRef is the resolution of a presented bearer secret.
type TokenRef struct {
	BotID   int64
	TokenID int64
}

// BotLog is an append-only line of bot-reported diagnostic text.
type BotLog struct {
	ID        int64  `json:"id"`
	BotID     int64  `json:"bot_id"`
	Level     string `json:"level" enum:"info,warn,error,debug"`
	Message   string `json:"message"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Notification is an append-only feed entry for operators.
type Notification struct {
	ID        int64  `json:"id"`
	Type      string `json:"type" enum:"bot_down,payment_received,error_critical,new_subscriber,media_posted,account_created"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Metadata  string `json:"metadata,omitempty"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// MediaItem is one entry in the posting queue.
type MediaItem struct {
	ID            int64   `json:"id"`
	SourceURL     string  `json:"source_url"`
	ThumbnailURL  string  `json:"thumbnail_url,omitempty"`
	MediaType     string  `json:"media_type" enum:"video,image,gif"`
	Category      string  `json:"category,omitempty"`
	Source        string  `json:"source" enum:"erome,telegram_clone,manual"`
	SourceBotID   *int64  `json:"source_bot_id,omitempty"`
	Status        string  `json:"status" enum:"pending,posted,failed,skipped"`
	TargetChannel string  `json:"target_channel,omitempty"`
	PostedAt      *string `json:"posted_at,omitempty" format:"date-time"`
	RetryCount    int64   `json:"retry_count"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

// Subscriber is keyed on the external Telegram id; bot-originated upserts
// always force status active.
type Subscriber struct {
	ID               int64   `json:"id"`
	TelegramID       string  `json:"telegram_id"`
	TelegramUsername string  `json:"telegram_username,omitempty"`
	Name             string  `json:"name,omitempty"`
	Plan             string  `json:"plan" enum:"basic,premium,vip"`
	Status           string  `json:"status" enum:"active,expired,banned,pending"`
	ExpiresAt        *string `json:"expires_at,omitempty" format:"date-time"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

type SocialAccount struct {
	ID             int64   `json:"id"`
	Platform       string  `json:"platform" enum:"twitter,instagram"`
	Username       string  `json:"username"`
	Email          string  `json:"email,omitempty"`
	PasswordEnc    string  `json:"password_enc,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	ProxyUsed      string  `json:"proxy_used,omitempty"`
	Status         string  `json:"status" enum:"active,banned,suspended,unverified,error"`
	FollowersCount int64   `json:"followers_count"`
	PostsCount     int64   `json:"posts_count"`
	LastPostAt     *string `json:"last_post_at,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

type Payment struct {
	ID           int64   `json:"id"`
	SubscriberID *int64  `json:"subscriber_id,omitempty"`
	TelegramID   string  `json:"telegram_id,omitempty"`
	Amount       string  `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status" enum:"pending,paid,expired,refunded"`
	Gateway      string  `json:"gateway"`
	TxID         string  `json:"tx_id,omitempty"`
	Plan         string  `json:"plan" enum:"basic,premium,vip"`
	ExpiresAt    *string `json:"expires_at,omitempty" format:"date-time"`
	PaidAt       *string `json:"paid_at,omitempty" format:"date-time"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}
