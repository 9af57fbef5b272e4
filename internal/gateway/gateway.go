// Package gateway holds the ingestion logic bots reach over the network:
// token authentication, the liveness state machine, domain upserts and the
// notification escalation policy. Both transports call into this package
// and never re-implement validation or transitions.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"botfleet/internal/domain"
	"botfleet/internal/notify"
	"botfleet/internal/repo"
)

// ErrUnauthorized marks a missing, unknown or revoked token. Transports
// translate it into their own failure envelope; it is never fatal.
var ErrUnauthorized = errors.New("invalid or missing token")

// ValidationError rejects a request before any mutation happens.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type Gateway struct {
	DB     *sql.DB
	Repo   repo.Repo
	Notify *notify.Notifier
	Logger *log.Logger
	Now    func() time.Time
}

func New(db *sql.DB, notifier *notify.Notifier) Gateway {
	return Gateway{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Notify: notifier,
		Logger: log.Default(),
		Now:    time.Now,
	}
}

func (g Gateway) now() string {
	if g.Now != nil {
		return g.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// Authenticate resolves a bearer credential, treating inactive tokens
// exactly like nonexistent ones.
func (g Gateway) Authenticate(ctx context.Context, token string) (domain.TokenRef, error) {
	if token == "" {
		return domain.TokenRef{}, ErrUnauthorized
	}
	ref, err := g.Repo.ResolveToken(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.TokenRef{}, ErrUnauthorized
	}
	if err != nil {
		return domain.TokenRef{}, err
	}
	return ref, nil
}

// Heartbeat moves the bot online, stamps the heartbeat and increments the
// operation counter, regardless of prior state.
func (g Gateway) Heartbeat(ctx context.Context, token, activity string) (int64, error) {
	ref, err := g.Authenticate(ctx, token)
	if err != nil {
		return 0, err
	}
	if err := g.Repo.RecordHeartbeat(ctx, ref.BotID, activity, g.now()); err != nil {
		return 0, err
	}
	return ref.BotID, nil
}

// SetStatus writes the caller-supplied status verbatim. Transitions into
// offline or error escalate through the notification path.
func (g Gateway) SetStatus(ctx context.Context, token, status, activity string) (int64, error) {
	ref, err := g.Authenticate(ctx, token)
	if err != nil {
		return 0, err
	}
	if err := g.applyStatus(ctx, ref.BotID, status, activity); err != nil {
		return 0, err
	}
	return ref.BotID, nil
}

// SetBotStatusByID is the operator-trust entry to the same state machine;
// the UI and CLI share it so bot- and operator-initiated transitions obey
// identical rules.
func (g Gateway) SetBotStatusByID(ctx context.Context, botID int64, status, activity string) error {
	return g.applyStatus(ctx, botID, status, activity)
}

func (g Gateway) applyStatus(ctx context.Context, botID int64, status, activity string) error {
	if !domain.ValidEnum(status, domain.BotStatuses) {
		return invalid("status must be one of online, offline, error, idle")
	}
	if err := g.Repo.UpdateBotStatus(ctx, botID, status, activity, g.now()); err != nil {
		return err
	}
	if status != domain.BotOffline && status != domain.BotError {
		return nil
	}
	bot, err := g.Repo.GetBot(ctx, botID)
	if err != nil {
		// The row vanished between update and read; nothing to escalate.
		g.Logger.Printf("gateway: bot %d not found for down notification: %v", botID, err)
		return nil
	}
	word := "went offline"
	if status == domain.BotError {
		word = "reported an error"
	}
	lastActivity := activity
	if lastActivity == "" {
		lastActivity = "unknown"
	}
	return g.Notify.Emit(ctx, domain.Notification{
		Type:    domain.NotifyBotDown,
		Title:   fmt.Sprintf("Bot %s %s", bot.Name, word),
		Message: fmt.Sprintf("Status %s reported for bot %q (%s). Last activity: %s", status, bot.Name, bot.Type, lastActivity),
	}, true)
}

// AppendLog stores one diagnostic line. Error-level lines always emit a
// critical notification; the bot lookup backing its title never fails the
// call, falling back to the numeric id.
func (g Gateway) AppendLog(ctx context.Context, token, level, message, metadata string) error {
	ref, err := g.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	if level == "" || message == "" {
		return invalid("level and message are required")
	}
	if !domain.ValidEnum(level, domain.LogLevels) {
		return invalid("level must be one of info, warn, error, debug")
	}
	if err := g.Repo.InsertBotLog(ctx, domain.BotLog{
		BotID:     ref.BotID,
		Level:     level,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: g.now(),
	}); err != nil {
		return err
	}
	if level != "error" {
		return nil
	}
	name := strconv.FormatInt(ref.BotID, 10)
	if bot, err := g.Repo.GetBot(ctx, ref.BotID); err == nil {
		name = bot.Name
	}
	return g.Notify.Emit(ctx, domain.Notification{
		Type:     domain.NotifyErrorCritical,
		Title:    fmt.Sprintf("Critical error: %s", name),
		Message:  message,
		Metadata: metadata,
	}, false)
}

// MediaInput is the enqueue payload shared by both trust levels.
type MediaInput struct {
	SourceURL     string
	ThumbnailURL  string
	MediaType     string
	Category      string
	Source        string
	TargetChannel string
}

func (in *MediaInput) validate() error {
	if in.SourceURL == "" {
		return invalid("sourceUrl is required")
	}
	u, err := url.Parse(in.SourceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("sourceUrl must be a well-formed URL")
	}
	if in.MediaType == "" {
		in.MediaType = "video"
	}
	if !domain.ValidEnum(in.MediaType, domain.MediaTypes) {
		return invalid("mediaType must be one of video, image, gif")
	}
	if in.Source == "" {
		in.Source = "erome"
	}
	if !domain.ValidEnum(in.Source, domain.MediaSources) {
		return invalid("source must be one of erome, telegram_clone, manual")
	}
	return nil
}

// EnqueueMedia inserts a pending queue entry tagged with the reporting
// bot. Bot-originated additions are silent; only the operator path emits
// a feed entry.
func (g Gateway) EnqueueMedia(ctx context.Context, token string, in MediaInput) (domain.MediaItem, error) {
	ref, err := g.Authenticate(ctx, token)
	if err != nil {
		return domain.MediaItem{}, err
	}
	if err := in.validate(); err != nil {
		return domain.MediaItem{}, err
	}
	botID := ref.BotID
	return g.Repo.InsertMedia(ctx, domain.MediaItem{
		SourceURL:     in.SourceURL,
		ThumbnailURL:  in.ThumbnailURL,
		MediaType:     in.MediaType,
		Category:      in.Category,
		Source:        in.Source,
		SourceBotID:   &botID,
		Status:        "pending",
		TargetChannel: in.TargetChannel,
		CreatedAt:     g.now(),
	})
}

// EnqueueMediaAsOperator is the UI-originated variant; unlike the bot path
// it announces the new entry on the notification feed.
func (g Gateway) EnqueueMediaAsOperator(ctx context.Context, in MediaInput) (domain.MediaItem, error) {
	if err := in.validate(); err != nil {
		return domain.MediaItem{}, err
	}
	item, err := g.Repo.InsertMedia(ctx, domain.MediaItem{
		SourceURL:     in.SourceURL,
		ThumbnailURL:  in.ThumbnailURL,
		MediaType:     in.MediaType,
		Category:      in.Category,
		Source:        in.Source,
		Status:        "pending",
		TargetChannel: in.TargetChannel,
		CreatedAt:     g.now(),
	})
	if err != nil {
		return domain.MediaItem{}, err
	}
	category := in.Category
	if category == "" {
		category = "uncategorized"
	}
	err = g.Notify.Emit(ctx, domain.Notification{
		Type:    domain.NotifyMediaPosted,
		Title:   "New media queued",
		Message: fmt.Sprintf("Category: %s | Source: %s", category, in.Source),
	}, false)
	return item, err
}

// PendingMedia returns the oldest pending queue entries.
func (g Gateway) PendingMedia(ctx context.Context, token string, limit int) ([]domain.MediaItem, error) {
	if _, err := g.Authenticate(ctx, token); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	return g.Repo.ListMedia(ctx, "pending", limit)
}

// UpdateMediaStatus patches a queue entry the bot has processed.
func (g Gateway) UpdateMediaStatus(ctx context.Context, token string, id int64, status string) error {
	if _, err := g.Authenticate(ctx, token); err != nil {
		return err
	}
	if status == "" {
		return invalid("status is required")
	}
	if !domain.ValidEnum(status, domain.MediaStatuses) {
		return invalid("status must be one of pending, posted, failed, skipped")
	}
	return g.Repo.UpdateMediaStatus(ctx, id, status, g.now())
}

// SubscriberInput is the upsert payload. Bot-originated calls force status
// active; the operator variant picks its own status.
type SubscriberInput struct {
	TelegramID       string
	TelegramUsername string
	Name             string
	Plan             string
	Status           string
	ExpiresAt        string
}

func (in *SubscriberInput) validate() error {
	if in.TelegramID == "" {
		return invalid("telegramId is required")
	}
	if in.Plan == "" {
		in.Plan = "basic"
	}
	if !domain.ValidEnum(in.Plan, domain.SubscriberPlans) {
		return invalid("plan must be one of basic, premium, vip")
	}
	if in.ExpiresAt != "" {
		if _, err := time.Parse(time.RFC3339, in.ExpiresAt); err != nil {
			return invalid("expiresAt must be an RFC 3339 timestamp")
		}
	}
	return nil
}

// UpsertSubscriber applies the bot-originated upsert: a bot report always
// marks the subscriber active.
func (g Gateway) UpsertSubscriber(ctx context.Context, token string, in SubscriberInput) (domain.Subscriber, error) {
	if _, err := g.Authenticate(ctx, token); err != nil {
		return domain.Subscriber{}, err
	}
	in.Status = "active"
	return g.upsertSubscriber(ctx, in, "New subscriber via bot")
}

// UpsertSubscriberAsOperator keeps the caller-chosen status, defaulting to
// pending for brand-new rows.
func (g Gateway) UpsertSubscriberAsOperator(ctx context.Context, in SubscriberInput) (domain.Subscriber, error) {
	if in.Status == "" {
		in.Status = "pending"
	}
	if !domain.ValidEnum(in.Status, domain.SubscriberStatuses) {
		return domain.Subscriber{}, invalid("status must be one of active, expired, banned, pending")
	}
	return g.upsertSubscriber(ctx, in, "New subscriber")
}

func (g Gateway) upsertSubscriber(ctx context.Context, in SubscriberInput, titlePrefix string) (domain.Subscriber, error) {
	if err := in.validate(); err != nil {
		return domain.Subscriber{}, err
	}
	now := g.now()
	sub := domain.Subscriber{
		TelegramID:       in.TelegramID,
		TelegramUsername: in.TelegramUsername,
		Name:             in.Name,
		Plan:             in.Plan,
		Status:           in.Status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.ExpiresAt != "" {
		sub.ExpiresAt = &in.ExpiresAt
	}
	stored, err := g.Repo.UpsertSubscriber(ctx, sub)
	if err != nil {
		return domain.Subscriber{}, err
	}
	who := in.Name
	if who == "" {
		who = in.TelegramUsername
	}
	if who == "" {
		who = in.TelegramID
	}
	err = g.Notify.Emit(ctx, domain.Notification{
		Type:    domain.NotifyNewSubscriber,
		Title:   fmt.Sprintf("%s: %s", titlePrefix, who),
		Message: fmt.Sprintf("Plan: %s | Status: %s", in.Plan, in.Status),
	}, false)
	return stored, err
}

// AccountInput is the social account creation payload.
type AccountInput struct {
	Platform    string
	Username    string
	Email       string
	PasswordEnc string
	Phone       string
	ProxyUsed   string
}

// CreateSocialAccount inserts a freshly farmed account and announces it.
func (g Gateway) CreateSocialAccount(ctx context.Context, token string, in AccountInput) (domain.SocialAccount, error) {
	ref, err := g.Authenticate(ctx, token)
	if err != nil {
		return domain.SocialAccount{}, err
	}
	if in.Platform == "" || in.Username == "" {
		return domain.SocialAccount{}, invalid("platform and username are required")
	}
	if !domain.ValidEnum(in.Platform, domain.SocialPlatforms) {
		return domain.SocialAccount{}, invalid("platform must be one of twitter, instagram")
	}
	now := g.now()
	account, err := g.Repo.InsertSocialAccount(ctx, domain.SocialAccount{
		Platform:    in.Platform,
		Username:    in.Username,
		Email:       in.Email,
		PasswordEnc: in.PasswordEnc,
		Phone:       in.Phone,
		ProxyUsed:   in.ProxyUsed,
		Status:      "unverified",
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.SocialAccount{}, err
	}
	err = g.Notify.Emit(ctx, domain.Notification{
		Type:    domain.NotifyAccountCreated,
		Title:   fmt.Sprintf("New account created: @%s", in.Username),
		Message: fmt.Sprintf("Platform: %s | Bot ID: %d", in.Platform, ref.BotID),
	}, false)
	return account, err
}

// ListActiveSocialAccounts is read-only but still requires a valid token.
func (g Gateway) ListActiveSocialAccounts(ctx context.Context, token string) ([]domain.SocialAccount, error) {
	if _, err := g.Authenticate(ctx, token); err != nil {
		return nil, err
	}
	return g.Repo.ListSocialAccounts(ctx, "active", 0)
}

// BotCreateOptions are the operator parameters for registering a bot.
type BotCreateOptions struct {
	Name        string
	Type        string
	Description string
	Config      string
	Hosting     string
}

// CreateBot registers a bot offline with zeroed counters.
func (g Gateway) CreateBot(ctx context.Context, opts BotCreateOptions) (domain.Bot, error) {
	if opts.Name == "" {
		return domain.Bot{}, invalid("name is required")
	}
	if !domain.ValidEnum(opts.Type, domain.BotTypes) {
		return domain.Bot{}, invalid("unknown bot type %q", opts.Type)
	}
	if opts.Hosting == "" {
		opts.Hosting = "vps"
	}
	if !domain.ValidEnum(opts.Hosting, domain.HostingKinds) {
		return domain.Bot{}, invalid("hosting must be one of discloud, vps, local")
	}
	now := g.now()
	return g.Repo.InsertBot(ctx, domain.Bot{
		Name:        opts.Name,
		Type:        opts.Type,
		Status:      domain.BotOffline,
		Description: opts.Description,
		Config:      opts.Config,
		Hosting:     opts.Hosting,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// PaymentInput creates a pending payment record.
type PaymentInput struct {
	SubscriberID *int64
	TelegramID   string
	Amount       string
	Currency     string
	Gateway      string
	TxID         string
	Plan         string
	ExpiresAt    string
}

func (g Gateway) CreatePayment(ctx context.Context, in PaymentInput) (domain.Payment, error) {
	if in.Amount == "" {
		return domain.Payment{}, invalid("amount is required")
	}
	if in.Currency == "" {
		in.Currency = "BRL"
	}
	if in.Gateway == "" {
		in.Gateway = "syncpay"
	}
	if in.Plan == "" {
		in.Plan = "basic"
	}
	if !domain.ValidEnum(in.Plan, domain.SubscriberPlans) {
		return domain.Payment{}, invalid("plan must be one of basic, premium, vip")
	}
	p := domain.Payment{
		SubscriberID: in.SubscriberID,
		TelegramID:   in.TelegramID,
		Amount:       in.Amount,
		Currency:     in.Currency,
		Status:       "pending",
		Gateway:      in.Gateway,
		TxID:         in.TxID,
		Plan:         in.Plan,
		CreatedAt:    g.now(),
	}
	if in.ExpiresAt != "" {
		p.ExpiresAt = &in.ExpiresAt
	}
	return g.Repo.InsertPayment(ctx, p)
}

// MarkPaymentStatus patches a payment. Confirmation is the one non-liveness
// event that also reaches the owner channel.
func (g Gateway) MarkPaymentStatus(ctx context.Context, id int64, status string) error {
	if !domain.ValidEnum(status, domain.PaymentStatuses) {
		return invalid("status must be one of pending, paid, expired, refunded")
	}
	if err := g.Repo.UpdatePaymentStatus(ctx, id, status, g.now()); err != nil {
		return err
	}
	if status != "paid" {
		return nil
	}
	payment, err := g.Repo.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	return g.Notify.Emit(ctx, domain.Notification{
		Type:    domain.NotifyPaymentReceived,
		Title:   "Payment received",
		Message: fmt.Sprintf("Payment #%d confirmed via %s", id, payment.Gateway),
	}, true)
}
