package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"testing"
	"time"

	"botfleet/internal/db"
	"botfleet/internal/domain"
	"botfleet/internal/migrate"
	"botfleet/internal/notify"
	"botfleet/internal/repo"
)

var testClock = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestGateway(t *testing.T) Gateway {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	notifier := notify.New(repo.Repo{DB: conn}, nil, 0, log.Default())
	t.Cleanup(notifier.Close)
	gw := New(conn, notifier)
	gw.Now = func() time.Time { return testClock }
	return gw
}

func seedBotWithToken(t *testing.T, gw Gateway, name string) (domain.Bot, domain.APIToken) {
	t.Helper()
	ctx := context.Background()
	bot, err := gw.CreateBot(ctx, BotCreateOptions{Name: name, Type: "media_capture"})
	if err != nil {
		t.Fatalf("create bot: %v", err)
	}
	token, err := gw.Repo.IssueToken(ctx, bot.ID, "test")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return bot, token
}

func notificationsOfType(t *testing.T, gw Gateway, typ string) []domain.Notification {
	t.Helper()
	all, err := gw.Repo.ListNotifications(context.Background(), 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	var out []domain.Notification
	for _, n := range all {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func TestIngestionScenario(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	bot, token := seedBotWithToken(t, gw, "erome-capture")

	botID, err := gw.Heartbeat(ctx, token.Token, "scanning page 3")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if botID != bot.ID {
		t.Fatalf("heartbeat botID = %d, want %d", botID, bot.ID)
	}
	got, err := gw.Repo.GetBot(ctx, bot.ID)
	if err != nil {
		t.Fatalf("get bot: %v", err)
	}
	if got.Status != domain.BotOnline || got.TotalOperations != 1 {
		t.Fatalf("after heartbeat: status=%q ops=%d, want online/1", got.Status, got.TotalOperations)
	}
	if got.LastActivity != "scanning page 3" {
		t.Fatalf("last_activity = %q", got.LastActivity)
	}

	if _, err := gw.SetStatus(ctx, token.Token, domain.BotError, "login failed"); err != nil {
		t.Fatalf("set status error: %v", err)
	}
	down := notificationsOfType(t, gw, domain.NotifyBotDown)
	if len(down) != 1 {
		t.Fatalf("bot_down notifications = %d, want 1", len(down))
	}
	if !strings.Contains(down[0].Title, bot.Name) {
		t.Fatalf("bot_down title %q should carry bot name %q", down[0].Title, bot.Name)
	}

	// Recovery is silent.
	if _, err := gw.SetStatus(ctx, token.Token, domain.BotOnline, ""); err != nil {
		t.Fatalf("set status online: %v", err)
	}
	if n := len(notificationsOfType(t, gw, domain.NotifyBotDown)); n != 1 {
		t.Fatalf("bot_down after recovery = %d, want still 1", n)
	}

	if err := gw.Repo.RevokeToken(ctx, token.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	opsBefore := mustGetBot(t, gw, bot.ID).TotalOperations
	if _, err := gw.Heartbeat(ctx, token.Token, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("heartbeat with revoked token err = %v, want ErrUnauthorized", err)
	}
	if ops := mustGetBot(t, gw, bot.ID).TotalOperations; ops != opsBefore {
		t.Fatalf("operations moved %d -> %d after rejected heartbeat", opsBefore, ops)
	}
}

func mustGetBot(t *testing.T, gw Gateway, id int64) domain.Bot {
	t.Helper()
	bot, err := gw.Repo.GetBot(context.Background(), id)
	if err != nil {
		t.Fatalf("get bot: %v", err)
	}
	return bot
}

func TestSetStatusRejectsUnknownValue(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	_, token := seedBotWithToken(t, gw, "poster")

	_, err := gw.SetStatus(ctx, token.Token, "sleeping", "")
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestAppendLogEscalatesErrors(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	bot, token := seedBotWithToken(t, gw, "cloner-7")

	if err := gw.AppendLog(ctx, token.Token, "info", "started", ""); err != nil {
		t.Fatalf("info log: %v", err)
	}
	if n := len(notificationsOfType(t, gw, domain.NotifyErrorCritical)); n != 0 {
		t.Fatalf("error_critical after info log = %d, want 0", n)
	}

	if err := gw.AppendLog(ctx, token.Token, "error", "session expired", `{"code":401}`); err != nil {
		t.Fatalf("error log: %v", err)
	}
	crit := notificationsOfType(t, gw, domain.NotifyErrorCritical)
	if len(crit) != 1 {
		t.Fatalf("error_critical = %d, want 1", len(crit))
	}
	if !strings.Contains(crit[0].Title, bot.Name) {
		t.Fatalf("title %q should carry bot name", crit[0].Title)
	}
	if crit[0].Message != "session expired" {
		t.Fatalf("message = %q", crit[0].Message)
	}

	logs, err := gw.Repo.ListBotLogs(ctx, bot.ID, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("log lines = %d, want 2", len(logs))
	}
}

func TestAppendLogFallsBackToNumericID(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	bot, token := seedBotWithToken(t, gw, "ghost")

	// Simulate a registry row lost out from under a live token.
	if _, err := gw.DB.ExecContext(ctx, `PRAGMA foreign_keys=OFF`); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if _, err := gw.DB.ExecContext(ctx, `DELETE FROM bots WHERE id=?`, bot.ID); err != nil {
		t.Fatalf("delete bot: %v", err)
	}

	if err := gw.AppendLog(ctx, token.Token, "error", "orphaned", ""); err != nil {
		t.Fatalf("error log without bot row: %v", err)
	}
	crit := notificationsOfType(t, gw, domain.NotifyErrorCritical)
	if len(crit) != 1 {
		t.Fatalf("error_critical = %d, want 1", len(crit))
	}
	want := fmt.Sprintf("Critical error: %d", bot.ID)
	if crit[0].Title != want {
		t.Fatalf("title = %q, want %q", crit[0].Title, want)
	}
}

func TestAppendLogRequiresFields(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	_, token := seedBotWithToken(t, gw, "strict")

	var ve ValidationError
	if err := gw.AppendLog(ctx, token.Token, "", "message", ""); !errors.As(err, &ve) {
		t.Fatalf("missing level err = %v, want ValidationError", err)
	}
	if err := gw.AppendLog(ctx, token.Token, "fatal", "message", ""); !errors.As(err, &ve) {
		t.Fatalf("bad level err = %v, want ValidationError", err)
	}
}

func TestEnqueueMediaValidation(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	bot, token := seedBotWithToken(t, gw, "scraper")

	var ve ValidationError
	if _, err := gw.EnqueueMedia(ctx, token.Token, MediaInput{SourceURL: "not a url"}); !errors.As(err, &ve) {
		t.Fatalf("bad url err = %v, want ValidationError", err)
	}
	if items, _ := gw.Repo.ListMedia(ctx, "", 0); len(items) != 0 {
		t.Fatalf("rejected enqueue left %d rows", len(items))
	}

	item, err := gw.EnqueueMedia(ctx, token.Token, MediaInput{SourceURL: "https://example.com/v.mp4"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if item.Status != "pending" || item.MediaType != "video" || item.Source != "erome" {
		t.Fatalf("defaults not applied: %+v", item)
	}
	if item.SourceBotID == nil || *item.SourceBotID != bot.ID {
		t.Fatalf("source_bot_id = %v, want %d", item.SourceBotID, bot.ID)
	}
	// Bot-originated media is silent.
	if n := len(notificationsOfType(t, gw, domain.NotifyMediaPosted)); n != 0 {
		t.Fatalf("media_posted after bot enqueue = %d, want 0", n)
	}
}

func TestEnqueueMediaAsOperatorNotifies(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	item, err := gw.EnqueueMediaAsOperator(ctx, MediaInput{SourceURL: "https://example.com/x.gif", MediaType: "gif", Source: "manual"})
	if err != nil {
		t.Fatalf("operator enqueue: %v", err)
	}
	if item.SourceBotID != nil {
		t.Fatalf("operator media should have no source bot, got %v", *item.SourceBotID)
	}
	if n := len(notificationsOfType(t, gw, domain.NotifyMediaPosted)); n != 1 {
		t.Fatalf("media_posted after operator enqueue = %d, want 1", n)
	}
}

func TestSubscriberPathsForceAndKeepStatus(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	_, token := seedBotWithToken(t, gw, "vip-filler")

	sub, err := gw.UpsertSubscriber(ctx, token.Token, SubscriberInput{TelegramID: "tg-55", Name: "Ana"})
	if err != nil {
		t.Fatalf("bot upsert: %v", err)
	}
	if sub.Status != "active" || sub.Plan != "basic" {
		t.Fatalf("bot upsert status/plan = %q/%q, want active/basic", sub.Status, sub.Plan)
	}
	if n := len(notificationsOfType(t, gw, domain.NotifyNewSubscriber)); n != 1 {
		t.Fatalf("new_subscriber = %d, want 1", n)
	}

	sub, err = gw.UpsertSubscriberAsOperator(ctx, SubscriberInput{TelegramID: "tg-56", Status: "banned", Plan: "vip"})
	if err != nil {
		t.Fatalf("operator upsert: %v", err)
	}
	if sub.Status != "banned" {
		t.Fatalf("operator status = %q, want banned", sub.Status)
	}

	var ve ValidationError
	if _, err := gw.UpsertSubscriber(ctx, token.Token, SubscriberInput{}); !errors.As(err, &ve) {
		t.Fatalf("missing telegramId err = %v, want ValidationError", err)
	}
}

func TestCreateSocialAccount(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	_, token := seedBotWithToken(t, gw, "acct-maker")

	account, err := gw.CreateSocialAccount(ctx, token.Token, AccountInput{Platform: "twitter", Username: "fleet_001"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if account.Status != "unverified" {
		t.Fatalf("status = %q, want unverified", account.Status)
	}
	created := notificationsOfType(t, gw, domain.NotifyAccountCreated)
	if len(created) != 1 || !strings.Contains(created[0].Title, "@fleet_001") {
		t.Fatalf("account_created = %+v", created)
	}

	// Duplicate usernames are allowed; dedup is the operator's problem.
	if _, err := gw.CreateSocialAccount(ctx, token.Token, AccountInput{Platform: "twitter", Username: "fleet_001"}); err != nil {
		t.Fatalf("duplicate create: %v", err)
	}

	active, err := gw.ListActiveSocialAccounts(ctx, token.Token)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("unverified accounts listed as active: %d", len(active))
	}
}

func TestMarkPaymentStatus(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	payment, err := gw.CreatePayment(ctx, PaymentInput{TelegramID: "tg-9", Amount: "49.90", Plan: "premium"})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if payment.Status != "pending" || payment.Gateway != "syncpay" {
		t.Fatalf("payment defaults: %+v", payment)
	}

	if err := gw.MarkPaymentStatus(ctx, payment.ID, "paid"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if n := len(notificationsOfType(t, gw, domain.NotifyPaymentReceived)); n != 1 {
		t.Fatalf("payment_received = %d, want 1", n)
	}

	// Expiry is not an escalation.
	p2, err := gw.CreatePayment(ctx, PaymentInput{Amount: "10"})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if err := gw.MarkPaymentStatus(ctx, p2.ID, "expired"); err != nil {
		t.Fatalf("mark expired: %v", err)
	}
	if n := len(notificationsOfType(t, gw, domain.NotifyPaymentReceived)); n != 1 {
		t.Fatalf("payment_received after expiry = %d, want still 1", n)
	}
}

func TestUnauthorizedEverywhere(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	if _, err := gw.Heartbeat(ctx, "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token err = %v", err)
	}
	if _, err := gw.PendingMedia(ctx, "fbt_bogus", 5); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bogus token err = %v", err)
	}
	if err := gw.UpdateMediaStatus(ctx, "fbt_bogus", 1, "posted"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bogus token err = %v", err)
	}
}
