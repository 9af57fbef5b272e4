package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"botfleet/internal/domain"
	"botfleet/internal/gateway"
)

const timeLayout = time.RFC3339

// registerAdmin wires the operator surface. Everything under /admin sits
// behind the JWT middleware, so handlers only deal with domain logic.
func registerAdmin(api huma.API, gw gateway.Gateway) {
	registerAdminBots(api, gw)
	registerAdminTokens(api, gw)
	registerAdminNotifications(api, gw)
	registerAdminMedia(api, gw)
	registerAdminSubscribers(api, gw)
	registerAdminPayments(api, gw)
	registerAdminAccounts(api, gw)
}

func registerAdminBots(api huma.API, gw gateway.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-list-bots",
		Method:      http.MethodGet,
		Path:        "/admin/bots",
		Summary:     "List bots",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Bot `json:"body"`
	}, error) {
		bots, err := gw.Repo.ListBots(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Bot `json:"body"`
		}{Body: bots}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-get-bot",
		Method:      http.MethodGet,
		Path:        "/admin/bots/{id}",
		Summary:     "Get bot",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Bot `json:"body"`
	}, error) {
		bot, err := gw.Repo.GetBot(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Bot `json:"body"`
		}{Body: bot}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-create-bot",
		Method:        http.MethodPost,
		Path:          "/admin/bots",
		Summary:       "Register bot",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name        string `json:"name"`
			Type        string `json:"type" enum:"payment,media_capture,distributor,cloner,account_creator,social_poster,monitor,vip_filler"`
			Description string `json:"description,omitempty"`
			Config      string `json:"config,omitempty"`
			Hosting     string `json:"hosting,omitempty" enum:"discloud,vps,local"`
		} `json:"body"`
	}) (*struct {
		Body domain.Bot `json:"body"`
	}, error) {
		bot, err := gw.CreateBot(ctx, gateway.BotCreateOptions{
			Name:        input.Body.Name,
			Type:        input.Body.Type,
			Description: input.Body.Description,
			Config:      input.Body.Config,
			Hosting:     input.Body.Hosting,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Bot `json:"body"`
		}{Body: bot}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-set-bot-status",
		Method:      http.MethodPatch,
		Path:        "/admin/bots/{id}/status",
		Summary:     "Set bot status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Status   string `json:"status" enum:"online,offline,error,idle"`
			Activity string `json:"activity,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Bot `json:"body"`
	}, error) {
		if err := gw.SetBotStatusByID(ctx, input.ID, input.Body.Status, input.Body.Activity); err != nil {
			return nil, handleError(err)
		}
		bot, err := gw.Repo.GetBot(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Bot `json:"body"`
		}{Body: bot}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-bot-logs",
		Method:      http.MethodGet,
		Path:        "/admin/bots/{id}/logs",
		Summary:     "Bot log lines",
	}, func(ctx context.Context, input *struct {
		ID    int64 `path:"id"`
		Limit int   `query:"limit" default:"100"`
	}) (*struct {
		Body []domain.BotLog `json:"body"`
	}, error) {
		logs, err := gw.Repo.ListBotLogs(ctx, input.ID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.BotLog `json:"body"`
		}{Body: logs}, nil
	})
}

func registerAdminTokens(api huma.API, gw gateway.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-list-tokens",
		Method:      http.MethodGet,
		Path:        "/admin/bots/{id}/tokens",
		Summary:     "List bot tokens",
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body []domain.APIToken `json:"body"`
	}, error) {
		tokens, err := gw.Repo.ListTokensByBot(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIToken `json:"body"`
		}{Body: tokens}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-issue-token",
		Method:        http.MethodPost,
		Path:          "/admin/bots/{id}/tokens",
		Summary:       "Issue bot token",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Name string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.APIToken `json:"body"`
	}, error) {
		// Confirm the bot exists so a typo does not mint an orphan token.
		if _, err := gw.Repo.GetBot(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		token, err := gw.Repo.IssueToken(ctx, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.APIToken `json:"body"`
		}{Body: token}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-revoke-token",
		Method:      http.MethodDelete,
		Path:        "/admin/tokens/{id}",
		Summary:     "Revoke token",
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if err := gw.Repo.RevokeToken(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAdminNotifications(api huma.API, gw gateway.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-list-notifications",
		Method:      http.MethodGet,
		Path:        "/admin/notifications",
		Summary:     "Notification feed",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		items, err := gw.Repo.ListNotifications(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-unread-count",
		Method:      http.MethodGet,
		Path:        "/admin/notifications/unread-count",
		Summary:     "Unread notification count",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Count int64 `json:"count"`
		} `json:"body"`
	}, error) {
		count, err := gw.Repo.CountUnreadNotifications(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Count int64 `json:"count"`
			} `json:"body"`
		}{}
		out.Body.Count = count
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-mark-notification-read",
		Method:      http.MethodPost,
		Path:        "/admin/notifications/{id}/read",
		Summary:     "Mark notification read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if err := gw.Repo.MarkNotificationRead(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-mark-all-notifications-read",
		Method:      http.MethodPost,
		Path:        "/admin/notifications/read-all",
		Summary:     "Mark all notifications read",
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		if err := gw.Repo.MarkAllNotificationsRead(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAdminMedia(api huma.API, gw gateway.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-list-media",
		Method:      http.MethodGet,
		Path:        "/admin/media",
		Summary:     "List media queue",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.MediaItem `json:"body"`
	}, error) {
		items, err := gw.Repo.ListMedia(ctx, input.Status, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.MediaItem `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-add-media",
		Method:        http.MethodPost,
		Path:          "/admin/media",
		Summary:       "Enqueue media",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			SourceURL     string `json:"sourceUrl"`
			ThumbnailURL  string `json:"thumbnailUrl,omitempty"`
			MediaType     string `json:"mediaType,omitempty"`
			Category      string `json:"category,omitempty"`
			TargetChannel string `json:"targetChannel,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.MediaItem `json:"body"`
	}, error) {
		item, err := gw.EnqueueMediaAsOperator(ctx, gateway.MediaInput{
			SourceURL:     input.Body.SourceURL,
			ThumbnailURL:  input.Body.ThumbnailURL,
			MediaType:     input.Body.MediaType,
			Category:      input.Body.Category,
			Source:        "manual",
			TargetChannel: input.Body.TargetChannel,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MediaItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-update-media-status",
		Method:      http.MethodPatch,
		Path:        "/admin/media/{id}",
		Summary:     "Update media status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Status string `json:"status" enum:"pending,posted,failed,skipped"`
		} `json:"body"`
	}) (*struct{}, error) {
		if err := gw.Repo.UpdateMediaStatus(ctx, input.ID, input.Body.Status, gw.Now().UTC().Format(timeLayout)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAdminSubscribers(api huma.API, gw gateway.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-list-subscribers",
		Method:      http.MethodGet,
		Path:        "/admin/subscribers",
		Summary:     "List subscribers",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Subscriber `json:"body"`
	}, error) {
		subs, err := gw.Repo.ListSubscribers(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Subscriber `json:"body"`
		}{Body: subs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-upsert-subscriber",
		Method:      http.MethodPost,
		Path:        "/admin/subscribers",
		Summary:     "Upsert subscriber",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			TelegramID       string `json:"telegramId"`
			TelegramUsername string `json:"telegramUsername,omitempty"`
			Name             string `json:"name,omitempty"`
			Plan             string `json:"plan,omitempty"`
			Status           string `json:"status,omitempty"`
			ExpiresAt        string `json:"expiresAt,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Subscriber `json:"body"`
	}, error) {
		sub, err := gw.UpsertSubscriberAsOperator(ctx, gateway.SubscriberInput{
			TelegramID:       input.Body.TelegramID,
			TelegramUsername: input.Body.TelegramUsername,
			Name:             input.Body.Name,
			Plan:             input.Body.Plan,
			Status:           input.Body.Status,
			ExpiresAt:        input.Body.ExpiresAt,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Subscriber `json:"body"`
		}{Body: sub}, nil
	})
}

func registerAdminPayments(api huma.API, gw gateway.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-list-payments",
		Method:      http.MethodGet,
		Path:        "/admin/payments",
		Summary:     "List payments",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Payment `json:"body"`
	}, error) {
		payments, err := gw.Repo.ListPayments(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Payment `json:"body"`
		}{Body: payments}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-create-payment",
		Method:        http.MethodPost,
		Path:          "/admin/payments",
		Summary:       "Record payment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			SubscriberID *int64 `json:"subscriberId,omitempty"`
			TelegramID   string `json:"telegramId,omitempty"`
			Amount       string `json:"amount"`
			Currency     string `json:"currency,omitempty"`
			Gateway      string `json:"gateway,omitempty"`
			TxID         string `json:"txId,omitempty"`
			Plan         string `json:"plan,omitempty"`
			ExpiresAt    string `json:"expiresAt,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Payment `json:"body"`
	}, error) {
		payment, err := gw.CreatePayment(ctx, gateway.PaymentInput{
			SubscriberID: input.Body.SubscriberID,
			TelegramID:   input.Body.TelegramID,
			Amount:       input.Body.Amount,
			Currency:     input.Body.Currency,
			Gateway:      input.Body.Gateway,
			TxID:         input.Body.TxID,
			Plan:         input.Body.Plan,
			ExpiresAt:    input.Body.ExpiresAt,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Payment `json:"body"`
		}{Body: payment}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-update-payment-status",
		Method:      http.MethodPatch,
		Path:        "/admin/payments/{id}",
		Summary:     "Update payment status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Status string `json:"status" enum:"pending,paid,expired,refunded"`
		} `json:"body"`
	}) (*struct{}, error) {
		if err := gw.MarkPaymentStatus(ctx, input.ID, input.Body.Status); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAdminAccounts(api huma.API, gw gateway.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-list-accounts",
		Method:      http.MethodGet,
		Path:        "/admin/accounts",
		Summary:     "List social accounts",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.SocialAccount `json:"body"`
	}, error) {
		accounts, err := gw.Repo.ListSocialAccounts(ctx, input.Status, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.SocialAccount `json:"body"`
		}{Body: accounts}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-update-account-status",
		Method:      http.MethodPatch,
		Path:        "/admin/accounts/{id}",
		Summary:     "Update social account status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Status string `json:"status" enum:"active,banned,suspended,unverified,error"`
		} `json:"body"`
	}) (*struct{}, error) {
		if err := gw.Repo.UpdateSocialAccountStatus(ctx, input.ID, input.Body.Status, gw.Now().UTC().Format(timeLayout)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
