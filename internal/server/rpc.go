package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"botfleet/internal/domain"
	"botfleet/internal/gateway"
)

// The RPC surface mirrors the REST bot routes as typed operations. The
// credential travels inside the payload and an auth failure is a
// success=false result, not an HTTP error; bot processes treat it as a
// signal to re-provision, never as a crash.

type rpcAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type rpcBotAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	BotID   int64  `json:"botId,omitempty"`
}

func rpcDenied() rpcAck {
	return rpcAck{Success: false, Error: gateway.ErrUnauthorized.Error()}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}}, nil
	})
}

func registerRPC(api huma.API, gw gateway.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "rpc-bot-heartbeat",
		Method:      http.MethodPost,
		Path:        "/rpc/bot.heartbeat",
		Summary:     "Bot heartbeat",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Authorization string `json:"authorization"`
			Activity      string `json:"activity,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body rpcBotAck `json:"body"`
	}, error) {
		out := &struct {
			Body rpcBotAck `json:"body"`
		}{}
		botID, err := gw.Heartbeat(ctx, input.Body.Authorization, input.Body.Activity)
		if errors.Is(err, gateway.ErrUnauthorized) {
			out.Body = rpcBotAck{Success: false, Error: err.Error()}
			return out, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		out.Body = rpcBotAck{Success: true, BotID: botID}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rpc-bot-update-status",
		Method:      http.MethodPost,
		Path:        "/rpc/bot.updateStatus",
		Summary:     "Bot status report",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Authorization string `json:"authorization"`
			Status        string `json:"status" enum:"online,offline,error,idle"`
			Activity      string `json:"activity,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body rpcBotAck `json:"body"`
	}, error) {
		out := &struct {
			Body rpcBotAck `json:"body"`
		}{}
		botID, err := gw.SetStatus(ctx, input.Body.Authorization, input.Body.Status, input.Body.Activity)
		if errors.Is(err, gateway.ErrUnauthorized) {
			out.Body = rpcBotAck{Success: false, Error: err.Error()}
			return out, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		out.Body = rpcBotAck{Success: true, BotID: botID}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rpc-bot-log",
		Method:      http.MethodPost,
		Path:        "/rpc/bot.log",
		Summary:     "Append bot log line",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Authorization string `json:"authorization"`
			Level         string `json:"level" enum:"info,warn,error,debug"`
			Message       string `json:"message"`
			Metadata      string `json:"metadata,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body rpcAck `json:"body"`
	}, error) {
		out := &struct {
			Body rpcAck `json:"body"`
		}{}
		err := gw.AppendLog(ctx, input.Body.Authorization, input.Body.Level, input.Body.Message, input.Body.Metadata)
		if errors.Is(err, gateway.ErrUnauthorized) {
			out.Body = rpcDenied()
			return out, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		out.Body = rpcAck{Success: true}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rpc-bot-add-media",
		Method:      http.MethodPost,
		Path:        "/rpc/bot.addMedia",
		Summary:     "Enqueue media",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Authorization string `json:"authorization"`
			SourceURL     string `json:"sourceUrl"`
			ThumbnailURL  string `json:"thumbnailUrl,omitempty"`
			MediaType     string `json:"mediaType,omitempty"`
			Category      string `json:"category,omitempty"`
			Source        string `json:"source,omitempty"`
			TargetChannel string `json:"targetChannel,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Success bool              `json:"success"`
			Error   string            `json:"error,omitempty"`
			Media   *domain.MediaItem `json:"media,omitempty"`
		} `json:"body"`
	}, error) {
		out := &struct {
			Body struct {
				Success bool              `json:"success"`
				Error   string            `json:"error,omitempty"`
				Media   *domain.MediaItem `json:"media,omitempty"`
			} `json:"body"`
		}{}
		item, err := gw.EnqueueMedia(ctx, input.Body.Authorization, gateway.MediaInput{
			SourceURL:     input.Body.SourceURL,
			ThumbnailURL:  input.Body.ThumbnailURL,
			MediaType:     input.Body.MediaType,
			Category:      input.Body.Category,
			Source:        input.Body.Source,
			TargetChannel: input.Body.TargetChannel,
		})
		if errors.Is(err, gateway.ErrUnauthorized) {
			out.Body.Error = err.Error()
			return out, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		out.Body.Success = true
		out.Body.Media = &item
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rpc-bot-pending-media",
		Method:      http.MethodPost,
		Path:        "/rpc/bot.getPendingMedia",
		Summary:     "Oldest pending media",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Authorization string `json:"authorization"`
			Limit         int    `json:"limit,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Success bool               `json:"success"`
			Error   string             `json:"error,omitempty"`
			Media   []domain.MediaItem `json:"media,omitempty"`
		} `json:"body"`
	}, error) {
		out := &struct {
			Body struct {
				Success bool               `json:"success"`
				Error   string             `json:"error,omitempty"`
				Media   []domain.MediaItem `json:"media,omitempty"`
			} `json:"body"`
		}{}
		items, err := gw.PendingMedia(ctx, input.Body.Authorization, input.Body.Limit)
		if errors.Is(err, gateway.ErrUnauthorized) {
			out.Body.Error = err.Error()
			return out, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		out.Body.Success = true
		out.Body.Media = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rpc-bot-update-media-status",
		Method:      http.MethodPost,
		Path:        "/rpc/bot.updateMediaStatus",
		Summary:     "Update media status",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Authorization string `json:"authorization"`
			ID            int64  `json:"id"`
			Status        string `json:"status" enum:"pending,posted,failed,skipped"`
		} `json:"body"`
	}) (*struct {
		Body rpcAck `json:"body"`
	}, error) {
		out := &struct {
			Body rpcAck `json:"body"`
		}{}
		err := gw.UpdateMediaStatus(ctx, input.Body.Authorization, input.Body.ID, input.Body.Status)
		if errors.Is(err, gateway.ErrUnauthorized) {
			out.Body = rpcDenied()
			return out, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		out.Body = rpcAck{Success: true}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rpc-bot-add-subscriber",
		Method:      http.MethodPost,
		Path:        "/rpc/bot.addSubscriber",
		Summary:     "Upsert subscriber",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Authorization    string `json:"authorization"`
			TelegramID       string `json:"telegramId"`
			TelegramUsername string `json:"telegramUsername,omitempty"`
			Name             string `json:"name,omitempty"`
			Plan             string `json:"plan,omitempty"`
			ExpiresAt        string `json:"expiresAt,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Success    bool               `json:"success"`
			Error      string             `json:"error,omitempty"`
			Subscriber *domain.Subscriber `json:"subscriber,omitempty"`
		} `json:"body"`
	}, error) {
		out := &struct {
			Body struct {
				Success    bool               `json:"success"`
				Error      string             `json:"error,omitempty"`
				Subscriber *domain.Subscriber `json:"subscriber,omitempty"`
			} `json:"body"`
		}{}
		sub, err := gw.UpsertSubscriber(ctx, input.Body.Authorization, gateway.SubscriberInput{
			TelegramID:       input.Body.TelegramID,
			TelegramUsername: input.Body.TelegramUsername,
			Name:             input.Body.Name,
			Plan:             input.Body.Plan,
			ExpiresAt:        input.Body.ExpiresAt,
		})
		if errors.Is(err, gateway.ErrUnauthorized) {
			out.Body.Error = err.Error()
			return out, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		out.Body.Success = true
		out.Body.Subscriber = &sub
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rpc-bot-create-account",
		Method:      http.MethodPost,
		Path:        "/rpc/bot.createAccount",
		Summary:     "Record social account",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Authorization string `json:"authorization"`
			Platform      string `json:"platform" enum:"twitter,instagram"`
			Username      string `json:"username"`
			Email         string `json:"email,omitempty"`
			Password      string `json:"password,omitempty"`
			Phone         string `json:"phone,omitempty"`
			ProxyUsed     string `json:"proxyUsed,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Success bool                  `json:"success"`
			Error   string                `json:"error,omitempty"`
			Account *domain.SocialAccount `json:"account,omitempty"`
		} `json:"body"`
	}, error) {
		out := &struct {
			Body struct {
				Success bool                  `json:"success"`
				Error   string                `json:"error,omitempty"`
				Account *domain.SocialAccount `json:"account,omitempty"`
			} `json:"body"`
		}{}
		account, err := gw.CreateSocialAccount(ctx, input.Body.Authorization, gateway.AccountInput{
			Platform:    input.Body.Platform,
			Username:    input.Body.Username,
			Email:       input.Body.Email,
			PasswordEnc: input.Body.Password,
			Phone:       input.Body.Phone,
			ProxyUsed:   input.Body.ProxyUsed,
		})
		if errors.Is(err, gateway.ErrUnauthorized) {
			out.Body.Error = err.Error()
			return out, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		out.Body.Success = true
		out.Body.Account = &account
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rpc-bot-active-accounts",
		Method:      http.MethodPost,
		Path:        "/rpc/bot.getActiveAccounts",
		Summary:     "List active social accounts",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Authorization string `json:"authorization"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Success  bool                   `json:"success"`
			Error    string                 `json:"error,omitempty"`
			Accounts []domain.SocialAccount `json:"accounts,omitempty"`
		} `json:"body"`
	}, error) {
		out := &struct {
			Body struct {
				Success  bool                   `json:"success"`
				Error    string                 `json:"error,omitempty"`
				Accounts []domain.SocialAccount `json:"accounts,omitempty"`
			} `json:"body"`
		}{}
		accounts, err := gw.ListActiveSocialAccounts(ctx, input.Body.Authorization)
		if errors.Is(err, gateway.ErrUnauthorized) {
			out.Body.Error = err.Error()
			return out, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		out.Body.Success = true
		out.Body.Accounts = accounts
		return out, nil
	})
}
