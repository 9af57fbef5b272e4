package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"botfleet/internal/gateway"
	"botfleet/internal/repo"
)

// registerBotRoutes mounts the plain REST surface bots talk to. It keeps
// the flat {success, ...} envelope bot processes already expect and
// accepts the credential as a bearer header, an X-Bot-Token header or an
// authorization field in the body.
func registerBotRoutes(router chi.Router, gw gateway.Gateway) {
	router.Route("/api/bot", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"success":   true,
				"message":   "pong",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		})

		r.Post("/heartbeat", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Authorization string `json:"authorization"`
				Activity      string `json:"activity"`
			}
			decodeBody(req, &body)
			botID, err := gw.Heartbeat(req.Context(), restToken(req, body.Authorization), body.Activity)
			if err != nil {
				writeRESTError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "botId": botID})
		})

		r.Post("/status", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Authorization string `json:"authorization"`
				Status        string `json:"status"`
				Activity      string `json:"activity"`
			}
			decodeBody(req, &body)
			botID, err := gw.SetStatus(req.Context(), restToken(req, body.Authorization), body.Status, body.Activity)
			if err != nil {
				writeRESTError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "botId": botID})
		})

		r.Post("/log", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Authorization string `json:"authorization"`
				Level         string `json:"level"`
				Message       string `json:"message"`
				Metadata      string `json:"metadata"`
			}
			decodeBody(req, &body)
			err := gw.AppendLog(req.Context(), restToken(req, body.Authorization), body.Level, body.Message, body.Metadata)
			if err != nil {
				writeRESTError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		})

		r.Post("/media", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Authorization string `json:"authorization"`
				SourceURL     string `json:"sourceUrl"`
				ThumbnailURL  string `json:"thumbnailUrl"`
				MediaType     string `json:"mediaType"`
				Category      string `json:"category"`
				Source        string `json:"source"`
				TargetChannel string `json:"targetChannel"`
			}
			decodeBody(req, &body)
			item, err := gw.EnqueueMedia(req.Context(), restToken(req, body.Authorization), gateway.MediaInput{
				SourceURL:     body.SourceURL,
				ThumbnailURL:  body.ThumbnailURL,
				MediaType:     body.MediaType,
				Category:      body.Category,
				Source:        body.Source,
				TargetChannel: body.TargetChannel,
			})
			if err != nil {
				writeRESTError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "media": item})
		})

		r.Get("/media/pending", func(w http.ResponseWriter, req *http.Request) {
			limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
			items, err := gw.PendingMedia(req.Context(), restToken(req, ""), limit)
			if err != nil {
				writeRESTError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "media": items})
		})

		r.Patch("/media/{id}", func(w http.ResponseWriter, req *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid media id"})
				return
			}
			var body struct {
				Authorization string `json:"authorization"`
				Status        string `json:"status"`
			}
			decodeBody(req, &body)
			if err := gw.UpdateMediaStatus(req.Context(), restToken(req, body.Authorization), id, body.Status); err != nil {
				writeRESTError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		})

		r.Post("/subscriber", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Authorization    string `json:"authorization"`
				TelegramID       string `json:"telegramId"`
				TelegramUsername string `json:"telegramUsername"`
				Name             string `json:"name"`
				Plan             string `json:"plan"`
				ExpiresAt        string `json:"expiresAt"`
			}
			decodeBody(req, &body)
			sub, err := gw.UpsertSubscriber(req.Context(), restToken(req, body.Authorization), gateway.SubscriberInput{
				TelegramID:       body.TelegramID,
				TelegramUsername: body.TelegramUsername,
				Name:             body.Name,
				Plan:             body.Plan,
				ExpiresAt:        body.ExpiresAt,
			})
			if err != nil {
				writeRESTError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "subscriber": sub})
		})

		r.Post("/account", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Authorization string `json:"authorization"`
				Platform      string `json:"platform"`
				Username      string `json:"username"`
				Email         string `json:"email"`
				Password      string `json:"password"`
				Phone         string `json:"phone"`
				ProxyUsed     string `json:"proxyUsed"`
			}
			decodeBody(req, &body)
			account, err := gw.CreateSocialAccount(req.Context(), restToken(req, body.Authorization), gateway.AccountInput{
				Platform:    body.Platform,
				Username:    body.Username,
				Email:       body.Email,
				PasswordEnc: body.Password,
				Phone:       body.Phone,
				ProxyUsed:   body.ProxyUsed,
			})
			if err != nil {
				writeRESTError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "account": account})
		})

		r.Get("/accounts/active", func(w http.ResponseWriter, req *http.Request) {
			accounts, err := gw.ListActiveSocialAccounts(req.Context(), restToken(req, ""))
			if err != nil {
				writeRESTError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "accounts": accounts})
		})
	})
}

// restToken picks the first credential present, header before body.
func restToken(req *http.Request, bodyAuth string) string {
	if token, ok := bearerToken(req.Header.Get("Authorization")); ok {
		return token
	}
	if token := strings.TrimSpace(req.Header.Get("X-Bot-Token")); token != "" {
		return token
	}
	return strings.TrimSpace(bodyAuth)
}

// decodeBody tolerates an empty or malformed body; required fields are
// validated by the gateway afterwards.
func decodeBody(req *http.Request, dst any) {
	data, err := io.ReadAll(req.Body)
	if err != nil || len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, dst)
}

func writeRESTError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	var ve gateway.ValidationError
	switch {
	case errors.Is(err, gateway.ErrUnauthorized):
		status = http.StatusUnauthorized
		msg = err.Error()
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		msg = ve.Msg
	case errors.Is(err, repo.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	}
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
