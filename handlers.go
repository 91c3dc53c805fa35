package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"nostr-overlay/internal/identity"
	"nostr-overlay/internal/relaypool"
	"nostr-overlay/internal/relays"
	"nostr-overlay/internal/sender"
)

// maxBodySize bounds command request bodies. Commands carry short JSON
// payloads; anything bigger is not a legitimate command.
const maxBodySize = 32 * 1024

// writeJSON writes v as the JSON response body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response write failed", "err", err)
	}
}

// writeError sends the command-surface error shape: a human-readable
// string, no structured codes.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeCommandError maps component errors onto HTTP statuses at the
// command boundary.
func writeCommandError(w http.ResponseWriter, err error) {
	httpErrorsTotal.Add(1)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, identity.ErrInvalidKeyFormat):
		status = http.StatusBadRequest
	case errors.Is(err, identity.ErrNotInitialized),
		errors.Is(err, sender.ErrNotConnected),
		errors.Is(err, relaypool.ErrNotConnected):
		status = http.StatusConflict
	}
	writeError(w, status, err.Error())
}

// requireMethod rejects requests with the wrong verb.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// decodeBody parses the JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// connectHandler implements connect-and-start-listening.
func (a *App) connectHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	pubkey, err := a.Connect(r.Context())
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, map[string]string{"pubkey": pubkey})
}

// sendMessageHandler implements send-text-message. A channel_id turns
// the text post into a channel message.
func (a *App) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Content   string `json:"content"`
		ChannelID string `json:"channel_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		id  string
		err error
	)
	if req.ChannelID != "" {
		id, err = a.sender.PublishChannelMessage(r.Context(), req.ChannelID, req.Content)
	} else {
		id, err = a.sender.PublishText(r.Context(), req.Content)
	}
	if err != nil {
		writeCommandError(w, err)
		return
	}
	messagesPublished.Add(1)
	writeJSON(w, map[string]string{"id": id})
}

// messagesHandler implements get-cached-messages.
func (a *App) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	writeJSON(w, a.messages.Recent(limit))
}

// publicKeyHandler implements get-public-key.
func (a *App) publicKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	npub, err := a.keys.PublicKey()
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, map[string]string{"npub": npub})
}

// exportKeyHandler implements export-secret-key.
func (a *App) exportKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	nsec, err := a.keys.ExportSecret()
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, map[string]string{"nsec": nsec})
}

// importKeyHandler implements import-secret-key.
func (a *App) importKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Key string `json:"key"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := a.keys.Import(req.Key); err != nil {
		writeCommandError(w, err)
		return
	}
	npub, err := a.keys.PublicKey()
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, map[string]string{"npub": npub})
}

// muteHandler and unmuteHandler implement mute-user / unmute-user.
func (a *App) muteHandler(w http.ResponseWriter, r *http.Request) {
	a.muteChange(w, r, a.mutes.Mute)
}

func (a *App) unmuteHandler(w http.ResponseWriter, r *http.Request) {
	a.muteChange(w, r, a.mutes.Unmute)
}

func (a *App) muteChange(w http.ResponseWriter, r *http.Request, change func(string) error) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Pubkey string `json:"pubkey"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Pubkey == "" {
		writeError(w, http.StatusBadRequest, "pubkey is required")
		return
	}
	if err := change(req.Pubkey); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

// mutedHandler implements get-muted-users.
func (a *App) mutedHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, a.mutes.List())
}

// profileHandler implements get-own-profile and update-profile.
func (a *App) profileHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, err := a.OwnProfile()
		if err != nil {
			writeCommandError(w, err)
			return
		}
		writeJSON(w, p)
	case http.MethodPost:
		var req struct {
			Name        *string `json:"name"`
			DisplayName *string `json:"display_name"`
			About       *string `json:"about"`
			Picture     *string `json:"picture"`
			Website     *string `json:"website"`
			NIP05       *string `json:"nip05"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		id, err := a.sender.PublishProfile(r.Context(), sender.ProfileFields{
			Name:        req.Name,
			DisplayName: req.DisplayName,
			About:       req.About,
			Picture:     req.Picture,
			Website:     req.Website,
			NIP05:       req.NIP05,
		})
		if err != nil {
			writeCommandError(w, err)
			return
		}
		messagesPublished.Add(1)
		writeJSON(w, map[string]string{"id": id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// relaysHandler implements get-relays.
func (a *App) relaysHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, a.relays.List())
}

// addRelayHandler and removeRelayHandler implement add-relay /
// remove-relay.
func (a *App) addRelayHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		URL string `json:"url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.relays.Add(r.Context(), req.URL); err != nil {
		// A rejected url is the client's fault; a persistence failure
		// is not.
		if errors.Is(err, relays.ErrInvalidURL) {
			httpErrorsTotal.Add(1)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeCommandError(w, err)
		return
	}
	writeJSON(w, a.relays.List())
}

func (a *App) removeRelayHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		URL string `json:"url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.relays.Remove(req.URL); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, a.relays.List())
}

// healthHandler reports liveness.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
