package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"chat-gateway/auth"
	"chat-gateway/domain"
	errs "chat-gateway/errors"
	"chat-gateway/services"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// api exposes the account and chat mutations over plain JSON endpoints.
// The websocket carries live traffic only; everything that changes
// persistent state goes through here.
type api struct {
	log      *slog.Logger
	auth     services.IAuthService
	chats    services.IChatService
	messages services.IMessageService
	profiles services.IProfileService
	verifier *auth.Verifier
}

func registerAPI(mux *http.ServeMux, log *slog.Logger,
	authService services.IAuthService,
	chatService services.IChatService,
	messageService services.IMessageService,
	profileService services.IProfileService,
	tokens *auth.TokenManager) {
	a := &api{
		log:      log,
		auth:     authService,
		chats:    chatService,
		messages: messageService,
		profiles: profileService,
		verifier: auth.NewVerifier(tokens),
	}

	mux.HandleFunc("POST /auth/register", a.register)
	mux.HandleFunc("POST /auth/login", a.login)
	mux.HandleFunc("POST /chats", a.createChat)
	mux.HandleFunc("GET /chats", a.listChats)
	mux.HandleFunc("GET /chats/{id}", a.getChat)
	mux.HandleFunc("POST /chats/{id}/participants", a.addParticipants)
	mux.HandleFunc("POST /chats/{id}/leave", a.leaveChat)
	mux.HandleFunc("GET /chats/{id}/messages", a.getMessages)
	mux.HandleFunc("DELETE /chats/{id}/messages/{messageId}", a.deleteMessage)
	mux.HandleFunc("GET /profile", a.getProfile)
	mux.HandleFunc("PUT /profile/picture", a.updateProfilePicture)
}

type credentialsRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !a.decode(w, r, &req) {
		return
	}
	token, err := a.auth.Register(req.Username, req.Email, req.Password)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.reply(w, http.StatusCreated, tokenResponse{Token: string(token)})
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !a.decode(w, r, &req) {
		return
	}
	token, err := a.auth.Login(req.Email, req.Password)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.reply(w, http.StatusOK, tokenResponse{Token: string(token)})
}

type chatResponse struct {
	ID           string   `json:"id"`
	CreatedBy    string   `json:"createdBy"`
	Participants []string `json:"participants"`
}

func toChatResponse(chat domain.Chat) chatResponse {
	return chatResponse{
		ID:        string(chat.ID),
		CreatedBy: string(chat.CreatedBy),
		Participants: lo.Map(chat.Participants, func(id domain.UserID, _ int) string {
			return string(id)
		}),
	}
}

func (a *api) createChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	var req struct {
		UserIDs []string `json:"userIds"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	participants := lo.Map(req.UserIDs, func(id string, _ int) domain.UserID {
		return domain.UserID(id)
	})
	chat, err := a.chats.CreateChat(r.Context(), userID, participants)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.reply(w, http.StatusCreated, toChatResponse(chat))
}

func (a *api) listChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	chatIDs, err := a.chats.FindChatsForUser(r.Context(), userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.reply(w, http.StatusOK, struct {
		ChatIDs []domain.ChatID `json:"chatIds"`
	}{ChatIDs: chatIDs})
}

func (a *api) getChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	chat, err := a.chats.GetChat(r.Context(), domain.ChatID(r.PathValue("id")))
	if err != nil {
		a.fail(w, err)
		return
	}
	if !chat.HasParticipant(userID) {
		// Same answer as a missing chat: membership is not probeable.
		a.fail(w, errs.ErrChatNotFound)
		return
	}
	a.reply(w, http.StatusOK, toChatResponse(chat))
}

func (a *api) addParticipants(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	chatID := domain.ChatID(r.PathValue("id"))
	var req struct {
		UserIDs []string `json:"userIds"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	chat, err := a.chats.GetChat(r.Context(), chatID)
	if err != nil {
		a.fail(w, err)
		return
	}
	if !chat.HasParticipant(userID) {
		a.fail(w, errs.ErrChatNotFound)
		return
	}
	updated, err := a.chats.AddParticipants(r.Context(), chatID, lo.Map(req.UserIDs,
		func(id string, _ int) domain.UserID { return domain.UserID(id) }))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.reply(w, http.StatusOK, toChatResponse(updated))
}

func (a *api) leaveChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	if err := a.chats.LeaveChat(r.Context(), domain.ChatID(r.PathValue("id")), userID); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) getMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	chatID := domain.ChatID(r.PathValue("id"))
	chat, err := a.chats.GetChat(r.Context(), chatID)
	if err != nil {
		a.fail(w, err)
		return
	}
	if !chat.HasParticipant(userID) {
		a.fail(w, errs.ErrChatNotFound)
		return
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	messages, nextCursor, err := a.messages.GetMessages(r.Context(), chatID, cursor)
	if err != nil {
		a.fail(w, err)
		return
	}
	type messageResponse struct {
		ID        string `json:"id"`
		ChatID    string `json:"chatId"`
		SenderID  string `json:"senderId"`
		Content   string `json:"content"`
		CreatedAt string `json:"createdAt"`
	}
	a.reply(w, http.StatusOK, struct {
		Messages []messageResponse `json:"messages"`
		Cursor   *string           `json:"cursor,omitempty"`
	}{
		Messages: lo.Map(messages, func(m domain.Message, _ int) messageResponse {
			return messageResponse{
				ID:        m.ID.String(),
				ChatID:    string(m.ChatID),
				SenderID:  string(m.SenderID),
				Content:   m.Content,
				CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			}
		}),
		Cursor: nextCursor,
	})
}

func (a *api) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	messageID, err := uuid.Parse(r.PathValue("messageId"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}
	chatID := domain.ChatID(r.PathValue("id"))
	if err := a.messages.DeleteMessage(r.Context(), chatID, messageID, userID); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) getProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	user, err := a.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.reply(w, http.StatusOK, struct {
		ID                string  `json:"id"`
		Username          string  `json:"username"`
		Email             string  `json:"email"`
		ProfilePictureURL *string `json:"profilePictureUrl,omitempty"`
	}{
		ID:                user.ID,
		Username:          user.Username,
		Email:             user.Email,
		ProfilePictureURL: user.ProfilePictureURL,
	})
}

func (a *api) updateProfilePicture(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	var req struct {
		NewURL *string `json:"newUrl"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.profiles.UpdateProfilePicture(r.Context(), userID, req.NewURL); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) authenticate(w http.ResponseWriter, r *http.Request) (domain.UserID, bool) {
	userID, err := a.verifier.ResolveUserID(r.Header.Get("Authorization"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (a *api) reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Error("Failed to encode response", "error", err)
	}
}

// fail maps domain errors to HTTP statuses.
func (a *api) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrChatNotFound),
		errors.Is(err, errs.ErrMessageNotFound),
		errors.Is(err, errs.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, errs.ErrUserAlreadyExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, errs.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, errs.ErrNotParticipant):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, errs.ErrInvalidPassword),
		errors.Is(err, errs.ErrInvalidPictureURL):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		a.log.Error("Internal error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
