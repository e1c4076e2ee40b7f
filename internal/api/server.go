package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"wayfare/internal/call"
	chatservice "wayfare/internal/chat/service"
	"wayfare/internal/common"
	"wayfare/internal/config"
	"wayfare/internal/dbmysql"
	"wayfare/internal/notif"
	"wayfare/internal/presence"
	"wayfare/internal/push"
)

// NotificationService is the slice of the notification component the
// HTTP layer needs.
type NotificationService interface {
	List(ctx context.Context, recipientID string, limit, offset int) ([]*dbmysql.Notification, error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	MarkAsRead(ctx context.Context, notificationID, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
	Delete(ctx context.Context, notificationID, recipientID string) error
	BroadcastToRole(ctx context.Context, actorID *string, role common.Role, notifType common.NotificationType, content string, refs common.SubjectRefs) (*notif.BroadcastResult, error)
}

// Server is the HTTP surface of the realtime core: REST endpoints for
// messaging, notifications and call signaling, plus the SSE stream that
// carries live pushes and anchors a user's presence.
type Server struct {
	cfg      *config.Config
	chat     chatservice.ChatService
	notifs   NotificationService
	calls    call.CallService
	registry *presence.Registry
	hub      *push.Hub
	router   *mux.Router
}

func NewServer(
	cfg *config.Config,
	chat chatservice.ChatService,
	notifs NotificationService,
	calls call.CallService,
	registry *presence.Registry,
	hub *push.Hub,
) *Server {
	s := &Server{
		cfg:      cfg,
		chat:     chat,
		notifs:   notifs,
		calls:    calls,
		registry: registry,
		hub:      hub,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.health).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(common.AuthMiddleware)

	api.HandleFunc("/events", s.events).Methods("GET")
	api.HandleFunc("/online", s.onlineUsers).Methods("GET")

	api.HandleFunc("/conversations", s.listConversations).Methods("GET")
	api.HandleFunc("/messages", s.sendMessage).Methods("POST")
	api.HandleFunc("/messages/{peerId}", s.messageHistory).Methods("GET")
	api.HandleFunc("/messages/{messageId}/read", s.markMessageRead).Methods("POST")
	api.HandleFunc("/typing", s.typing).Methods("POST")

	api.HandleFunc("/notifications", s.listNotifications).Methods("GET")
	api.HandleFunc("/notifications/unread-count", s.unreadCount).Methods("GET")
	api.HandleFunc("/notifications/read-all", s.markAllNotificationsRead).Methods("POST")
	api.HandleFunc("/notifications/broadcast", s.broadcastNotification).Methods("POST")
	api.HandleFunc("/notifications/{notificationId}/read", s.markNotificationRead).Methods("POST")
	api.HandleFunc("/notifications/{notificationId}", s.deleteNotification).Methods("DELETE")

	api.HandleFunc("/calls", s.initiateCall).Methods("POST")
	api.HandleFunc("/calls", s.callHistory).Methods("GET")
	api.HandleFunc("/calls/active", s.activeCall).Methods("GET")
	api.HandleFunc("/calls/{channelId}/accept", s.acceptCall).Methods("POST")
	api.HandleFunc("/calls/{channelId}/reject", s.rejectCall).Methods("POST")
	api.HandleFunc("/calls/{channelId}/end", s.endCall).Methods("POST")

	s.router = router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": s.hub.Connections(),
	})
}

// events is the long-lived SSE stream. Opening it marks the user online;
// the stream closing marks them offline. One stream per user: a newer
// connection supersedes the old one.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	userID := common.CallerID(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	handle := uuid.New().String()
	events := s.hub.Register(handle)

	superseded, hadPrevious := s.registry.Connect(userID, handle)
	if hadPrevious {
		if s.cfg.Presence.NotifySuperseded {
			// Buffered events survive the close below, so the old stream
			// still sees this before it ends.
			s.hub.PushToConnection(superseded, common.EventSessionSuperseded, map[string]string{
				"reason": "connected elsewhere",
			})
		}
		s.hub.Unregister(superseded)
	}

	s.hub.Broadcast(common.EventOnlineUsers, s.registry.OnlineUsers())

	defer func() {
		if _, stillCurrent := s.registry.Disconnect(handle); stillCurrent {
			s.hub.Broadcast(common.EventOnlineUsers, s.registry.OnlineUsers())
		}
		s.hub.Unregister(handle)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeSSE(w, common.EventOnlineUsers, s.registry.OnlineUsers())
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case event, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, event.Name, event.Payload); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

type onlineUserEntry struct {
	UserID     string `json:"userId"`
	Online     bool   `json:"online"`
	LastActive int64  `json:"lastActive,omitempty"`
}

func (s *Server) onlineUsers(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.OnlineUsers()
	users := make([]onlineUserEntry, 0, len(ids))
	for _, id := range ids {
		entry := onlineUserEntry{UserID: id, Online: true}
		if at, ok := s.registry.LastActive(id); ok {
			entry.LastActive = at.UnixMilli()
		}
		users = append(users, entry)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": users})
}

type sendMessageRequest struct {
	ReceiverID   string  `json:"receiverId"`
	Body         string  `json:"body"`
	Kind         string  `json:"kind"`
	AttachmentID *string `json:"attachmentId,omitempty"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.InvalidArgument("invalid request body"))
		return
	}

	kind := common.MessageKind(req.Kind)
	if kind == "" {
		kind = common.KindText
	}

	message, err := s.chat.Send(r.Context(), common.CallerID(r.Context()), req.ReceiverID, req.Body, kind, req.AttachmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (s *Server) messageHistory(w http.ResponseWriter, r *http.Request) {
	peerID := mux.Vars(r)["peerId"]
	limit, offset := pagination(r, 50)

	messages, err := s.chat.History(r.Context(), common.CallerID(r.Context()), peerID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) markMessageRead(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["messageId"]

	if err := s.chat.MarkRead(r.Context(), messageID, common.CallerID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

type typingRequest struct {
	ReceiverID string `json:"receiverId"`
	Stopped    bool   `json:"stopped"`
}

func (s *Server) typing(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.InvalidArgument("invalid request body"))
		return
	}

	s.chat.Typing(r.Context(), common.CallerID(r.Context()), req.ReceiverID, req.Stopped)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.chat.Conversations(r.Context(), common.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 20)

	notifications, err := s.notifs.List(r.Context(), common.CallerID(r.Context()), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.notifs.UnreadCount(r.Context(), common.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": count})
}

func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	notificationID := mux.Vars(r)["notificationId"]

	if err := s.notifs.MarkAsRead(r.Context(), notificationID, common.CallerID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *Server) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := s.notifs.MarkAllRead(r.Context(), common.CallerID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	notificationID := mux.Vars(r)["notificationId"]

	if err := s.notifs.Delete(r.Context(), notificationID, common.CallerID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type broadcastRequest struct {
	Role    string             `json:"role"`
	Type    string             `json:"type"`
	Content string             `json:"content"`
	Refs    common.SubjectRefs `json:"refs"`
}

// broadcastNotification fans a notification out to every holder of a
// role. Admin only.
func (s *Server) broadcastNotification(w http.ResponseWriter, r *http.Request) {
	if common.CallerRole(r.Context()) != common.RoleAdmin {
		writeError(w, common.NotAuthorized("admin role required"))
		return
	}

	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.InvalidArgument("invalid request body"))
		return
	}

	actorID := common.CallerID(r.Context())
	result, err := s.notifs.BroadcastToRole(
		r.Context(),
		&actorID,
		common.Role(req.Role),
		common.NotificationType(req.Type),
		req.Content,
		req.Refs,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	failed := make([]string, 0, len(result.Failed))
	for recipientID := range result.Failed {
		failed = append(failed, recipientID)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notified": result.Notified,
		"failed":   failed,
	})
}

type initiateCallRequest struct {
	ReceiverID string `json:"receiverId"`
}

func (s *Server) initiateCall(w http.ResponseWriter, r *http.Request) {
	var req initiateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.InvalidArgument("invalid request body"))
		return
	}

	session, err := s.calls.Initiate(r.Context(), common.CallerID(r.Context()), req.ReceiverID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) acceptCall(w http.ResponseWriter, r *http.Request) {
	session, err := s.calls.Accept(r.Context(), mux.Vars(r)["channelId"], common.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) rejectCall(w http.ResponseWriter, r *http.Request) {
	session, err := s.calls.Reject(r.Context(), mux.Vars(r)["channelId"], common.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type endCallRequest struct {
	Duration int    `json:"duration"`
	Reason   string `json:"reason"`
}

func (s *Server) endCall(w http.ResponseWriter, r *http.Request) {
	var req endCallRequest
	if r.Body != nil {
		// A missing body means the client has nothing to report; the
		// service fills in the reason and duration itself.
		json.NewDecoder(r.Body).Decode(&req)
	}

	session, err := s.calls.End(r.Context(), mux.Vars(r)["channelId"], common.CallerID(r.Context()),
		common.CallEndReason(req.Reason), req.Duration)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// activeCall answers "am I in a call right now" for reconnecting
// clients. A free user gets a null session, not an error.
func (s *Server) activeCall(w http.ResponseWriter, r *http.Request) {
	session, err := s.calls.ActiveCallFor(r.Context(), common.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": session})
}

func (s *Server) callHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 20)

	sessions, err := s.calls.History(r.Context(), common.CallerID(r.Context()), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func writeSSE(w http.ResponseWriter, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := common.CodeOf(err)

	message := err.Error()
	var domainErr *common.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	writeJSON(w, httpStatusOf(code), map[string]string{
		"code":  string(code),
		"error": message,
	})
}

func httpStatusOf(code common.ErrorCode) int {
	switch code {
	case common.CodeInvalidArgument:
		return http.StatusBadRequest
	case common.CodeNotAuthorized:
		return http.StatusForbidden
	case common.CodeUnknownRecipient, common.CodeNotFound, common.CodeCallNotFound:
		return http.StatusNotFound
	case common.CodeRecipientOffline, common.CodeRecipientBusy, common.CodeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
