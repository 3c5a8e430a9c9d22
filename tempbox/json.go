package tempbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Response is the root response for every api call
type Response struct {
	Success bool        `json:"success"`
	Errors  interface{} `json:"errors"`
	Result  interface{} `json:"result"`
	Meta    Meta        `json:"meta"`
}

// Errors is our error struct for if something goes wrong
type Errors struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Meta contains the version number
type Meta struct {
	Version string `json:"version"`
}

// GetMeta returns meta info for json api responses
func GetMeta() Meta {
	return Meta{
		Version: version,
	}
}

func returnJSON(w http.ResponseWriter, r *http.Request, status int, result interface{}) {
	res := Response{
		Success: true,
		Result:  result,
		Meta:    GetMeta(),
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

func returnJSONError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	res := Response{
		Success: false,
		Errors: Errors{
			Code: status,
			Msg:  msg,
		},
		Meta: GetMeta(),
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

// inboxResult is the wire form of an inbox returned to callers
type inboxResult struct {
	ID               string    `json:"id"`
	Address          string    `json:"address"`
	State            string    `json:"state"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	MessageCount     int       `json:"message_count"`
	Token            string    `json:"token,omitempty"`
}

func (s *Server) inboxResult(l *Lifecycle, withToken bool) inboxResult {
	account := l.Account()
	res := inboxResult{
		ID:               account.ID,
		Address:          account.Address,
		State:            l.State().String(),
		CreatedAt:        account.CreatedAt,
		ExpiresAt:        account.ExpiresAt,
		RemainingSeconds: int64(l.Remaining() / time.Second),
		MessageCount:     account.MessageCount,
	}
	if withToken {
		res.Token = s.tg.NewToken(account.ID)
	}
	return res
}

// NewInboxJSON creates a new remote inbox and returns it with an auth key
func (s *Server) NewInboxJSON(w http.ResponseWriter, r *http.Request) {
	l := s.newLifecycle()

	if _, err := l.Create(r.Context()); err != nil {
		if errors.Is(err, ErrNoDomains) {
			returnJSONError(w, r, http.StatusServiceUnavailable, "No sending domains are currently available")
			return
		}
		s.log.Error("failed to create inbox", zap.Error(err))
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to create inbox")
		return
	}

	s.registerInbox(l)

	session := s.getSessionFromCookie(r)
	if err := session.SetAccountID(l.Account().ID, w); err != nil {
		s.log.Warn("failed to set session cookie", zap.Error(err))
	}

	returnJSON(w, r, http.StatusOK, map[string]interface{}{
		"inbox": s.inboxResult(l, true),
	})
}

// GetInboxDetailsJSON returns details on the given inbox
func (s *Server) GetInboxDetailsJSON(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["accountID"]

	l, ok := s.getInbox(id)
	if !ok {
		returnJSONError(w, r, http.StatusNotFound, "Inbox not found")
		return
	}

	returnJSON(w, r, http.StatusOK, map[string]interface{}{
		"inbox": s.inboxResult(l, false),
	})
}

// DeleteInboxJSON tears the inbox down. Local state is cleared even when the
// remote delete fails.
func (s *Server) DeleteInboxJSON(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["accountID"]

	l, ok := s.getInbox(id)
	if !ok {
		returnJSONError(w, r, http.StatusNotFound, "Inbox not found")
		return
	}

	if err := l.Delete(r.Context()); err != nil {
		s.log.Error("failed to delete inbox", zap.String("account_id", id), zap.Error(err))
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to delete inbox")
		return
	}

	session := s.getSessionFromCookie(r)
	if !session.IsNew {
		if err := session.Delete(w); err != nil {
			s.log.Warn("failed to clear session cookie", zap.Error(err))
		}
	}

	returnJSON(w, r, http.StatusOK, map[string]interface{}{
		"deleted": true,
	})
}

type extendRequest struct {
	Duration string `json:"duration"`
}

// ExtendInboxJSON pushes the inbox expiry out by the requested duration
func (s *Server) ExtendInboxJSON(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["accountID"]

	l, ok := s.getInbox(id)
	if !ok {
		returnJSONError(w, r, http.StatusNotFound, "Inbox not found")
		return
	}

	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		returnJSONError(w, r, http.StatusBadRequest, "Bad request: expected a json body with a duration")
		return
	}

	d, err := time.ParseDuration(req.Duration)
	if err != nil || d <= 0 || d > 24*time.Hour {
		returnJSONError(w, r, http.StatusBadRequest, "Bad request: duration must be between 1s and 24h")
		return
	}

	if _, err := l.Extend(r.Context(), d); err != nil {
		s.log.Error("failed to extend inbox", zap.String("account_id", id), zap.Error(err))
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to extend inbox")
		return
	}

	returnJSON(w, r, http.StatusOK, map[string]interface{}{
		"inbox": s.inboxResult(l, false),
	})
}

// GetAllMessagesJSON returns the inbox's message list
func (s *Server) GetAllMessagesJSON(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["accountID"]

	l, ok := s.getInbox(id)
	if !ok {
		returnJSONError(w, r, http.StatusNotFound, "Inbox not found")
		return
	}

	msgs, err := l.Messages(r.Context())
	if err != nil {
		if errors.Is(err, ErrNotActive) {
			returnJSONError(w, r, http.StatusGone, "Inbox is no longer active")
			return
		}
		s.log.Error("failed to get messages", zap.String("account_id", id), zap.Error(err))
		returnJSONError(w, r, http.StatusBadGateway, "Failed to fetch messages from provider")
		return
	}

	returnJSON(w, r, http.StatusOK, map[string]interface{}{
		"messages": msgs,
	})
}

// GetMessageJSON returns a single message with bodies
func (s *Server) GetMessageJSON(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["accountID"]
	messageID := vars["messageID"]

	l, ok := s.getInbox(id)
	if !ok {
		returnJSONError(w, r, http.StatusNotFound, "Inbox not found")
		return
	}

	msg, err := l.Message(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, ErrNotActive) {
			returnJSONError(w, r, http.StatusGone, "Inbox is no longer active")
			return
		}
		s.log.Error("failed to get message",
			zap.String("account_id", id), zap.String("message_id", messageID), zap.Error(err))
		returnJSONError(w, r, http.StatusBadGateway, "Failed to fetch message from provider")
		return
	}

	returnJSON(w, r, http.StatusOK, map[string]interface{}{
		"message": msg,
	})
}

// DeleteMessageJSON deletes one message
func (s *Server) DeleteMessageJSON(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["accountID"]
	messageID := vars["messageID"]

	l, ok := s.getInbox(id)
	if !ok {
		returnJSONError(w, r, http.StatusNotFound, "Inbox not found")
		return
	}

	if err := l.DeleteMessage(r.Context(), messageID); err != nil {
		s.log.Error("failed to delete message",
			zap.String("account_id", id), zap.String("message_id", messageID), zap.Error(err))
		returnJSONError(w, r, http.StatusBadGateway, "Failed to delete message")
		return
	}

	returnJSON(w, r, http.StatusOK, map[string]interface{}{
		"deleted": true,
	})
}

// TriggerCleanupJSON runs a sweep with the same semantics as the scheduled
// path. A sweep already in flight makes this a no-op.
func (s *Server) TriggerCleanupJSON(w http.ResponseWriter, r *http.Request) {
	res, err := s.cleaner.Sweep(r.Context())
	if err != nil {
		if errors.Is(err, ErrSweepRunning) {
			returnJSONError(w, r, http.StatusConflict, "A sweep is already running")
			return
		}
		s.log.Error("manual sweep failed", zap.Error(err))
		returnJSONError(w, r, http.StatusInternalServerError, "Sweep failed")
		return
	}

	returnJSON(w, r, http.StatusOK, map[string]interface{}{
		"sweep": res,
	})
}

// CleanupStatsJSON returns the latest aggregate stats snapshot
func (s *Server) CleanupStatsJSON(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetCleanupStats()
	if err != nil {
		s.log.Error("failed to get cleanup stats", zap.Error(err))
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to get stats")
		return
	}

	returnJSON(w, r, http.StatusOK, map[string]interface{}{
		"stats": stats,
	})
}

// CleanupLogJSON returns the recent per-attempt cleanup records
func (s *Server) CleanupLogJSON(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.ListCleanupEntries()
	if err != nil {
		s.log.Error("failed to list cleanup entries", zap.Error(err))
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to get cleanup log")
		return
	}

	returnJSON(w, r, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// AuditLogJSON returns recent audit entries
func (s *Server) AuditLogJSON(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.ListAuditEntries()
	if err != nil {
		s.log.Error("failed to list audit entries", zap.Error(err))
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to get audit log")
		return
	}

	returnJSON(w, r, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}
