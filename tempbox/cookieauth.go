package tempbox

import (
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

// Session related constants
const sessionKey = "temp_box"
const accountIDKey = "account_id"

type session struct {
	AccountID string
	IsNew     bool
	cookie    *sessions.Session
	r         *http.Request
}

func (s *session) SetAccountID(accountID string, w http.ResponseWriter) error {
	s.AccountID = accountID
	s.cookie.Values[accountIDKey] = accountID
	err := s.cookie.Save(s.r, w)
	if err != nil {
		return fmt.Errorf("cookie - failed to save account id: %w", err)
	}
	return nil
}

func (s *session) Delete(w http.ResponseWriter) error {
	s.cookie.Options.MaxAge = -1
	err := s.cookie.Save(s.r, w)
	if err != nil {
		return fmt.Errorf("cookie - failed to delete cookie: %w", err)
	}
	return nil
}

func (s *Server) getSessionFromCookie(r *http.Request) session {
	cookie, _ := s.sessionStore.Get(r, sessionKey)

	session := session{
		cookie: cookie,
		r:      r,
	}

	if !cookie.IsNew {
		id, ok := cookie.Values[accountIDKey].(string)
		if !ok || id == "" {
			session.AccountID = ""
			session.IsNew = true
		} else {
			session.AccountID = id
			session.IsNew = false
		}
	} else {
		session.AccountID = ""
		session.IsNew = true
	}

	return session
}
