package tempbox

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ShovonSheikh/temp-box/token"
)

// KeyHeader carries the signed account key on API calls
const KeyHeader = "X-TempBox-Key"

// JSONContentType sets content type of the response to json
func JSONContentType(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		h.ServeHTTP(w, r)
	})
}

// SetVersionHeader adds the current version to the response
func SetVersionHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-TempBox-Version", version)
		h.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets a handful of headers to keep responses inert in a browser
func SecurityHeaders(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		h.ServeHTTP(w, r)
	})
}

// CheckPermissionJSON checks whether the caller may act on the account in the
// url. A signed key header or a matching session cookie both pass.
func (s *Server) CheckPermissionJSON(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urlID := mux.Vars(r)["accountID"]

		k := r.Header.Get(KeyHeader)
		if k == "" {
			session := s.getSessionFromCookie(r)
			if session.IsNew || session.AccountID != urlID {
				returnJSONError(w, r, http.StatusUnauthorized, "Unauthorized: no auth key or session for this inbox")
				return
			}
			h.ServeHTTP(w, r)
			return
		}

		id, err := s.tg.VerifyToken(k)
		if err == token.ErrInvalidToken {
			returnJSONError(w, r, http.StatusUnauthorized, "Unauthorized: given auth key invalid")
			return
		} else if err == token.ErrTokenExpired {
			returnJSONError(w, r, http.StatusForbidden, "Forbidden: your auth key has expired")
			return
		} else if err != nil {
			s.log.Error("failed to verify auth key", zap.Error(err))
			returnJSONError(w, r, http.StatusInternalServerError, "Something went wrong")
			return
		}

		if id != urlID {
			returnJSONError(w, r, http.StatusForbidden, "Forbidden: you do not have permission to access this resource")
			return
		}

		h.ServeHTTP(w, r)
	})
}

// CheckAdminKey guards administrative endpoints with a shared key
func (s *Server) CheckAdminKey(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey == "" {
			returnJSONError(w, r, http.StatusForbidden, "Forbidden: admin endpoints are disabled")
			return
		}

		k := r.Header.Get("X-TempBox-Admin-Key")
		if strings.Compare(k, s.cfg.AdminKey) != 0 {
			returnJSONError(w, r, http.StatusUnauthorized, "Unauthorized: bad admin key")
			return
		}

		h.ServeHTTP(w, r)
	})
}
