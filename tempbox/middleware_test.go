package tempbox

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/ShovonSheikh/temp-box/token"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

// permissionRouter wraps okHandler in CheckPermissionJSON behind a route that
// sets the accountID var
func permissionRouter(s *Server) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/inbox/{accountID}/", s.CheckPermissionJSON(okHandler))
	return router
}

func TestCheckPermissionJSON(t *testing.T) {
	s := newTestServer(t, new(MockDatabase), new(MockProvider))
	router := permissionRouter(s)

	expiredTG := token.NewGenerator("testexample12344", time.Minute)
	expiredTG.Clock = func() time.Time { return time.Now().Add(-2 * time.Minute) }

	wrongKeyTG := token.NewGenerator("adifferentkey123", 24*time.Hour)

	tests := []struct {
		name         string
		key          string
		expectedCode int
	}{
		{name: "valid key", key: s.tg.NewToken("acc-1"), expectedCode: http.StatusOK},
		{name: "no key or session", key: "", expectedCode: http.StatusUnauthorized},
		{name: "garbage key", key: "dGhpcyBpcyBub3QgYSBrZXk", expectedCode: http.StatusUnauthorized},
		{name: "key signed with the wrong secret", key: wrongKeyTG.NewToken("acc-1"), expectedCode: http.StatusUnauthorized},
		{name: "expired key", key: expiredTG.NewToken("acc-1"), expectedCode: http.StatusForbidden},
		{name: "key for a different inbox", key: s.tg.NewToken("acc-2"), expectedCode: http.StatusForbidden},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/inbox/acc-1/", nil)
			if test.key != "" {
				r.Header.Set(KeyHeader, test.key)
			}
			router.ServeHTTP(rr, r)

			assert.Equal(t, test.expectedCode, rr.Code, rr.Body.String())
		})
	}
}

func TestCheckPermissionJSONSession(t *testing.T) {
	s := newTestServer(t, new(MockDatabase), new(MockProvider))
	router := permissionRouter(s)

	// bind a session cookie to acc-1
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	session := s.getSessionFromCookie(r)
	assert.NoError(t, session.SetAccountID("acc-1", rr))
	cookies := rr.Result().Cookies()
	assert.NotEmpty(t, cookies)

	tests := []struct {
		name         string
		url          string
		expectedCode int
	}{
		{name: "session matches inbox", url: "/inbox/acc-1/", expectedCode: http.StatusOK},
		{name: "session for a different inbox", url: "/inbox/acc-2/", expectedCode: http.StatusUnauthorized},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, test.url, nil)
			for _, c := range cookies {
				r.AddCookie(c)
			}
			router.ServeHTTP(rr, r)

			assert.Equal(t, test.expectedCode, rr.Code, rr.Body.String())
		})
	}
}

func TestCheckAdminKey(t *testing.T) {
	s := newTestServer(t, new(MockDatabase), new(MockProvider))

	tests := []struct {
		name         string
		key          string
		expectedCode int
	}{
		{name: "correct key", key: "admin-secret", expectedCode: http.StatusOK},
		{name: "wrong key", key: "letmein", expectedCode: http.StatusUnauthorized},
		{name: "missing key", key: "", expectedCode: http.StatusUnauthorized},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if test.key != "" {
				r.Header.Set("X-TempBox-Admin-Key", test.key)
			}
			s.CheckAdminKey(okHandler).ServeHTTP(rr, r)

			assert.Equal(t, test.expectedCode, rr.Code, rr.Body.String())
		})
	}
}

func TestCheckAdminKeyDisabled(t *testing.T) {
	mDB := new(MockDatabase)
	mDB.On("Start").Return(nil)
	s, err := New(Config{Key: "testexample12344"}, mDB, new(MockProvider), nil)
	assert.NoError(t, err)

	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.Header.Set("X-TempBox-Admin-Key", "admin-secret")
	s.CheckAdminKey(okHandler).ServeHTTP(rr, r)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHeaderMiddleware(t *testing.T) {
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSONContentType(SetVersionHeader(SecurityHeaders(okHandler))).ServeHTTP(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, version, rr.Header().Get("X-TempBox-Version"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rr.Header().Get("Referrer-Policy"))
}
