package web

import (
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"signaltap/config"
	"signaltap/logging"
)

// dummyHash is compared against when the user is unknown so that a missing
// user costs the same as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("signaltap"), bcrypt.DefaultCost)

// checkPassword verifies a password against a bcrypt hash.
func checkPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// basicAuth rejects requests without valid credentials for one of the
// configured users.
func basicAuth(auth config.AuthConfig) func(http.Handler) http.Handler {
	realm := auth.Realm
	if realm == "" {
		realm = "SignalTap"
	}
	users := make(map[string]string, len(auth.Users))
	for _, u := range auth.Users {
		users[u.Username] = u.PasswordHash
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if ok {
				hash, known := users[username]
				if !known {
					hash = string(dummyHash)
				}
				valid := checkPassword(password, hash)
				if known && valid {
					next.ServeHTTP(w, r)
					return
				}
				logging.DebugLog("http", "auth failed for user %q from %s", username, r.RemoteAddr)
			}

			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s", charset="UTF-8"`, realm))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated", "kind": "Unauthorized"})
		})
	}
}
