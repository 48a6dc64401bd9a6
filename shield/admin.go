package shield

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashToken returns the bcrypt hash to configure as admin_token_hash.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckTokenHash reports whether hash is a usable bcrypt hash.
func CheckTokenHash(hash string) error {
	_, err := bcrypt.Cost([]byte(hash))
	return err
}

// AdminAuth requires "Authorization: Bearer <token>" where token matches the
// bcrypt hash. An empty hash disables the guarded routes entirely.
func AdminAuth(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				deny(w, http.StatusForbidden, "admin API disabled")
				return
			}
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tabxport"`)
				deny(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
				deny(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
