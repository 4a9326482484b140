package scans_api

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	stationHeader = "X-Station-ID"
	submitWindow  = time.Minute
)

// requireToken пускает запрос с общим токеном оператора из заголовка
// Authorization: Bearer <token> или из cookie "token".
func (a *ScansAPI) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.token == "" || !tokenMatches(bearerToken(r), a.token) {
			writeJSON(w, http.StatusUnauthorized, envelope{Error: "not authorized to access this route", Kind: "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie("token"); err == nil {
		return c.Value
	}
	return ""
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// limitSubmits ограничивает отправки по станции. Ошибка Redis не блокирует приём.
func (a *ScansAPI) limitSubmits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.rl == nil || a.submitLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		station := stationID(r, a.trustStationHeader)
		ok, retryAfter, err := a.rl.Allow(r.Context(), "rl:submit:"+station, a.submitLimit, submitWindow)
		if err != nil {
			slog.Warn("submit rate limiter failed", "station", station, "err", err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
			writeJSON(w, http.StatusTooManyRequests, envelope{Error: "too many scans from this station, slow down", Kind: "RateLimited"})
			slog.Warn("submit rate limited", "station", station, "retry_after", retryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds округляет вверх, минимум 1 секунда.
func retryAfterSeconds(d time.Duration) int {
	sec := int((d + time.Second - 1) / time.Second)
	if sec < 1 {
		return 1
	}
	return sec
}

// stationID выбирает ключ лимита. Заголовок задаёт клиент, поэтому без
// trustHeader ключом служит адрес соединения.
func stationID(r *http.Request, trustHeader bool) string {
	if trustHeader {
		if s := strings.TrimSpace(r.Header.Get(stationHeader)); s != "" {
			return s
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
