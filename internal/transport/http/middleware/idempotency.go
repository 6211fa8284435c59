package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"dpdp/internal/platform/querier"
	"dpdp/internal/transport/http/api"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

const idempotencyHeader = "Idempotency-Key"

// StoredResponse is a replayable earlier answer for an idempotency key.
type StoredResponse struct {
	Status int
	Body   json.RawMessage
}

type IdempotencyRepository interface {
	Check(ctx context.Context, userID, endpoint, key, requestHash string) (StoredResponse, bool, error)
	Save(ctx context.Context, userID, endpoint, key, requestHash string, resp StoredResponse) error
}

type IdempotencyStore struct {
	DB querier.Querier
}

func NewIdempotencyStore(db querier.Querier) *IdempotencyStore {
	return &IdempotencyStore{DB: db}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *IdempotencyStore) Check(ctx context.Context, userID, endpoint, key, requestHash string) (StoredResponse, bool, error) {
	if s == nil || s.DB == nil {
		return StoredResponse{}, false, nil
	}
	var storedHash string
	var stored StoredResponse
	err := s.DB.QueryRow(ctx, `
    SELECT request_hash, status_code, response_json
    FROM idempotency_keys
    WHERE user_id = $1 AND key = $2 AND endpoint = $3
  `, userID, key, endpoint).Scan(&storedHash, &stored.Status, &stored.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, err
	}
	if storedHash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return stored, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, userID, endpoint, key, requestHash string, resp StoredResponse) error {
	if s == nil || s.DB == nil {
		return nil
	}
	tag, err := s.DB.Exec(ctx, `
    INSERT INTO idempotency_keys (user_id, key, endpoint, request_hash, status_code, response_json)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (user_id, key, endpoint)
    DO UPDATE SET response_json = EXCLUDED.response_json, status_code = EXCLUDED.status_code
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, userID, key, endpoint, requestHash, resp.Status, resp.Body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

type bufferedResponse struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
	b.ResponseWriter.WriteHeader(code)
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}

// Idempotent replays the first successful response for a repeated
// Idempotency-Key from the same user. Requests without the header, or
// without a user, pass straight through.
func Idempotent(store IdempotencyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			user, ok := GetUser(r.Context())
			if key == "" || !ok || len(key) > 128 {
				next.ServeHTTP(w, r)
				return
			}
			reqID := GetRequestID(r.Context())

			raw, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_body", "could not read request body", reqID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			endpoint := r.Method + " " + r.URL.Path
			hash := RequestHash(raw)

			stored, found, err := store.Check(r.Context(), user.UserID, endpoint, key, hash)
			switch {
			case errors.Is(err, ErrIdempotencyConflict):
				api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different payload", reqID)
				return
			case err != nil:
				slog.Warn("idempotency lookup failed", "endpoint", endpoint, "err", err)
			case found:
				w.Header().Set("Idempotent-Replayed", "true")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			buf := &bufferedResponse{ResponseWriter: w}
			next.ServeHTTP(buf, r)
			if buf.status < 200 || buf.status >= 300 || !json.Valid(buf.body.Bytes()) {
				return
			}
			resp := StoredResponse{Status: buf.status, Body: json.RawMessage(bytes.TrimSpace(buf.body.Bytes()))}
			if err := store.Save(r.Context(), user.UserID, endpoint, key, hash, resp); err != nil {
				slog.Warn("idempotency save failed", "endpoint", endpoint, "err", err)
			}
		})
	}
}
