package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	actorKey     = "actor"
	requestIDKey = "request_id"

	headerRequestID   = "X-Request-ID"
	headerIdempotency = "Idempotency-Key"
)

// Claims carries the caller identity. The subject is the numeric user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewAccessToken signs an HS256 token for actor.
func NewAccessToken(actor domain.Actor, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAccessToken verifies raw and turns its claims into an actor.
func ParseAccessToken(raw, secret string) (domain.Actor, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Actor{}, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return domain.Actor{}, errors.New("invalid token")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return domain.Actor{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	role := domain.Role(strings.ToUpper(claims.Role))
	if !role.Valid() {
		return domain.Actor{}, fmt.Errorf("invalid role %q", claims.Role)
	}
	return domain.Actor{ID: id, Role: role}, nil
}

// Authenticate requires a bearer token and stores the caller in the
// context.
func Authenticate(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			abortUnauthenticated(c, "invalid authorization header")
			return
		}
		actor, err := ParseAccessToken(strings.TrimPrefix(authz, "Bearer "), secret)
		if err != nil {
			abortUnauthenticated(c, "invalid authorization token")
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, actorFrom(c).Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{
				Error: "role not allowed for this operation",
				Code:  domain.CodeForbidden,
			})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) domain.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(domain.Actor); ok {
			return actor
		}
	}
	return domain.Actor{}
}

// RequestID reuses the caller's X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
		}
		if actor := actorFrom(c); actor.ID != 0 {
			fields = append(fields, zap.Int64("actor_id", actor.ID), zap.String("actor_role", string(actor.Role)))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("http request", fields...)
			return
		}
		logger.Info("http request", fields...)
	}
}

// IdempotencyStore keeps one response per idempotency key.
type IdempotencyStore interface {
	ReserveIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	GetIdempotentResponse(ctx context.Context, key string) ([]byte, bool, error)
	SaveIdempotentResponse(ctx context.Context, key string, response []byte, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the caller. A request whose key is still in flight is
// rejected with 409. Store failures disable replay for that request rather
// than failing it.
func Idempotency(store IdempotencyStore, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(headerIdempotency)
		if raw == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := fmt.Sprintf("%d:%s", actorFrom(c).ID, raw)

		stored, ok, err := store.GetIdempotentResponse(ctx, key)
		if err != nil {
			logger.Warn("idempotency lookup failed", zap.String("request_id", requestID(c)), zap.Error(err))
			c.Next()
			return
		}
		if ok {
			var resp storedResponse
			if err := json.Unmarshal(stored, &resp); err == nil {
				c.Header("Idempotent-Replayed", "true")
				c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
				c.Abort()
				return
			}
		}

		reserved, err := store.ReserveIdempotencyKey(ctx, key, ttl)
		if err != nil {
			logger.Warn("idempotency reserve failed", zap.String("request_id", requestID(c)), zap.Error(err))
			c.Next()
			return
		}
		if !reserved {
			c.AbortWithStatusJSON(http.StatusConflict, errorResponse{
				Error: "a request with this Idempotency-Key is already in progress",
				Code:  codeIdempotencyBusy,
			})
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError || rec.body.Len() == 0 {
			if err := store.ReleaseIdempotencyKey(ctx, key); err != nil {
				logger.Warn("idempotency release failed", zap.String("request_id", requestID(c)), zap.Error(err))
			}
			return
		}
		payload, err := json.Marshal(storedResponse{Status: status, Body: rec.body.Bytes()})
		if err == nil {
			err = store.SaveIdempotentResponse(ctx, key, payload, ttl)
		}
		if err != nil {
			logger.Warn("idempotency save failed", zap.String("request_id", requestID(c)), zap.Error(err))
		}
	}
}

// decodeStrict decodes a JSON body into dst, rejects unknown fields and
// trailing data, then checks the binding rules of dst.
func decodeStrict(c *gin.Context, dst any) error {
	if c.Request.Body == nil {
		return domain.Validation("request body is required")
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Validation("request body is required")
		}
		return domain.Validation("malformed request body: %v", err)
	}
	if dec.More() {
		return domain.Validation("request body must contain a single JSON object")
	}
	return validateRequest(dst)
}
