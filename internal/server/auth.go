package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/emrgen/docrender/internal/service"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	authorization = "authorization"
	bearerPrefix  = "bearer "
)

var (
	ErrInvalidToken    = errors.New("invalid access token")
	ErrUnauthenticated = errors.New("authentication required")
)

// TokenVerifier turns an access token into the actor it was issued to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (service.Actor, error)
}

var _ TokenVerifier = NullTokenVerifier{}

// NullTokenVerifier trusts the caller: the token is the user id itself.
// Authentication happens in front of this service.
type NullTokenVerifier struct{}

func NewNullTokenVerifier() NullTokenVerifier {
	return NullTokenVerifier{}
}

func (NullTokenVerifier) Verify(ctx context.Context, token string) (service.Actor, error) {
	id, err := uuid.Parse(token)
	if err != nil || id == uuid.Nil {
		return service.Anonymous(), ErrInvalidToken
	}

	return service.UserActor(id), nil
}

// bearerToken extracts the token of an Authorization header value.
func bearerToken(value string) (string, bool) {
	if len(value) <= len(bearerPrefix) || !strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearerPrefix):])
	return token, token != ""
}

// actorFromRequest authenticates an http request. A request without credentials
// is anonymous, a request with bad credentials is rejected.
func actorFromRequest(r *http.Request, verifier TokenVerifier) (service.Actor, error) {
	value := r.Header.Get("Authorization")
	if value == "" {
		return service.Anonymous(), nil
	}

	token, ok := bearerToken(value)
	if !ok {
		return service.Anonymous(), ErrInvalidToken
	}

	return verifier.Verify(r.Context(), token)
}

type actorKey struct{}

func withActor(ctx context.Context, actor service.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by the auth interceptor, anonymous if none.
func ActorFromContext(ctx context.Context) service.Actor {
	if actor, ok := ctx.Value(actorKey{}).(service.Actor); ok {
		return actor
	}

	return service.Anonymous()
}

// UnaryServerActorInterceptor injects the caller's actor into the request context.
// Calls without a token continue anonymously.
func UnaryServerActorInterceptor(verifier TokenVerifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		token, err := accessTokenFromHeader(ctx, authorization)
		if errors.Is(err, ErrInvalidToken) {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		if err != nil {
			return handler(withActor(ctx, service.Anonymous()), req)
		}

		actor, err := verifier.Verify(ctx, token)
		if err != nil {
			logrus.Debugf("rejected token on %s: %v", info.FullMethod, err)
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(withActor(ctx, actor), req)
	}
}

func accessTokenFromHeader(ctx context.Context, header string) (string, error) {
	headers, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("metadata not found")
	}

	val := headers.Get(header)
	if len(val) == 0 || val[0] == "" {
		return "", errors.New("header not found")
	}

	token, ok := bearerToken(val[0])
	if !ok {
		return "", ErrInvalidToken
	}

	return token, nil
}
