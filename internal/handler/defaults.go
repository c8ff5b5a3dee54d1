package handler

import (
	"github.com/pp23/ldapsecurity/internal/config"
	"go.uber.org/zap"
)

// DefaultEntryPoint builds the entry point of an authentication surface.
func DefaultEntryPoint(authc *config.AuthcProperties, logger *zap.Logger) EntryPoint {
	unauthorized := &UnauthorizedEntryPoint{
		WWWAuthenticateHeader: authc.WWWAuthenticateHeader,
		Realm:                 authc.Realm,
		Logger:                logger,
	}
	if authc.LoginPageURL == "" {
		return unauthorized
	}
	return EntryPointFor([]MatchedEntryPoint{&LoginPageEntryPoint{LoginPageURL: authc.LoginPageURL}}, unauthorized)
}

func DefaultSuccessHandler(authc *config.AuthcProperties, serializer Serializer, logger *zap.Logger) SuccessHandler {
	if authc.SuccessURL != "" {
		return &RedirectSuccessHandler{URL: authc.SuccessURL}
	}
	return &JSONSuccessHandler{Serializer: serializer, Logger: logger}
}

func DefaultFailureHandler(authc *config.AuthcProperties, serializer Serializer, logger *zap.Logger) FailureHandler {
	if authc.FailureURL != "" {
		return &RedirectFailureHandler{URL: authc.FailureURL}
	}
	return &JSONFailureHandler{Serializer: serializer, Logger: logger}
}
