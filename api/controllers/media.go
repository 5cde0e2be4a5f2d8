package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/internal/media"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type SignedURLResolver interface {
	Resolve(ctx context.Context, raw string, expiry media.Expiry) media.Resolved
}

// SignedURL resolves ?path= to a signed URL with the requested expiry class.
// Unresolvable paths still answer 200 with the placeholder.
func SignedURL(resolver SignedURLResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resolver == nil {
			serviceUnavailable(w, r, logg, "media")
			return
		}
		path := strings.TrimSpace(r.URL.Query().Get("path"))
		if path == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "path is required").WithDetails(map[string]any{"field": "path"}))
			return
		}
		expiry, err := media.ParseExpiry(r.URL.Query().Get("expiry"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).WithDetails(map[string]any{"field": "expiry"}))
			return
		}
		responses.WriteSuccess(w, resolver.Resolve(r.Context(), path, expiry))
	}
}
