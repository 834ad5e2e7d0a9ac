package discord

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/jamesprial/guildview/internal/apierr"
)

// Classify maps an error returned by a discordgo REST call onto the apierr
// taxonomy. Errors that are already classified pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *apierr.Error
	if errors.As(err, &classified) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apierr.E(apierr.Transport, op, "request cancelled", err)
	}
	if errors.Is(err, discordgo.ErrUnauthorized) {
		return apierr.E(apierr.Unauthenticated, op, "invalid bot token", err)
	}

	var rle *discordgo.RateLimitError
	if errors.As(err, &rle) {
		return apierr.E(apierr.Transport, op, "rate limited", err)
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return apierr.E(apierr.Transport, op, "", err)
	}

	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return apierr.E(apierr.Forbidden, op, "missing access", err)
		case discordgo.ErrCodeUnknownChannel:
			return apierr.E(apierr.NotFound, op, "channel not found", err)
		case discordgo.ErrCodeUnknownGuild:
			return apierr.E(apierr.NotFound, op, "server not found", err)
		}
	}

	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusUnauthorized:
			return apierr.E(apierr.Unauthenticated, op, "invalid bot token", err)
		case http.StatusForbidden:
			return apierr.E(apierr.Forbidden, op, "missing access", err)
		case http.StatusNotFound:
			return apierr.E(apierr.NotFound, op, "not found", err)
		case http.StatusTooManyRequests:
			return apierr.E(apierr.Transport, op, "rate limited", err)
		}
	}

	return apierr.E(apierr.Transport, op, "", err)
}
