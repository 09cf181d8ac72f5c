package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// ResolveAgentID resolves a short agent ID prefix to a full UUID.
// Returns the full UUID if exactly one agent with a stored plan matches.
//
// A full UUID is returned as-is once its plan is confirmed to exist.
// Prefixes shorter than MinShortIDLength are rejected.
func ResolveAgentID(ctx context.Context, client *blackboard.Client, shortID string) (string, error) {
	shortID = strings.ToLower(shortID)

	if _, err := uuid.Parse(shortID); err == nil && len(shortID) == 36 {
		if _, err := client.GetPlans(ctx, shortID); err != nil {
			if blackboard.IsNotFound(err) {
				return "", &NotFoundError{ShortID: shortID}
			}
			return "", fmt.Errorf("failed to verify agent: %w", err)
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := client.ScanAgents(ctx, shortID)
	if err != nil {
		return "", fmt.Errorf("failed to search for agent: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no agents matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no agents found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple agents matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d agents", e.ShortID, len(e.Matches))
}

// Suggestions lists the matching UUIDs (up to 10, then "...and N more") for
// display under a formatted error.
func (e *AmbiguousError) Suggestions() []string {
	shown := e.Matches
	if len(shown) > 10 {
		shown = shown[:10]
	}

	var b strings.Builder
	b.WriteString("Matching agents:")
	for _, m := range shown {
		fmt.Fprintf(&b, "\n  %s", m)
	}
	if len(e.Matches) > 10 {
		fmt.Fprintf(&b, "\n  ...and %d more", len(e.Matches)-10)
	}

	return []string{b.String(), "Use a longer prefix to uniquely identify the agent"}
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
