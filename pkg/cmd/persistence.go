// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/persistence/file"
	"github.com/dukex/dealflow/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the back end named by the URL scheme. A URL without a
// known scheme is treated as a directory for the file back end.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return p, nil
	default:
		root := strings.TrimPrefix(databaseURL, "file://")
		if root == "" {
			return nil, fmt.Errorf("empty database url")
		}

		if err := os.MkdirAll(root, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		logger.InfoContext(ctx, "Using file persistence", "root", root)

		return file.NewPersistence(root), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
