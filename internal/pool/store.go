// Package pool manages pre-generated credentials that accounts claim on
// backends without a management API.
package pool

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/db"
)

type Store struct {
	repo   *db.Repository
	logger *zap.Logger
}

func NewStore(repo *db.Repository, logger *zap.Logger) *Store {
	return &Store{repo: repo, logger: logger}
}

// ParseLines turns raw import text into pool credentials of kind. Lines that
// do not fit the kind's format are skipped.
func ParseLines(kind core.BackendKind, raw string, notes string) []*core.PoolCredential {
	var creds []*core.PoolCredential

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		c, ok := parseLine(kind, line)
		if !ok {
			continue
		}
		c.Kind = kind
		c.Notes = notes
		c.LineNo = lineNo
		creds = append(creds, c)
	}
	return creds
}

func parseLine(kind core.BackendKind, line string) (*core.PoolCredential, bool) {
	switch kind {
	case core.KindAuthTunnel:
		user, pass, found := strings.Cut(line, ":")
		user, pass = strings.TrimSpace(user), strings.TrimSpace(pass)
		if !found || user == "" || pass == "" {
			return nil, false
		}
		return &core.PoolCredential{Username: user, Password: pass}, true

	case core.KindRelay:
		if n := len(line); n == 32 || n == 36 {
			return &core.PoolCredential{UUID: line}, true
		}
		return &core.PoolCredential{ConfigBlob: line}, true
	}
	return nil, false
}

// BulkImport parses raw and stores the valid credentials, returning how many
// were imported.
func (s *Store) BulkImport(ctx context.Context, kind core.BackendKind, raw string, notes string) (int, error) {
	if !kind.Pooled() {
		return 0, fmt.Errorf("%s backends do not use pooled credentials: %w", kind, core.ErrUnsupported)
	}

	creds := ParseLines(kind, raw, notes)
	if err := s.repo.InsertPoolCredentials(ctx, creds); err != nil {
		return 0, err
	}

	s.logger.Info("Imported pool credentials",
		zap.String("kind", string(kind)),
		zap.Int("count", len(creds)),
	)
	return len(creds), nil
}

// Claim assigns the oldest free credential of kind to accountID. It returns
// an error wrapping core.ErrNotFound when the pool is exhausted.
func (s *Store) Claim(ctx context.Context, kind core.BackendKind, accountID string) (*core.PoolCredential, error) {
	c, err := s.repo.ClaimPoolCredential(ctx, kind, accountID)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Claimed pool credential",
		zap.String("pool_credential_id", c.ID),
		zap.String("kind", string(kind)),
		zap.String("account_id", accountID),
	)
	return c, nil
}

func (s *Store) Release(ctx context.Context, id string) error {
	return s.repo.ReleasePoolCredential(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.repo.DeletePoolCredential(ctx, id)
}

func (s *Store) List(ctx context.Context, f db.PoolFilter) ([]*core.PoolCredential, error) {
	return s.repo.ListPoolCredentials(ctx, f)
}

func (s *Store) Stats(ctx context.Context) ([]core.PoolStats, error) {
	return s.repo.PoolStats(ctx)
}
