package ranking

import (
	"context"
	"log/slog"
	"sort"

	"github.com/brightsteps/progression/internal/domain"
)

// Source supplies the stats snapshot a ranking pass reads.
type Source interface {
	ListAll(ctx context.Context) ([]domain.UserStats, error)
}

// MergedSource combines the local store with the remote mirror, keeping the
// higher version of each user. Remote errors degrade to local-only data.
type MergedSource struct {
	local  Source
	remote Source
	logger *slog.Logger
}

// NewMergedSource returns a Source over local and, when non-nil, remote.
func NewMergedSource(local, remote Source, logger *slog.Logger) *MergedSource {
	return &MergedSource{local: local, remote: remote, logger: logger}
}

func (m *MergedSource) ListAll(ctx context.Context) ([]domain.UserStats, error) {
	local, err := m.local.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if m.remote == nil {
		return local, nil
	}

	remote, err := m.remote.ListAll(ctx)
	if err != nil {
		m.logger.Warn("leaderboard using local stats only", "error", err)
		return local, nil
	}

	byUser := make(map[string]domain.UserStats, len(local)+len(remote))
	for _, s := range remote {
		byUser[s.UserID] = s
	}
	for _, s := range local {
		if cur, ok := byUser[s.UserID]; !ok || s.Version >= cur.Version {
			byUser[s.UserID] = s
		}
	}

	out := make([]domain.UserStats, 0, len(byUser))
	for _, s := range byUser {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
