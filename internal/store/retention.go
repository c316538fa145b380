package store

import (
	"context"
	"fmt"
	"time"
)

// RetentionPolicy decides which snapshots to keep. Input is newest first.
type RetentionPolicy interface {
	Apply(infos []Info) (keep []Info)
}

// CountPolicy keeps the N most recent snapshots.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount snapshots.
func (p *CountPolicy) Apply(infos []Info) []Info {
	if len(infos) <= p.MaxCount {
		return infos
	}
	return infos[:max(p.MaxCount, 0)]
}

// AgePolicy keeps snapshots saved within MaxAge of Now.
type AgePolicy struct {
	MaxAge time.Duration
	Now    func() time.Time
}

// Apply keeps snapshots whose SavedAt is after the cutoff.
func (p *AgePolicy) Apply(infos []Info) []Info {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)

	var keep []Info
	for _, info := range infos {
		if info.SavedAt.After(cutoff) {
			keep = append(keep, info)
		}
	}
	return keep
}

// CompositePolicy keeps a snapshot if any sub-policy keeps it.
type CompositePolicy struct {
	Policies []RetentionPolicy
}

// Apply returns the union of what the sub-policies keep, in input order.
func (p *CompositePolicy) Apply(infos []Info) []Info {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, info := range policy.Apply(infos) {
			kept[info.Name] = true
		}
	}

	var out []Info
	for _, info := range infos {
		if kept[info.Name] {
			out = append(out, info)
		}
	}
	return out
}

// Prune deletes every snapshot the policy does not keep and returns the
// names it removed.
func Prune(ctx context.Context, s SnapshotStore, policy RetentionPolicy) ([]string, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	kept := make(map[string]bool)
	for _, info := range policy.Apply(infos) {
		kept[info.Name] = true
	}

	var removed []string
	for _, info := range infos {
		if kept[info.Name] {
			continue
		}
		if err := s.Delete(ctx, info.Name); err != nil {
			return removed, fmt.Errorf("pruning %s: %w", info.Name, err)
		}
		removed = append(removed, info.Name)
	}
	return removed, nil
}
