// Package resolve maps chips onto the entities available in the current
// organisation and property context.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/chip"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

// Outcome is the kind of result a resolution attempt produced.
type Outcome string

const (
	Resolved           Outcome = "resolved"
	RequiresCreation   Outcome = "requires_creation"
	RequiresUserChoice Outcome = "requires_user_choice"
	NeedsProperty      Outcome = "needs_property"
)

// Confidence assigned to each resolution source.
const (
	ConfidenceMemory = 1.0
	ConfidenceExact  = 1.0
	ConfidenceFuzzy  = 0.8
)

// maxCandidates caps the list offered when the user has to choose.
const maxCandidates = 5

// Context scopes a resolution to an organisation and, for spaces and assets,
// a property and optionally a space.
type Context struct {
	OrgID      string
	PropertyID string
	SpaceID    string
}

// Resolution is the result of resolving one chip.
type Resolution struct {
	Outcome    Outcome         `json:"outcome"`
	Entity     *entity.Entity  `json:"entity,omitempty"`
	Source     chip.Source     `json:"source,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Candidates []entity.Entity `json:"candidates,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// Ref returns the resolved entity as a reference, or nil when unresolved.
func (r Resolution) Ref() *entity.Ref {
	if r.Outcome != Resolved || r.Entity == nil {
		return nil
	}
	ref := r.Entity.Ref()
	return &ref
}

// Memory remembers which entity a label resolved to.
type Memory interface {
	QueryResolution(ctx context.Context, orgID, label string, kind entity.Kind) (string, bool, error)
	StoreResolution(ctx context.Context, orgID, label string, kind entity.Kind, entityID string, confidence float64) error
}

// Auditor records resolutions for later review.
type Auditor interface {
	LogResolution(ctx context.Context, orgID, userID, chipLabel, chipType string, resolved bool, entityID string) error
}

// Resolver resolves chips against memory and entity lists.
type Resolver struct {
	memory Memory
	logger *log.Logger
}

// New creates a resolver. memory may be nil.
func New(memory Memory, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{memory: memory, logger: logger}
}

// Resolve decides what a chip refers to. Not finding anything is an outcome,
// not an error; the error return is reserved for a cancelled context.
func (r *Resolver) Resolve(ctx context.Context, c chip.Chip, available []entity.Entity, rc Context) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}

	kind := c.Type.EntityKind()
	if kind == "" {
		return Resolution{}, fmt.Errorf("chip type %q does not refer to an entity", c.Type)
	}

	if (c.Type == chip.TypeSpace || c.Type == chip.TypeAsset) && rc.PropertyID == "" {
		return Resolution{
			Outcome: NeedsProperty,
			Message: fmt.Sprintf("Pick a property before adding %s", c.Label),
		}, nil
	}

	scoped := Scope(kind, available, rc)
	label := strings.TrimSpace(c.Label)
	if label == "" {
		return Resolution{Outcome: RequiresCreation}, nil
	}

	if res, ok := r.fromMemory(ctx, rc.OrgID, label, kind, scoped); ok {
		return res, nil
	}

	var exact []entity.Entity
	for _, e := range scoped {
		if strings.EqualFold(strings.TrimSpace(e.Name), label) {
			exact = append(exact, e)
		}
	}
	switch len(exact) {
	case 0:
	case 1:
		return resolved(exact[0], chip.SourceExact, ConfidenceExact), nil
	default:
		return Resolution{Outcome: RequiresUserChoice, Candidates: exact}, nil
	}

	candidates := FuzzyCandidates(label, scoped)
	if len(candidates) == 0 {
		return Resolution{Outcome: RequiresCreation}, nil
	}
	// A near miss never replaces what the user typed.
	if entity.Normalize(candidates[0].Name) == entity.Normalize(label) {
		return resolved(candidates[0], chip.SourceFuzzy, ConfidenceFuzzy), nil
	}
	return Resolution{Outcome: RequiresUserChoice, Candidates: candidates}, nil
}

func (r *Resolver) fromMemory(ctx context.Context, orgID, label string, kind entity.Kind, scoped []entity.Entity) (Resolution, bool) {
	if r.memory == nil || orgID == "" {
		return Resolution{}, false
	}
	id, ok, err := r.memory.QueryResolution(ctx, orgID, label, kind)
	if err != nil {
		r.logger.Warn("resolution memory lookup failed", "label", label, "kind", kind, "error", err)
		return Resolution{}, false
	}
	if !ok {
		return Resolution{}, false
	}
	// The remembered row may have been deleted or belong to another property.
	for _, e := range scoped {
		if e.ID == id {
			return resolved(e, chip.SourceMemory, ConfidenceMemory), true
		}
	}
	return Resolution{}, false
}

func resolved(e entity.Entity, source chip.Source, confidence float64) Resolution {
	return Resolution{Outcome: Resolved, Entity: &e, Source: source, Confidence: confidence}
}

// Scope filters the available entities down to the ones a chip of the given
// kind may resolve to.
func Scope(kind entity.Kind, available []entity.Entity, rc Context) []entity.Entity {
	var out []entity.Entity
	for _, e := range available {
		if e.Kind != kind {
			continue
		}
		switch kind {
		case entity.KindSpace:
			if e.PropertyID != rc.PropertyID {
				continue
			}
		case entity.KindAsset:
			if e.PropertyID != rc.PropertyID {
				continue
			}
			if rc.SpaceID != "" && e.SpaceID != rc.SpaceID {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// FuzzyCandidates ranks entities whose name loosely matches label in either
// direction, best first.
func FuzzyCandidates(label string, scoped []entity.Entity) []entity.Entity {
	if len(scoped) == 0 {
		return nil
	}
	label = entity.Normalize(label)
	names := make([]string, len(scoped))
	for i, e := range scoped {
		names[i] = entity.Normalize(e.Name)
	}

	best := make(map[int]int)
	for _, rank := range fuzzy.RankFindNormalizedFold(label, names) {
		best[rank.OriginalIndex] = rank.Distance
	}
	for i, name := range names {
		if _, ok := best[i]; ok {
			continue
		}
		if name != "" && fuzzy.MatchNormalizedFold(name, label) {
			best[i] = fuzzy.LevenshteinDistance(name, label)
		}
	}
	if len(best) == 0 {
		return nil
	}

	idx := make([]int, 0, len(best))
	for i := range best {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool {
		if best[idx[a]] != best[idx[b]] {
			return best[idx[a]] < best[idx[b]]
		}
		return idx[a] < idx[b]
	})
	if len(idx) > maxCandidates {
		idx = idx[:maxCandidates]
	}

	out := make([]entity.Entity, len(idx))
	for i, j := range idx {
		out[i] = scoped[j]
	}
	return out
}

// Pick returns the entity with the given id when a chip of kind may resolve
// to it in rc. Spaces and assets must belong to the active property (and
// space, for assets).
func Pick(kind entity.Kind, id string, available []entity.Entity, rc Context) (entity.Entity, bool) {
	if id == "" {
		return entity.Entity{}, false
	}
	if (kind == entity.KindSpace || kind == entity.KindAsset) && rc.PropertyID == "" {
		return entity.Entity{}, false
	}
	for _, e := range Scope(kind, available, rc) {
		if e.ID == id {
			return e, true
		}
	}
	return entity.Entity{}, false
}

// Confirm stores a user-confirmed resolution in memory and records it in the
// audit log. Audit failures are logged, memory failures returned.
func (r *Resolver) Confirm(ctx context.Context, auditor Auditor, orgID, userID string, c chip.Chip, res Resolution) error {
	if res.Outcome != Resolved || res.Entity == nil {
		return fmt.Errorf("confirm %s chip %q: not resolved", c.Type, c.Label)
	}
	if r.memory != nil {
		if err := r.memory.StoreResolution(ctx, orgID, c.Label, c.Type.EntityKind(), res.Entity.ID, res.Confidence); err != nil {
			return fmt.Errorf("store resolution: %w", err)
		}
	}
	r.Audit(ctx, auditor, orgID, userID, c, res)
	return nil
}

// Audit records the outcome of a resolution attempt. Failures are only logged.
func (r *Resolver) Audit(ctx context.Context, auditor Auditor, orgID, userID string, c chip.Chip, res Resolution) {
	if auditor == nil {
		return
	}
	var entityID string
	if res.Entity != nil {
		entityID = res.Entity.ID
	}
	if err := auditor.LogResolution(ctx, orgID, userID, c.Label, string(c.Type), res.Outcome == Resolved, entityID); err != nil {
		r.logger.Warn("resolution audit failed", "label", c.Label, "error", err)
	}
}
