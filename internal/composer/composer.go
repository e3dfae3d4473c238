// Package composer owns the live task drafts: it opens them with the right
// defaults, runs descriptions through the suggestion source and resolver,
// applies user choices and submits the result.
package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/chip"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/resolve"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/sections"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/submit"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/suggest"
)

// Errors returned by the composer.
var (
	ErrDraftNotFound  = errors.New("draft not found")
	ErrChipNotFound   = errors.New("chip not found")
	ErrEntityNotFound = errors.New("entity not found")
)

// Session is one open draft.
type Session struct {
	ID     string
	OrgID  string
	UserID string
	store  *draft.Store
}

// State returns the session's current draft.
func (s *Session) State() draft.State {
	return s.store.State()
}

// Options configures a Service.
type Options struct {
	DB         *db.DB
	Source     suggest.Source
	Uploader   submit.Uploader
	StagingDir string
	Logger     *log.Logger
	Now        func() time.Time
}

// Service manages draft sessions.
type Service struct {
	db         *db.DB
	source     suggest.Source
	resolver   *resolve.Resolver
	submitter  *submit.Submitter
	stagingDir string
	logger     *log.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	onChange []func(sessionID string, s draft.State)
}

// New creates a composer service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	source := opts.Source
	if source == nil {
		source = suggest.Heuristic{}
	}
	stagingDir := opts.StagingDir
	if stagingDir == "" {
		stagingDir = filepath.Join(os.TempDir(), "taskpro-staging")
	}
	return &Service{
		db:         opts.DB,
		source:     source,
		resolver:   resolve.New(opts.DB, logger.WithPrefix("resolve")),
		submitter:  submit.New(opts.DB, opts.Uploader, logger.WithPrefix("submit")),
		stagingDir: stagingDir,
		logger:     logger,
		now:        now,
		sessions:   make(map[string]*Session),
	}
}

// OnChange registers a callback for every draft state change.
func (svc *Service) OnChange(fn func(sessionID string, s draft.State)) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.onChange = append(svc.onChange, fn)
}

func (svc *Service) register(sess *Session) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sessions[sess.ID] = sess
	sess.store.Subscribe(func(s draft.State) {
		svc.mu.Lock()
		fns := append([]func(string, draft.State){}, svc.onChange...)
		svc.mu.Unlock()
		for _, fn := range fns {
			fn(sess.ID, s)
		}
	})
}

// OpenRequest opens a draft. PropertyID and DueDate are optional
// pre-selections.
type OpenRequest struct {
	OrgID      string
	UserID     string
	PropertyID string
	DueDate    *time.Time
}

// Open starts a new draft. An explicit property wins, then the only property
// of the organisation, then the property the user last created a task for.
func (svc *Service) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if req.OrgID == "" {
		return nil, submit.ErrNoOrganisation
	}
	props, err := svc.db.ListProperties(ctx, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	entities := make([]entity.Entity, 0, len(props))
	for _, p := range props {
		entities = append(entities, p.Entity())
	}

	defaults := draft.Defaults{
		PropertyID: sections.AutoSelectProperty(req.PropertyID, entities),
		DueDate:    req.DueDate,
	}
	if defaults.PropertyID == "" {
		last, err := svc.db.GetLastUsedProperty(ctx, req.OrgID, req.UserID)
		if err != nil {
			svc.logger.Warn("Failed to load last used property", "org", req.OrgID, "error", err)
		}
		if findEntity(entities, last) != nil {
			defaults.LastUsedPropertyID = last
		}
	}

	sess := &Session{
		ID:     uuid.New().String(),
		OrgID:  req.OrgID,
		UserID: req.UserID,
		store:  draft.NewStore(draft.Reduce(draft.New(), draft.Open{Defaults: defaults})),
	}
	svc.register(sess)
	svc.logger.Debug("Opened draft", "draft", sess.ID, "org", req.OrgID, "property", sess.State().PropertyID)
	return sess, nil
}

// Get returns an open session.
func (svc *Service) Get(id string) (*Session, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	sess, ok := svc.sessions[id]
	if !ok {
		return nil, ErrDraftNotFound
	}
	return sess, nil
}

// Dispatch applies a user action to a draft.
func (svc *Service) Dispatch(id string, a draft.Action) (draft.State, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return draft.State{}, err
	}
	st, _ := sess.store.Dispatch(a)
	return st, nil
}

// SelectProperty switches a draft to another property ("" clears it) and
// resolves the space and asset chips again under it.
func (svc *Service) SelectProperty(ctx context.Context, id, propertyID string) (draft.State, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return draft.State{}, err
	}
	if propertyID != "" {
		p, err := svc.db.GetProperty(ctx, propertyID)
		if err != nil {
			return draft.State{}, fmt.Errorf("get property: %w", err)
		}
		if p == nil || p.OrgID != sess.OrgID {
			return draft.State{}, ErrEntityNotFound
		}
	}
	sess.store.Dispatch(draft.SelectProperty{PropertyID: propertyID})
	if err := svc.resolvePending(ctx, sess); err != nil {
		return draft.State{}, err
	}
	return sess.State(), nil
}

// Describe sets the description and folds the suggestions drawn from it into
// the draft: entity chips are resolved against the organisation's rows.
func (svc *Service) Describe(ctx context.Context, id, description string) (draft.State, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return draft.State{}, err
	}
	st, _ := sess.store.Dispatch(draft.SetDescription{Description: description})
	if strings.TrimSpace(description) == "" {
		return st, nil
	}

	sg, err := svc.source.Suggest(ctx, description)
	if err != nil {
		svc.logger.Warn("Suggestion failed", "draft", id, "error", err)
		return st, nil
	}
	// The draft may have been closed while the suggestion was in flight.
	if _, err := svc.Get(id); err != nil {
		return draft.State{}, err
	}
	sess.store.Dispatch(draft.NewApplySuggestion(*sg, svc.now()))

	if err := svc.resolvePending(ctx, sess); err != nil {
		return draft.State{}, err
	}
	return sess.State(), nil
}

// resolvePending runs every unresolved entity chip through the resolver.
func (svc *Service) resolvePending(ctx context.Context, sess *Session) error {
	entities, err := svc.db.ListEntities(ctx, sess.OrgID)
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}

	st := sess.State()
	rc := resolve.Context{OrgID: sess.OrgID, PropertyID: st.PropertyID, SpaceID: firstSpaceID(st)}
	for _, c := range st.Chips {
		if c.Type.IsValue() || c.IsResolved() {
			continue
		}
		res, err := svc.resolver.Resolve(ctx, c, entities, rc)
		if err != nil {
			return err
		}
		svc.resolver.Audit(ctx, svc.db, sess.OrgID, sess.UserID, c, res)
		sess.store.Dispatch(draft.SetChipResolution{
			ChipID:     c.ID,
			Ref:        res.Ref(),
			Source:     res.Source,
			Confidence: res.Confidence,
			Candidates: res.Candidates,
			Message:    res.Message,
		})
	}
	sess.store.Dispatch(draft.ApplyResolvedChips{})
	return nil
}

// ResolveChip resolves a chip to an entity the user picked and remembers the
// choice for next time. Spaces and assets must belong to the draft's
// property.
func (svc *Service) ResolveChip(ctx context.Context, id, chipID, entityID string) (draft.State, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return draft.State{}, err
	}
	st := sess.State()
	c, ok := st.Chip(chipID)
	if !ok {
		return draft.State{}, ErrChipNotFound
	}
	entities, err := svc.db.ListEntities(ctx, sess.OrgID)
	if err != nil {
		return draft.State{}, fmt.Errorf("list entities: %w", err)
	}
	e, ok := resolve.Pick(c.Type.EntityKind(), entityID, entities, resolve.Context{OrgID: sess.OrgID, PropertyID: st.PropertyID})
	if !ok {
		return draft.State{}, ErrEntityNotFound
	}

	res := resolve.Resolution{Outcome: resolve.Resolved, Entity: &e, Source: chip.SourceExact, Confidence: resolve.ConfidenceExact}
	svc.applyResolution(sess, c, res)
	if err := svc.resolver.Confirm(ctx, svc.db, sess.OrgID, sess.UserID, c, res); err != nil {
		svc.logger.Warn("Failed to remember resolution", "chip", c.Label, "error", err)
	}
	return sess.State(), nil
}

// CreateFromChip resolves a chip by creating what it names. Spaces, assets
// and themes become ghosts that are created on submit; people, teams and
// properties are created straight away.
func (svc *Service) CreateFromChip(ctx context.Context, id, chipID string) (draft.State, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return draft.State{}, err
	}
	st := sess.State()
	c, ok := st.Chip(chipID)
	if !ok {
		return draft.State{}, ErrChipNotFound
	}

	var ref entity.Ref
	switch c.Type {
	case chip.TypeSpace, chip.TypeAsset:
		if st.PropertyID == "" {
			return draft.State{}, submit.ErrPropertyRequired
		}
		ref = entity.Ghost(c.Type.EntityKind(), c.Label)
	case chip.TypeCategory:
		ref = entity.GhostTheme(c.Label, c.ThemeType)
	case chip.TypePerson:
		m := &db.Member{OrgID: sess.OrgID, Name: c.Label}
		if err := svc.db.CreateMember(ctx, m); err != nil {
			return draft.State{}, &submit.GhostError{Kind: entity.KindMember, Name: c.Label, Err: err}
		}
		ref = m.Entity().Ref()
	case chip.TypeTeam:
		t := &db.Team{OrgID: sess.OrgID, Name: c.Label}
		if err := svc.db.CreateTeam(ctx, t); err != nil {
			return draft.State{}, &submit.GhostError{Kind: entity.KindTeam, Name: c.Label, Err: err}
		}
		ref = t.Entity().Ref()
	case chip.TypeProperty:
		p := &db.Property{OrgID: sess.OrgID, Name: c.Label}
		if err := svc.db.CreateProperty(ctx, p); err != nil {
			return draft.State{}, &submit.GhostError{Kind: entity.KindProperty, Name: c.Label, Err: err}
		}
		ref = p.Entity().Ref()
	default:
		return draft.State{}, fmt.Errorf("chip type %q cannot be created", c.Type)
	}

	sess.store.Dispatch(draft.SetChipResolution{ChipID: c.ID, Ref: &ref, Source: chip.SourceExact, Confidence: resolve.ConfidenceExact, Confirmed: true})
	st, _ = sess.store.Dispatch(draft.ApplyResolvedChips{})

	if !ref.IsGhost() {
		e := entity.Entity{ID: ref.ID, Kind: ref.Kind, Name: ref.Name}
		res := resolve.Resolution{Outcome: resolve.Resolved, Entity: &e, Source: chip.SourceExact, Confidence: resolve.ConfidenceExact}
		if err := svc.resolver.Confirm(ctx, svc.db, sess.OrgID, sess.UserID, c, res); err != nil {
			svc.logger.Warn("Failed to remember resolution", "chip", c.Label, "error", err)
		}
	}
	return st, nil
}

func (svc *Service) applyResolution(sess *Session, c chip.Chip, res resolve.Resolution) {
	sess.store.Dispatch(draft.SetChipResolution{
		ChipID:     c.ID,
		Ref:        res.Ref(),
		Source:     res.Source,
		Confidence: res.Confidence,
		Confirmed:  true,
	})
	sess.store.Dispatch(draft.ApplyResolvedChips{})
}

// AssignByName looks a typed name up among members and teams. An exact match
// is assigned straight away; otherwise the match lists what can be done with
// the name (see CreateAssignee).
func (svc *Service) AssignByName(ctx context.Context, id, name string) (sections.WhoMatch, draft.State, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return sections.WhoMatch{}, draft.State{}, err
	}
	entities, err := svc.db.ListEntities(ctx, sess.OrgID)
	if err != nil {
		return sections.WhoMatch{}, draft.State{}, fmt.Errorf("list entities: %w", err)
	}
	lists := sections.Split(entities)
	m := sections.MatchPerson(name, lists.Members, lists.Teams)
	if a := m.Assign(); a != nil {
		st, _ := sess.store.Dispatch(a)
		return m, st, nil
	}
	return m, sess.State(), nil
}

// CreateAssignee handles an unmatched name: it invites a member and assigns
// them, or creates a team and adds it to the draft.
func (svc *Service) CreateAssignee(ctx context.Context, id, name string, action sections.WhoAction) (draft.State, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return draft.State{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return draft.State{}, errors.New("name is required")
	}
	switch action {
	case sections.WhoInvitePerson:
		m := &db.Member{OrgID: sess.OrgID, Name: name}
		if err := svc.db.CreateMember(ctx, m); err != nil {
			return draft.State{}, &submit.GhostError{Kind: entity.KindMember, Name: name, Err: err}
		}
		st, _ := sess.store.Dispatch(draft.AssignUser{UserID: m.ID})
		return st, nil
	case sections.WhoCreateTeam:
		t := &db.Team{OrgID: sess.OrgID, Name: name}
		if err := svc.db.CreateTeam(ctx, t); err != nil {
			return draft.State{}, &submit.GhostError{Kind: entity.KindTeam, Name: name, Err: err}
		}
		st, _ := sess.store.Dispatch(draft.ToggleTeam{TeamID: t.ID})
		return st, nil
	}
	return draft.State{}, fmt.Errorf("unknown assignee action %q", action)
}

// RemoveChip drops a chip and whatever it contributed.
func (svc *Service) RemoveChip(id, chipID string) (draft.State, error) {
	return svc.Dispatch(id, draft.RemoveChip{ChipID: chipID})
}

// AttachImage stages an image on disk and adds it to the draft. It is
// uploaded after the task is created.
func (svc *Service) AttachImage(id, fileName, contentType string, r io.Reader, annotation string) (draft.Image, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return draft.Image{}, err
	}
	if err := os.MkdirAll(svc.stagingDir, 0755); err != nil {
		return draft.Image{}, fmt.Errorf("create staging directory: %w", err)
	}

	img := draft.Image{
		ID:          uuid.New().String(),
		FileName:    filepath.Base(fileName),
		ContentType: contentType,
		Annotation:  annotation,
		Status:      draft.ImagePending,
	}
	img.Path = filepath.Join(svc.stagingDir, img.ID+filepath.Ext(img.FileName))

	f, err := os.Create(img.Path)
	if err != nil {
		return draft.Image{}, fmt.Errorf("stage image: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(img.Path)
		return draft.Image{}, fmt.Errorf("stage image: %w", err)
	}
	if err := f.Close(); err != nil {
		return draft.Image{}, fmt.Errorf("stage image: %w", err)
	}

	sess.store.Dispatch(draft.AddImage{Image: img})
	return img, nil
}

// Submit creates the task and starts a fresh draft in the same session.
func (svc *Service) Submit(ctx context.Context, id string) (*submit.Result, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return nil, err
	}
	st := sess.State()
	res, err := svc.submitter.Submit(ctx, submit.Request{OrgID: sess.OrgID, UserID: sess.UserID, State: st})
	if err != nil {
		return nil, err
	}

	if st.PropertyID != "" {
		if err := svc.db.SetLastUsedProperty(ctx, sess.OrgID, sess.UserID, st.PropertyID); err != nil {
			svc.logger.Warn("Failed to store last used property", "error", err)
		}
	}
	sess.store.Dispatch(draft.Open{Defaults: draft.Defaults{PropertyID: st.PropertyID}})
	return res, nil
}

// Close discards a draft. With save set the draft is stored so it can be
// resumed later under the same id.
func (svc *Service) Close(ctx context.Context, id string, save bool) error {
	svc.mu.Lock()
	sess, ok := svc.sessions[id]
	delete(svc.sessions, id)
	svc.mu.Unlock()
	if !ok {
		return ErrDraftNotFound
	}
	if !save {
		return nil
	}

	data, err := json.Marshal(sess.State())
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return svc.db.SaveDraft(ctx, &db.DraftSnapshot{ID: id, OrgID: sess.OrgID, UserID: sess.UserID, State: string(data)})
}

// Resume reopens a saved draft.
func (svc *Service) Resume(ctx context.Context, id string) (*Session, error) {
	if sess, err := svc.Get(id); err == nil {
		return sess, nil
	}
	snap, err := svc.db.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrDraftNotFound
	}
	var st draft.State
	if err := json.Unmarshal([]byte(snap.State), &st); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}

	sess := &Session{ID: snap.ID, OrgID: snap.OrgID, UserID: snap.UserID, store: draft.NewStore(st)}
	svc.register(sess)
	if err := svc.db.DeleteDraft(ctx, id); err != nil {
		svc.logger.Warn("Failed to delete resumed draft", "draft", id, "error", err)
	}
	return sess, nil
}

// View builds the section views of a draft.
func (svc *Service) View(ctx context.Context, id string) (sections.View, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return sections.View{}, err
	}
	entities, err := svc.db.ListEntities(ctx, sess.OrgID)
	if err != nil {
		return sections.View{}, fmt.Errorf("list entities: %w", err)
	}
	return sections.Build(ctx, sess.State(), sections.Split(entities), svc.assetLoader(sess.OrgID), svc.now())
}

func (svc *Service) assetLoader(orgID string) sections.AssetLoader {
	return sections.AssetLoaderFunc(func(ctx context.Context, propertyID, spaceID string) ([]entity.Entity, error) {
		assets, err := svc.db.ListAssets(ctx, orgID, propertyID, spaceID)
		if err != nil {
			return nil, err
		}
		out := make([]entity.Entity, 0, len(assets))
		for _, a := range assets {
			out = append(out, a.Entity())
		}
		return out, nil
	})
}

func findEntity(entities []entity.Entity, id string) *entity.Entity {
	if id == "" {
		return nil
	}
	for i := range entities {
		if entities[i].ID == id {
			e := entities[i]
			return &e
		}
	}
	return nil
}

func firstSpaceID(s draft.State) string {
	for _, r := range s.Spaces {
		if !r.IsGhost() {
			return r.ID
		}
	}
	return ""
}
