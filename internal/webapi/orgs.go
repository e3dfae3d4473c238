package webapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/sections"
)

// OrgResponse represents an organisation in JSON responses.
type OrgResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateOrgRequest represents a request to create an organisation.
type CreateOrgRequest struct {
	Name string `json:"name"`
}

// CreateEntityRequest creates a property, space, asset, member, team or
// theme. Only the fields that apply to the kind are read.
type CreateEntityRequest struct {
	Name       string   `json:"name"`
	Address    string   `json:"address,omitempty"`
	Email      string   `json:"email,omitempty"`
	Type       string   `json:"type,omitempty"`
	PropertyID string   `json:"property_id,omitempty"`
	SpaceID    string   `json:"space_id,omitempty"`
	MemberIDs  []string `json:"member_ids,omitempty"`
}

// handleListOrgs handles GET /orgs
func (s *Server) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.db.ListOrganisations(r.Context())
	if err != nil {
		s.writeError(w, err, "Failed to list organisations")
		return
	}
	resp := make([]OrgResponse, 0, len(orgs))
	for _, o := range orgs {
		resp = append(resp, OrgResponse{ID: o.ID, Name: o.Name, CreatedAt: o.CreatedAt.Time})
	}
	jsonResponse(w, resp, http.StatusOK)
}

// handleCreateOrg handles POST /orgs
func (s *Server) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		jsonError(w, "Name is required", http.StatusBadRequest)
		return
	}
	o := &db.Organisation{Name: strings.TrimSpace(req.Name)}
	if err := s.db.CreateOrganisation(r.Context(), o); err != nil {
		s.writeError(w, err, "Failed to create organisation")
		return
	}
	jsonResponse(w, OrgResponse{ID: o.ID, Name: o.Name, CreatedAt: s.now()}, http.StatusCreated)
}

// orgFromPath loads the organisation named in the path, writing a 404 when
// it does not exist.
func (s *Server) orgFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("org")
	o, err := s.db.GetOrganisation(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "Failed to load organisation")
		return "", false
	}
	if o == nil {
		jsonError(w, "Organisation not found", http.StatusNotFound)
		return "", false
	}
	return o.ID, true
}

// parseCreate decodes a create request and checks the name.
func parseCreate(w http.ResponseWriter, r *http.Request) (CreateEntityRequest, bool) {
	var req CreateEntityRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return req, false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, "Name is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// entitiesResponse turns rows into their entity form; an empty list encodes
// as [] rather than null.
func entitiesResponse[T interface{ Entity() entity.Entity }](rows []T) []entity.Entity {
	out := make([]entity.Entity, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Entity())
	}
	return out
}

// handleListProperties handles GET /orgs/{org}/properties
func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	props, err := s.db.ListProperties(r.Context(), org)
	if err != nil {
		s.writeError(w, err, "Failed to list properties")
		return
	}
	jsonResponse(w, entitiesResponse(props), http.StatusOK)
}

// handleCreateProperty handles POST /orgs/{org}/properties
func (s *Server) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	req, ok := parseCreate(w, r)
	if !ok {
		return
	}
	p := &db.Property{OrgID: org, Name: req.Name, Address: req.Address}
	if err := s.db.CreateProperty(r.Context(), p); err != nil {
		s.writeError(w, err, "Failed to create property")
		return
	}
	jsonResponse(w, p.Entity(), http.StatusCreated)
}

// handleListSpaces handles GET /orgs/{org}/properties/{id}/spaces
func (s *Server) handleListSpaces(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	spaces, err := s.db.ListSpaces(r.Context(), org, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, "Failed to list spaces")
		return
	}
	jsonResponse(w, entitiesResponse(spaces), http.StatusOK)
}

// handleCreateSpace handles POST /orgs/{org}/properties/{id}/spaces
func (s *Server) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	req, ok := parseCreate(w, r)
	if !ok {
		return
	}
	if !s.propertyInOrg(w, r, org, r.PathValue("id")) {
		return
	}
	sp := &db.Space{OrgID: org, PropertyID: r.PathValue("id"), Name: req.Name}
	if err := s.db.CreateSpace(r.Context(), sp); err != nil {
		s.writeError(w, err, "Failed to create space")
		return
	}
	jsonResponse(w, sp.Entity(), http.StatusCreated)
}

func (s *Server) propertyInOrg(w http.ResponseWriter, r *http.Request, org, propertyID string) bool {
	p, err := s.db.GetProperty(r.Context(), propertyID)
	if err != nil {
		s.writeError(w, err, "Failed to load property")
		return false
	}
	if p == nil || p.OrgID != org {
		jsonError(w, "Property not found", http.StatusNotFound)
		return false
	}
	return true
}

// handleListAssets handles GET /orgs/{org}/assets?property=&space=
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	assets, err := s.db.ListAssets(r.Context(), org, q.Get("property"), q.Get("space"))
	if err != nil {
		s.writeError(w, err, "Failed to list assets")
		return
	}
	jsonResponse(w, entitiesResponse(assets), http.StatusOK)
}

// handleCreateAsset handles POST /orgs/{org}/assets
func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	req, ok := parseCreate(w, r)
	if !ok {
		return
	}
	if req.PropertyID == "" {
		jsonError(w, "property_id is required", http.StatusBadRequest)
		return
	}
	if !s.propertyInOrg(w, r, org, req.PropertyID) {
		return
	}
	a := &db.Asset{OrgID: org, PropertyID: req.PropertyID, SpaceID: req.SpaceID, Name: req.Name}
	if err := s.db.CreateAsset(r.Context(), a); err != nil {
		s.writeError(w, err, "Failed to create asset")
		return
	}
	jsonResponse(w, a.Entity(), http.StatusCreated)
}

// handleListMembers handles GET /orgs/{org}/members
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	members, err := s.db.ListMembers(r.Context(), org)
	if err != nil {
		s.writeError(w, err, "Failed to list members")
		return
	}
	jsonResponse(w, entitiesResponse(members), http.StatusOK)
}

// handleCreateMember handles POST /orgs/{org}/members
func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	req, ok := parseCreate(w, r)
	if !ok {
		return
	}
	m := &db.Member{OrgID: org, Name: req.Name, Email: req.Email}
	if err := s.db.CreateMember(r.Context(), m); err != nil {
		s.writeError(w, err, "Failed to create member")
		return
	}
	jsonResponse(w, m.Entity(), http.StatusCreated)
}

// handleListTeams handles GET /orgs/{org}/teams
func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	teams, err := s.db.ListTeams(r.Context(), org)
	if err != nil {
		s.writeError(w, err, "Failed to list teams")
		return
	}
	jsonResponse(w, entitiesResponse(teams), http.StatusOK)
}

// handleCreateTeam handles POST /orgs/{org}/teams
func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	req, ok := parseCreate(w, r)
	if !ok {
		return
	}
	t := &db.Team{OrgID: org, Name: req.Name}
	if err := s.db.CreateTeam(r.Context(), t); err != nil {
		s.writeError(w, err, "Failed to create team")
		return
	}
	for _, id := range req.MemberIDs {
		if err := s.db.AddTeamMember(r.Context(), t.ID, id); err != nil {
			s.logger.Warn("add team member failed", "team", t.ID, "member", id, "error", err)
		}
	}
	jsonResponse(w, t.Entity(), http.StatusCreated)
}

// handleListThemes handles GET /orgs/{org}/themes
func (s *Server) handleListThemes(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	themes, err := s.db.ListThemes(r.Context(), org)
	if err != nil {
		s.writeError(w, err, "Failed to list themes")
		return
	}
	jsonResponse(w, entitiesResponse(themes), http.StatusOK)
}

// handleCreateTheme handles POST /orgs/{org}/themes
func (s *Server) handleCreateTheme(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	req, ok := parseCreate(w, r)
	if !ok {
		return
	}
	if req.Type == "" {
		req.Type = entity.DefaultThemeType
	}
	t := &db.Theme{OrgID: org, Name: req.Name, Type: req.Type}
	if err := s.db.CreateTheme(r.Context(), t); err != nil {
		s.writeError(w, err, "Failed to create theme")
		return
	}
	jsonResponse(w, t.Entity(), http.StatusCreated)
}

// handleSearchEntities handles GET /orgs/{org}/entities?kind=&q=
// It backs the search boxes of the section pickers.
func (s *Server) handleSearchEntities(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}
	all, err := s.db.ListEntities(r.Context(), org)
	if err != nil {
		s.writeError(w, err, "Failed to list entities")
		return
	}
	kind := entity.Kind(r.URL.Query().Get("kind"))
	var scoped []entity.Entity
	for _, e := range all {
		if kind == "" || e.Kind == kind {
			scoped = append(scoped, e)
		}
	}
	found := sections.Filter(scoped, r.URL.Query().Get("q"))
	if found == nil {
		found = []entity.Entity{}
	}
	jsonResponse(w, found, http.StatusOK)
}
