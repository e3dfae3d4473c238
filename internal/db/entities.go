package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
	"github.com/google/uuid"
)

// Organisation owns every other row.
type Organisation struct {
	ID        string
	Name      string
	CreatedAt LocalTime
}

// Member is a person in an organisation that tasks can be assigned to.
type Member struct {
	ID        string
	OrgID     string
	Name      string
	Email     string
	CreatedAt LocalTime
}

// Team groups members.
type Team struct {
	ID        string
	OrgID     string
	Name      string
	CreatedAt LocalTime
}

// Property is a managed building or site.
type Property struct {
	ID        string
	OrgID     string
	Name      string
	Address   string
	CreatedAt LocalTime
}

// Space is a room or area within a property.
type Space struct {
	ID         string
	OrgID      string
	PropertyID string
	Name       string
	CreatedAt  LocalTime
}

// Asset is equipment at a property, optionally inside a space.
type Asset struct {
	ID         string
	OrgID      string
	PropertyID string
	SpaceID    string
	Name       string
	CreatedAt  LocalTime
}

// Theme is a category or tag applied to tasks.
type Theme struct {
	ID        string
	OrgID     string
	Name      string
	Type      string
	CreatedAt LocalTime
}

// CreateOrganisation creates a new organisation.
func (db *DB) CreateOrganisation(ctx context.Context, o *Organisation) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO organisations (id, name) VALUES (?, ?)`, o.ID, o.Name); err != nil {
		return fmt.Errorf("insert organisation: %w", err)
	}
	return nil
}

// GetOrganisation retrieves an organisation by ID.
func (db *DB) GetOrganisation(ctx context.Context, id string) (*Organisation, error) {
	o := &Organisation{}
	err := db.QueryRowContext(ctx, `SELECT id, name, created_at FROM organisations WHERE id = ?`, id).
		Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query organisation: %w", err)
	}
	return o, nil
}

// ListOrganisations returns all organisations ordered by name.
func (db *DB) ListOrganisations(ctx context.Context) ([]*Organisation, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, created_at FROM organisations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query organisations: %w", err)
	}
	defer rows.Close()

	var orgs []*Organisation
	for rows.Next() {
		o := &Organisation{}
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan organisation: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// CreateMember adds a person to an organisation.
func (db *DB) CreateMember(ctx context.Context, m *Member) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO members (id, org_id, name, email) VALUES (?, ?, ?, ?)`,
		m.ID, m.OrgID, strings.TrimSpace(m.Name), m.Email)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// ListMembers returns the members of an organisation.
func (db *DB) ListMembers(ctx context.Context, orgID string) ([]*Member, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, org_id, name, COALESCE(email, ''), created_at
		FROM members WHERE org_id = ? ORDER BY name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ID, &m.OrgID, &m.Name, &m.Email, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateTeam creates a team.
func (db *DB) CreateTeam(ctx context.Context, t *Team) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO teams (id, org_id, name) VALUES (?, ?, ?)`,
		t.ID, t.OrgID, strings.TrimSpace(t.Name))
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

// AddTeamMember puts a member on a team. Adding twice is a no-op.
func (db *DB) AddTeamMember(ctx context.Context, teamID, memberID string) error {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO team_members (team_id, member_id) VALUES (?, ?)`, teamID, memberID)
	if err != nil {
		return fmt.Errorf("insert team member: %w", err)
	}
	return nil
}

// ListTeams returns the teams of an organisation.
func (db *DB) ListTeams(ctx context.Context, orgID string) ([]*Team, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, org_id, name, created_at FROM teams WHERE org_id = ? ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	var teams []*Team
	for rows.Next() {
		t := &Team{}
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// CreateProperty creates a property.
func (db *DB) CreateProperty(ctx context.Context, p *Property) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO properties (id, org_id, name, address) VALUES (?, ?, ?, ?)`,
		p.ID, p.OrgID, strings.TrimSpace(p.Name), p.Address)
	if err != nil {
		return fmt.Errorf("insert property: %w", err)
	}
	return nil
}

// GetProperty retrieves a property by ID.
func (db *DB) GetProperty(ctx context.Context, id string) (*Property, error) {
	p := &Property{}
	err := db.QueryRowContext(ctx, `
		SELECT id, org_id, name, COALESCE(address, ''), created_at FROM properties WHERE id = ?
	`, id).Scan(&p.ID, &p.OrgID, &p.Name, &p.Address, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query property: %w", err)
	}
	return p, nil
}

// ListProperties returns the properties of an organisation.
func (db *DB) ListProperties(ctx context.Context, orgID string) ([]*Property, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, org_id, name, COALESCE(address, ''), created_at
		FROM properties WHERE org_id = ? ORDER BY name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer rows.Close()

	var props []*Property
	for rows.Next() {
		p := &Property{}
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.Address, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

// CreateSpace creates a space under a property.
func (db *DB) CreateSpace(ctx context.Context, s *Space) error {
	if s.PropertyID == "" {
		return fmt.Errorf("insert space: property is required")
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO spaces (id, org_id, property_id, name) VALUES (?, ?, ?, ?)`,
		s.ID, s.OrgID, s.PropertyID, strings.TrimSpace(s.Name))
	if err != nil {
		return fmt.Errorf("insert space: %w", err)
	}
	return nil
}

// ListSpaces returns the spaces of a property. An empty propertyID lists
// every space in the organisation.
func (db *DB) ListSpaces(ctx context.Context, orgID, propertyID string) ([]*Space, error) {
	query := `SELECT id, org_id, property_id, name, created_at FROM spaces WHERE org_id = ?`
	args := []interface{}{orgID}
	if propertyID != "" {
		query += ` AND property_id = ?`
		args = append(args, propertyID)
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query spaces: %w", err)
	}
	defer rows.Close()

	var spaces []*Space
	for rows.Next() {
		s := &Space{}
		if err := rows.Scan(&s.ID, &s.OrgID, &s.PropertyID, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		spaces = append(spaces, s)
	}
	return spaces, rows.Err()
}

// CreateAsset creates an asset under a property and optional space.
func (db *DB) CreateAsset(ctx context.Context, a *Asset) error {
	if a.PropertyID == "" {
		return fmt.Errorf("insert asset: property is required")
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO assets (id, org_id, property_id, space_id, name) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.OrgID, a.PropertyID, nullString(a.SpaceID), strings.TrimSpace(a.Name))
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// ListAssets returns assets scoped by property and, when given, by space.
func (db *DB) ListAssets(ctx context.Context, orgID, propertyID, spaceID string) ([]*Asset, error) {
	query := `SELECT id, org_id, property_id, COALESCE(space_id, ''), name, created_at FROM assets WHERE org_id = ?`
	args := []interface{}{orgID}
	if propertyID != "" {
		query += ` AND property_id = ?`
		args = append(args, propertyID)
	}
	if spaceID != "" {
		query += ` AND space_id = ?`
		args = append(args, spaceID)
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a := &Asset{}
		if err := rows.Scan(&a.ID, &a.OrgID, &a.PropertyID, &a.SpaceID, &a.Name, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// CreateTheme creates a theme.
func (db *DB) CreateTheme(ctx context.Context, t *Theme) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Type == "" {
		t.Type = entity.DefaultThemeType
	}
	_, err := db.ExecContext(ctx, `INSERT INTO themes (id, org_id, name, type) VALUES (?, ?, ?, ?)`,
		t.ID, t.OrgID, strings.TrimSpace(t.Name), t.Type)
	if err != nil {
		return fmt.Errorf("insert theme: %w", err)
	}
	return nil
}

// ListThemes returns the themes of an organisation.
func (db *DB) ListThemes(ctx context.Context, orgID string) ([]*Theme, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, org_id, name, COALESCE(type, 'category'), created_at
		FROM themes WHERE org_id = ? ORDER BY name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query themes: %w", err)
	}
	defer rows.Close()

	var themes []*Theme
	for rows.Next() {
		t := &Theme{}
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name, &t.Type, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan theme: %w", err)
		}
		themes = append(themes, t)
	}
	return themes, rows.Err()
}

// ListEntities returns every entity of an organisation the resolver can
// match against. Scoping by property happens in the resolver so that a chip
// can still report it needs a property.
func (db *DB) ListEntities(ctx context.Context, orgID string) ([]entity.Entity, error) {
	var out []entity.Entity

	members, err := db.ListMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		out = append(out, entity.Entity{ID: m.ID, Kind: entity.KindMember, Name: m.Name})
	}

	teams, err := db.ListTeams(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, t := range teams {
		out = append(out, entity.Entity{ID: t.ID, Kind: entity.KindTeam, Name: t.Name})
	}

	props, err := db.ListProperties(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, p := range props {
		out = append(out, p.Entity())
	}

	spaces, err := db.ListSpaces(ctx, orgID, "")
	if err != nil {
		return nil, err
	}
	for _, s := range spaces {
		out = append(out, s.Entity())
	}

	assets, err := db.ListAssets(ctx, orgID, "", "")
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		out = append(out, a.Entity())
	}

	themes, err := db.ListThemes(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, t := range themes {
		out = append(out, t.Entity())
	}

	return out, nil
}

// Entity converts the row for matching.
func (p *Property) Entity() entity.Entity {
	return entity.Entity{ID: p.ID, Kind: entity.KindProperty, Name: p.Name}
}

// Entity converts the row for matching.
func (s *Space) Entity() entity.Entity {
	return entity.Entity{ID: s.ID, Kind: entity.KindSpace, Name: s.Name, PropertyID: s.PropertyID}
}

// Entity converts the row for matching.
func (a *Asset) Entity() entity.Entity {
	return entity.Entity{ID: a.ID, Kind: entity.KindAsset, Name: a.Name, PropertyID: a.PropertyID, SpaceID: a.SpaceID}
}

// Entity converts the row for matching.
func (t *Theme) Entity() entity.Entity {
	return entity.Entity{ID: t.ID, Kind: entity.KindTheme, Name: t.Name, ThemeType: t.Type}
}

// Entity converts the row for matching.
func (m *Member) Entity() entity.Entity {
	return entity.Entity{ID: m.ID, Kind: entity.KindMember, Name: m.Name}
}

// Entity converts the row for matching.
func (t *Team) Entity() entity.Entity {
	return entity.Entity{ID: t.ID, Kind: entity.KindTeam, Name: t.Name}
}
