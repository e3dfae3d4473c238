package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/sections"
)

func newOrgCmd(a *app) *cobra.Command {
	orgCmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organisations",
	}

	orgCmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create an organisation",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			database, err := db.Open(a.cfg.DBPath)
			if err != nil {
				fail(err)
			}
			defer database.Close()

			o := &db.Organisation{Name: strings.TrimSpace(args[0])}
			if o.Name == "" {
				fail(errors.New("name is required"))
			}
			if err := database.CreateOrganisation(cmd.Context(), o); err != nil {
				fail(err)
			}
			fmt.Println(successStyle.Render("Created organisation " + o.Name))
			fmt.Println(dimStyle.Render(o.ID))
		},
	})

	orgCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List organisations",
		Run: func(cmd *cobra.Command, args []string) {
			database, err := db.Open(a.cfg.DBPath)
			if err != nil {
				fail(err)
			}
			defer database.Close()

			orgs, err := database.ListOrganisations(cmd.Context())
			if err != nil {
				fail(err)
			}
			if len(orgs) == 0 {
				fmt.Println(dimStyle.Render("No organisations"))
				return
			}
			for _, o := range orgs {
				fmt.Printf("%s  %s\n", boldStyle.Render(o.Name), dimStyle.Render(o.ID))
			}
		},
	})
	return orgCmd
}

// entitySpec describes one kind of organisation row the CLI can add and list.
type entitySpec struct {
	kind  entity.Kind
	use   string
	short string
	flags func(cmd *cobra.Command)
	// create inserts a row named name and returns it as an entity.
	create func(ctx context.Context, database *db.DB, org, name string, cmd *cobra.Command) (entity.Entity, error)
}

func entitySpecs() []entitySpec {
	return []entitySpec{
		{
			kind: entity.KindProperty, use: "property", short: "Manage properties",
			flags: func(cmd *cobra.Command) { cmd.Flags().String("address", "", "Street address") },
			create: func(ctx context.Context, database *db.DB, org, name string, cmd *cobra.Command) (entity.Entity, error) {
				address, _ := cmd.Flags().GetString("address")
				p := &db.Property{OrgID: org, Name: name, Address: address}
				if err := database.CreateProperty(ctx, p); err != nil {
					return entity.Entity{}, err
				}
				return p.Entity(), nil
			},
		},
		{
			kind: entity.KindSpace, use: "space", short: "Manage spaces (rooms and areas)",
			flags: func(cmd *cobra.Command) { cmd.Flags().String("property", "", "Property id (required)") },
			create: func(ctx context.Context, database *db.DB, org, name string, cmd *cobra.Command) (entity.Entity, error) {
				property, _ := cmd.Flags().GetString("property")
				if property == "" {
					return entity.Entity{}, errors.New("--property is required")
				}
				s := &db.Space{OrgID: org, PropertyID: property, Name: name}
				if err := database.CreateSpace(ctx, s); err != nil {
					return entity.Entity{}, err
				}
				return s.Entity(), nil
			},
		},
		{
			kind: entity.KindAsset, use: "asset", short: "Manage assets (equipment)",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().String("property", "", "Property id (required)")
				cmd.Flags().String("space", "", "Space id")
			},
			create: func(ctx context.Context, database *db.DB, org, name string, cmd *cobra.Command) (entity.Entity, error) {
				property, _ := cmd.Flags().GetString("property")
				space, _ := cmd.Flags().GetString("space")
				if property == "" {
					return entity.Entity{}, errors.New("--property is required")
				}
				asset := &db.Asset{OrgID: org, PropertyID: property, SpaceID: space, Name: name}
				if err := database.CreateAsset(ctx, asset); err != nil {
					return entity.Entity{}, err
				}
				return asset.Entity(), nil
			},
		},
		{
			kind: entity.KindMember, use: "member", short: "Manage members",
			flags: func(cmd *cobra.Command) { cmd.Flags().String("email", "", "Email address") },
			create: func(ctx context.Context, database *db.DB, org, name string, cmd *cobra.Command) (entity.Entity, error) {
				email, _ := cmd.Flags().GetString("email")
				m := &db.Member{OrgID: org, Name: name, Email: email}
				if err := database.CreateMember(ctx, m); err != nil {
					return entity.Entity{}, err
				}
				return m.Entity(), nil
			},
		},
		{
			kind: entity.KindTeam, use: "team", short: "Manage teams",
			flags: func(cmd *cobra.Command) { cmd.Flags().StringSlice("member", nil, "Member ids to add") },
			create: func(ctx context.Context, database *db.DB, org, name string, cmd *cobra.Command) (entity.Entity, error) {
				members, _ := cmd.Flags().GetStringSlice("member")
				t := &db.Team{OrgID: org, Name: name}
				if err := database.CreateTeam(ctx, t); err != nil {
					return entity.Entity{}, err
				}
				for _, m := range members {
					if err := database.AddTeamMember(ctx, t.ID, m); err != nil {
						return entity.Entity{}, err
					}
				}
				return t.Entity(), nil
			},
		},
		{
			kind: entity.KindTheme, use: "theme", short: "Manage themes (categories and tags)",
			flags: func(cmd *cobra.Command) { cmd.Flags().String("type", entity.DefaultThemeType, "Theme type") },
			create: func(ctx context.Context, database *db.DB, org, name string, cmd *cobra.Command) (entity.Entity, error) {
				themeType, _ := cmd.Flags().GetString("type")
				t := &db.Theme{OrgID: org, Name: name, Type: themeType}
				if err := database.CreateTheme(ctx, t); err != nil {
					return entity.Entity{}, err
				}
				return t.Entity(), nil
			},
		},
	}
}

// newEntityCmds builds "<kind> add" and "<kind> list" for every entity kind.
func newEntityCmds(a *app) []*cobra.Command {
	var cmds []*cobra.Command
	for _, spec := range entitySpecs() {
		spec := spec
		parent := &cobra.Command{Use: spec.use, Short: spec.short}

		addCmd := &cobra.Command{
			Use:   "add <name>",
			Short: "Add a " + spec.use,
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				database, err := db.Open(a.cfg.DBPath)
				if err != nil {
					fail(err)
				}
				defer database.Close()

				org, err := a.organisation(cmd.Context(), database)
				if err != nil {
					fail(err)
				}
				name := strings.TrimSpace(args[0])
				if name == "" {
					fail(errors.New("name is required"))
				}
				e, err := spec.create(cmd.Context(), database, org, name, cmd)
				if err != nil {
					fail(err)
				}
				fmt.Println(successStyle.Render(fmt.Sprintf("Added %s %s", spec.use, e.Name)))
				fmt.Println(dimStyle.Render(e.ID))
			},
		}
		spec.flags(addCmd)
		parent.AddCommand(addCmd)

		listCmd := &cobra.Command{
			Use:   "list [search]",
			Short: "List " + spec.use + " rows",
			Args:  cobra.MaximumNArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				outputJSON, _ := cmd.Flags().GetBool("json")
				database, err := db.Open(a.cfg.DBPath)
				if err != nil {
					fail(err)
				}
				defer database.Close()

				org, err := a.organisation(cmd.Context(), database)
				if err != nil {
					fail(err)
				}
				all, err := database.ListEntities(cmd.Context(), org)
				if err != nil {
					fail(err)
				}
				var query string
				if len(args) > 0 {
					query = args[0]
				}
				found := sections.Filter(ofKind(all, spec.kind), query)

				if outputJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					enc.Encode(found)
					return
				}
				if len(found) == 0 {
					fmt.Println(dimStyle.Render("Nothing found"))
					return
				}
				for _, e := range found {
					fmt.Println(formatEntity(e))
				}
			},
		}
		listCmd.Flags().Bool("json", false, "Output in JSON format")
		parent.AddCommand(listCmd)

		cmds = append(cmds, parent)
	}
	return cmds
}

func ofKind(entities []entity.Entity, kind entity.Kind) []entity.Entity {
	var out []entity.Entity
	for _, e := range entities {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// formatEntity renders one list line: name, theme type if any, then id.
func formatEntity(e entity.Entity) string {
	line := boldStyle.Render(e.Name)
	if e.ThemeType != "" {
		line += " " + dimStyle.Render("("+e.ThemeType+")")
	}
	return line + "  " + dimStyle.Render(e.ID)
}
