package sections

import (
	"context"
	"fmt"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

// AssetLoader lists the assets of a property, narrowed to a space when
// spaceID is set.
type AssetLoader interface {
	LoadAssets(ctx context.Context, propertyID, spaceID string) ([]entity.Entity, error)
}

// AssetLoaderFunc adapts a function to AssetLoader.
type AssetLoaderFunc func(ctx context.Context, propertyID, spaceID string) ([]entity.Entity, error)

// LoadAssets implements AssetLoader.
func (f AssetLoaderFunc) LoadAssets(ctx context.Context, propertyID, spaceID string) ([]entity.Entity, error) {
	return f(ctx, propertyID, spaceID)
}

// WhatView is the asset section.
type WhatView struct {
	Disabled bool            `json:"disabled"`
	Assets   []entity.Entity `json:"assets"`
	Selected []entity.Ref    `json:"selected,omitempty"`
	Chips
}

// What builds the asset view. Without a property the section is disabled
// and the loader is never called.
func What(ctx context.Context, s draft.State, loader AssetLoader) (WhatView, error) {
	v := WhatView{
		Disabled: s.PropertyID == "",
		Assets:   []entity.Entity{},
		Selected: s.Assets,
		Chips:    chipsFor(s, draft.SectionWhat),
	}
	if v.Disabled || loader == nil {
		return v, nil
	}

	assets, err := loader.LoadAssets(ctx, s.PropertyID, scopedSpaceID(s))
	if err != nil {
		return v, fmt.Errorf("load assets: %w", err)
	}
	if assets != nil {
		v.Assets = assets
	}
	return v, nil
}

// scopedSpaceID is the first persisted selected space, used to narrow assets.
func scopedSpaceID(s draft.State) string {
	for _, r := range s.Spaces {
		if !r.IsGhost() {
			return r.ID
		}
	}
	return ""
}
