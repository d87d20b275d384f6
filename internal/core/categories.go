package core

import (
	"context"
	"sort"
	"strings"

	"costcore/pkg/domain"
)

// CategorySource reports where a resolved category came from.
type CategorySource string

const (
	// CategorySourceRegistry marks entries found in the dynamic registry.
	CategorySourceRegistry CategorySource = "registry"
	// CategorySourceBuiltin marks entries served from the built-in table.
	CategorySourceBuiltin CategorySource = "builtin"
	// CategorySourceDerived marks labels humanized from the raw key.
	CategorySourceDerived CategorySource = "derived"
)

// CategoryInfo is the resolved display form of a category key. Resolution
// never fails: unknown keys degrade to a humanized label.
type CategoryInfo struct {
	Key    string
	Label  string
	Icon   string
	Group  string
	Source CategorySource
}

type builtinCategory struct {
	label     string
	icon      string
	group     string
	sortOrder int
}

// builtinCategories is the fallback table of well-known construction trade
// categories used when the dynamic registry has no entry for a key.
var builtinCategories = map[string]builtinCategory{
	"site-prep":          {label: "Site Preparation", icon: "excavator", group: "sitework", sortOrder: 10},
	"demolition":         {label: "Demolition", icon: "hammer", group: "sitework", sortOrder: 20},
	"concrete":           {label: "Concrete & Foundation", icon: "foundation", group: "structure", sortOrder: 30},
	"masonry":            {label: "Masonry", icon: "brick", group: "structure", sortOrder: 40},
	"framing":            {label: "Framing", icon: "frame", group: "structure", sortOrder: 50},
	"roofing":            {label: "Roofing", icon: "roof", group: "exterior", sortOrder: 60},
	"siding":             {label: "Siding & Exterior Trim", icon: "siding", group: "exterior", sortOrder: 70},
	"windows-doors":      {label: "Windows & Doors", icon: "door", group: "exterior", sortOrder: 80},
	"plumbing":           {label: "Plumbing", icon: "pipe", group: "mechanicals", sortOrder: 90},
	"electrical":         {label: "Electrical", icon: "bolt", group: "mechanicals", sortOrder: 100},
	"hvac":               {label: "HVAC", icon: "fan", group: "mechanicals", sortOrder: 110},
	"insulation":         {label: "Insulation", icon: "layers", group: "finishes", sortOrder: 120},
	"drywall":            {label: "Drywall", icon: "wall", group: "finishes", sortOrder: 130},
	"painting":           {label: "Painting", icon: "brush", group: "finishes", sortOrder: 140},
	"flooring":           {label: "Flooring", icon: "grid", group: "finishes", sortOrder: 150},
	"finish-carpentry":   {label: "Finish Carpentry", icon: "saw", group: "finishes", sortOrder: 160},
	"cabinets-counters":  {label: "Cabinets & Countertops", icon: "cabinet", group: "finishes", sortOrder: 170},
	"landscaping":        {label: "Landscaping", icon: "tree", group: "sitework", sortOrder: 180},
	"general-conditions": {label: "General Conditions", icon: "clipboard", group: "general", sortOrder: 190},
}

// GroupForCategoryKey returns the reporting group for a category key, falling
// back to "general" for keys outside the built-in table.
func GroupForCategoryKey(key string) string {
	if b, ok := builtinCategories[strings.ToLower(strings.TrimSpace(key))]; ok {
		return b.group
	}
	return "general"
}

// humanizeCategoryKey turns a raw key like "solar-panels" into "Solar Panels".
func humanizeCategoryKey(key string) string {
	fields := strings.FieldsFunc(key, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, f := range fields {
		if f == "" {
			continue
		}
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}

// ResolveCategory resolves a category key for display. The dynamic registry
// wins, then the built-in table, then a humanized form of the key itself. An
// unreachable backend degrades to the fallback chain instead of failing.
func (s *Service) ResolveCategory(ctx context.Context, key string) CategoryInfo {
	normalized := strings.ToLower(strings.TrimSpace(key))
	var fromRegistry *Category
	if err := s.router.View(ctx, func(view domain.TransactionView) error {
		if found, ok := view.FindCategoryByKey(normalized); ok {
			fromRegistry = &found
		}
		return nil
	}); err != nil {
		s.logger.Debugf("category registry lookup for %q: %v", key, err)
	}
	if fromRegistry != nil {
		return CategoryInfo{
			Key:    fromRegistry.Key,
			Label:  fromRegistry.Label,
			Icon:   fromRegistry.Icon,
			Group:  GroupForCategoryKey(fromRegistry.Key),
			Source: CategorySourceRegistry,
		}
	}
	if b, ok := builtinCategories[normalized]; ok {
		return CategoryInfo{Key: normalized, Label: b.label, Icon: b.icon, Group: b.group, Source: CategorySourceBuiltin}
	}
	return CategoryInfo{
		Key:    normalized,
		Label:  humanizeCategoryKey(key),
		Icon:   "tag",
		Group:  "general",
		Source: CategorySourceDerived,
	}
}

// CreateCategory adds a custom entry to the dynamic registry. Key collisions
// are rejected case-insensitively by the store.
func (s *Service) CreateCategory(ctx context.Context, category Category) (Category, error) {
	var created Category
	err := s.instrument(ctx, "create_category", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		category.Key = strings.ToLower(strings.TrimSpace(category.Key))
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateCategory(category)
			return err
		})
		s.logWarnings(res)
		return err
	})
	return created, err
}

// UpdateCategory mutates a custom registry entry. System entries and key
// renames are rejected by the store.
func (s *Service) UpdateCategory(ctx context.Context, id string, mutator func(*Category) error) (Category, error) {
	var updated Category
	err := s.instrument(ctx, "update_category", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateCategory(id, mutator)
			return err
		})
		s.logWarnings(res)
		return err
	})
	return updated, err
}

// DeleteCategory removes a custom registry entry. Trades keep their raw keys
// and fall back to built-in or derived display forms.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.instrument(ctx, "delete_category", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return tx.DeleteCategory(id)
		})
		s.logWarnings(res)
		return err
	})
}

// ListCategories returns registry entries ordered by sort order then label.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	err := s.instrument(ctx, "list_categories", func(ctx context.Context) error {
		return s.router.View(ctx, func(view domain.TransactionView) error {
			categories = view.ListCategories()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].SortOrder != categories[j].SortOrder {
			return categories[i].SortOrder < categories[j].SortOrder
		}
		return categories[i].Label < categories[j].Label
	})
	return categories, nil
}

// EnsureSystemCategories seeds the dynamic registry with the built-in table,
// creating only the keys that are missing. Safe to run at every startup.
func (s *Service) EnsureSystemCategories(ctx context.Context) error {
	return s.instrument(ctx, "ensure_system_categories", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		keys := make([]string, 0, len(builtinCategories))
		for key := range builtinCategories {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			view := tx.Snapshot()
			for _, key := range keys {
				if _, ok := view.FindCategoryByKey(key); ok {
					continue
				}
				b := builtinCategories[key]
				if _, err := tx.CreateCategory(Category{
					Key:       key,
					Label:     b.label,
					Icon:      b.icon,
					SortOrder: b.sortOrder,
					System:    true,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		s.logWarnings(res)
		return err
	})
}
