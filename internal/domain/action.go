package domain

import (
	"strings"

	"github.com/shaiso/quickcategories/internal/engine"
)

// ActionKind — тип действия над категорией.
type ActionKind string

const (
	ActionAddCategory               ActionKind = "add_category"
	ActionAddCategoryWithSortKey    ActionKind = "add_category_with_sort_key"
	ActionAddCategoryProvideSortKey ActionKind = "add_category_provide_sort_key"
	ActionAddCategoryReplaceSortKey ActionKind = "add_category_replace_sort_key"
	ActionRemoveCategory            ActionKind = "remove_category"
	ActionRemoveCategoryWithSortKey ActionKind = "remove_category_with_sort_key"
)

// Action — одно действие над категорией страницы.
//
// Набор реализаций закрыт (см. ActionKind). Все реализации — значения:
// Cleanup возвращает новую копию, Apply не имеет побочных эффектов.
type Action interface {
	// Kind возвращает тип действия.
	Kind() ActionKind

	// CategoryName возвращает название категории без пространства имён.
	CategoryName() string

	// Apply применяет действие к викитексту. Повторное применение
	// с тем же info ничего не меняет.
	Apply(text string, info engine.CategoryInfo) string

	// IsMinor — подсказка для флага малой правки.
	IsMinor() bool

	// SummaryFragment — короткое описание для описания правки.
	SummaryFragment(info engine.CategoryInfo) string

	// Cleanup возвращает действие с нормализованным для показа названием.
	Cleanup() Action

	action()
}

// AddCategory добавляет категорию, если её ещё нет.
type AddCategory struct {
	Category string
}

// AddCategoryWithSortKey добавляет категорию с ключом сортировки, если её ещё нет.
type AddCategoryWithSortKey struct {
	Category string
	SortKey  string
}

// AddCategoryProvideSortKey задаёт ключ сортировки, если у ссылки его нет.
// Существующий другой ключ не трогает.
type AddCategoryProvideSortKey struct {
	Category string
	SortKey  string
}

// AddCategoryReplaceSortKey задаёт или перезаписывает ключ сортировки.
// Пустой SortKey удаляет ключ.
type AddCategoryReplaceSortKey struct {
	Category string
	SortKey  string
}

// RemoveCategory удаляет первую ссылку на категорию.
type RemoveCategory struct {
	Category string
}

// RemoveCategoryWithSortKey удаляет первую ссылку на категорию с точно таким ключом.
type RemoveCategoryWithSortKey struct {
	Category string
	SortKey  string
}

// --- Constructors ---

// NewAddCategory создаёт AddCategory.
func NewAddCategory(category string) (AddCategory, error) {
	a := AddCategory{Category: category}
	return a, ValidateAction(a)
}

// NewAddCategoryWithSortKey создаёт AddCategoryWithSortKey.
func NewAddCategoryWithSortKey(category, sortKey string) (AddCategoryWithSortKey, error) {
	a := AddCategoryWithSortKey{Category: category, SortKey: sortKey}
	return a, ValidateAction(a)
}

// NewAddCategoryProvideSortKey создаёт AddCategoryProvideSortKey.
func NewAddCategoryProvideSortKey(category, sortKey string) (AddCategoryProvideSortKey, error) {
	a := AddCategoryProvideSortKey{Category: category, SortKey: sortKey}
	return a, ValidateAction(a)
}

// NewAddCategoryReplaceSortKey создаёт AddCategoryReplaceSortKey.
func NewAddCategoryReplaceSortKey(category, sortKey string) (AddCategoryReplaceSortKey, error) {
	a := AddCategoryReplaceSortKey{Category: category, SortKey: sortKey}
	return a, ValidateAction(a)
}

// NewRemoveCategory создаёт RemoveCategory.
func NewRemoveCategory(category string) (RemoveCategory, error) {
	a := RemoveCategory{Category: category}
	return a, ValidateAction(a)
}

// NewRemoveCategoryWithSortKey создаёт RemoveCategoryWithSortKey.
func NewRemoveCategoryWithSortKey(category, sortKey string) (RemoveCategoryWithSortKey, error) {
	a := RemoveCategoryWithSortKey{Category: category, SortKey: sortKey}
	return a, ValidateAction(a)
}

// ValidateAction проверяет название категории и ключ сортировки.
func ValidateAction(a Action) error {
	if err := validateCategory(a.CategoryName()); err != nil {
		return err
	}

	switch a := a.(type) {
	case AddCategoryWithSortKey:
		return validateSortKey(a.SortKey, true)
	case AddCategoryProvideSortKey:
		return validateSortKey(a.SortKey, true)
	case AddCategoryReplaceSortKey:
		return validateSortKey(a.SortKey, false)
	case RemoveCategoryWithSortKey:
		return validateSortKey(a.SortKey, true)
	}
	return nil
}

func validateCategory(category string) error {
	if strings.TrimSpace(category) == "" {
		return NewValidationError("category", ErrEmptyCategory)
	}
	if strings.ContainsAny(category, "[]|\n") {
		return NewValidationError("category", ErrCategoryWikilink)
	}
	normalized := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(category, "_", " ")))
	if strings.HasPrefix(normalized, "category:") || strings.HasPrefix(normalized, ":category:") {
		return NewValidationError("category", ErrCategoryNamespace)
	}
	return nil
}

func validateSortKey(sortKey string, required bool) error {
	if required && sortKey == "" {
		return NewValidationError("sort_key", ErrEmptySortKey)
	}
	if strings.Contains(sortKey, "]]") || strings.Contains(sortKey, "[[") || strings.Contains(sortKey, "\n") {
		return NewValidationError("sort_key", ErrInvalidSortKey)
	}
	return nil
}

// --- Apply ---

func (a AddCategory) Apply(text string, info engine.CategoryInfo) string {
	doc := engine.Parse(text)
	if _, ok := doc.FindCategory(info, a.Category); ok {
		return text
	}
	return doc.InsertCategory(info, info.NewCategoryLink(a.Category, "", false)).String()
}

func (a AddCategoryWithSortKey) Apply(text string, info engine.CategoryInfo) string {
	doc := engine.Parse(text)
	if _, ok := doc.FindCategory(info, a.Category); ok {
		return text
	}
	return doc.InsertCategory(info, info.NewCategoryLink(a.Category, a.SortKey, true)).String()
}

func (a AddCategoryProvideSortKey) Apply(text string, info engine.CategoryInfo) string {
	doc := engine.Parse(text)
	idx, ok := doc.FindCategory(info, a.Category)
	if !ok {
		return doc.InsertCategory(info, info.NewCategoryLink(a.Category, a.SortKey, true)).String()
	}
	if _, has := doc[idx].SortKey(); has {
		return text
	}
	return doc.ReplaceAt(idx, doc[idx].WithLabel(a.SortKey, true)).String()
}

func (a AddCategoryReplaceSortKey) Apply(text string, info engine.CategoryInfo) string {
	doc := engine.Parse(text)
	idx, ok := doc.FindCategory(info, a.Category)
	if !ok {
		return doc.InsertCategory(info, info.NewCategoryLink(a.Category, a.SortKey, a.SortKey != "")).String()
	}

	seg := doc[idx]
	if a.SortKey == "" {
		if !seg.HasLabel {
			return text
		}
		return doc.ReplaceAt(idx, seg.WithLabel("", false)).String()
	}
	if seg.HasLabel && seg.Label == a.SortKey {
		return text
	}
	return doc.ReplaceAt(idx, seg.WithLabel(a.SortKey, true)).String()
}

func (a RemoveCategory) Apply(text string, info engine.CategoryInfo) string {
	doc := engine.Parse(text)
	idx, ok := doc.FindCategory(info, a.Category)
	if !ok {
		return text
	}
	return doc.RemoveAt(idx).String()
}

func (a RemoveCategoryWithSortKey) Apply(text string, info engine.CategoryInfo) string {
	doc := engine.Parse(text)
	idx, ok := doc.FindCategoryFunc(info, a.Category, func(seg engine.Segment) bool {
		return seg.HasLabel && seg.Label == a.SortKey
	})
	if !ok {
		return text
	}
	return doc.RemoveAt(idx).String()
}

// --- Summary ---

func categoryLink(info engine.CategoryInfo, category string) string {
	return "[[" + info.PrimaryName + ":" + category + "]]"
}

func categoryLinkWithKey(info engine.CategoryInfo, category, sortKey string) string {
	return "[[" + info.PrimaryName + ":" + category + "|" + sortKey + "]]"
}

func (a AddCategory) SummaryFragment(info engine.CategoryInfo) string {
	return "+" + categoryLink(info, a.Category)
}

func (a AddCategoryWithSortKey) SummaryFragment(info engine.CategoryInfo) string {
	return "+" + categoryLinkWithKey(info, a.Category, a.SortKey)
}

func (a AddCategoryProvideSortKey) SummaryFragment(info engine.CategoryInfo) string {
	return "+" + categoryLinkWithKey(info, a.Category, a.SortKey)
}

func (a AddCategoryReplaceSortKey) SummaryFragment(info engine.CategoryInfo) string {
	if a.SortKey == "" {
		return "±" + categoryLink(info, a.Category)
	}
	return "±" + categoryLinkWithKey(info, a.Category, a.SortKey)
}

func (a RemoveCategory) SummaryFragment(info engine.CategoryInfo) string {
	return "-" + categoryLink(info, a.Category)
}

func (a RemoveCategoryWithSortKey) SummaryFragment(info engine.CategoryInfo) string {
	return "-" + categoryLinkWithKey(info, a.Category, a.SortKey)
}

// --- Boilerplate ---

func (a AddCategory) Kind() ActionKind               { return ActionAddCategory }
func (a AddCategoryWithSortKey) Kind() ActionKind    { return ActionAddCategoryWithSortKey }
func (a AddCategoryProvideSortKey) Kind() ActionKind { return ActionAddCategoryProvideSortKey }
func (a AddCategoryReplaceSortKey) Kind() ActionKind { return ActionAddCategoryReplaceSortKey }
func (a RemoveCategory) Kind() ActionKind            { return ActionRemoveCategory }
func (a RemoveCategoryWithSortKey) Kind() ActionKind { return ActionRemoveCategoryWithSortKey }

func (a AddCategory) CategoryName() string               { return a.Category }
func (a AddCategoryWithSortKey) CategoryName() string    { return a.Category }
func (a AddCategoryProvideSortKey) CategoryName() string { return a.Category }
func (a AddCategoryReplaceSortKey) CategoryName() string { return a.Category }
func (a RemoveCategory) CategoryName() string            { return a.Category }
func (a RemoveCategoryWithSortKey) CategoryName() string { return a.Category }

func (a AddCategory) IsMinor() bool               { return true }
func (a AddCategoryWithSortKey) IsMinor() bool    { return true }
func (a AddCategoryProvideSortKey) IsMinor() bool { return true }
func (a AddCategoryReplaceSortKey) IsMinor() bool { return true }
func (a RemoveCategory) IsMinor() bool            { return false }
func (a RemoveCategoryWithSortKey) IsMinor() bool { return false }

func cleanupCategory(category string) string {
	return strings.ReplaceAll(category, "_", " ")
}

func (a AddCategory) Cleanup() Action {
	return AddCategory{Category: cleanupCategory(a.Category)}
}

func (a AddCategoryWithSortKey) Cleanup() Action {
	return AddCategoryWithSortKey{Category: cleanupCategory(a.Category), SortKey: a.SortKey}
}

func (a AddCategoryProvideSortKey) Cleanup() Action {
	return AddCategoryProvideSortKey{Category: cleanupCategory(a.Category), SortKey: a.SortKey}
}

func (a AddCategoryReplaceSortKey) Cleanup() Action {
	return AddCategoryReplaceSortKey{Category: cleanupCategory(a.Category), SortKey: a.SortKey}
}

func (a RemoveCategory) Cleanup() Action {
	return RemoveCategory{Category: cleanupCategory(a.Category)}
}

func (a RemoveCategoryWithSortKey) Cleanup() Action {
	return RemoveCategoryWithSortKey{Category: cleanupCategory(a.Category), SortKey: a.SortKey}
}

func (AddCategory) action()               {}
func (AddCategoryWithSortKey) action()    {}
func (AddCategoryProvideSortKey) action() {}
func (AddCategoryReplaceSortKey) action() {}
func (RemoveCategory) action()            {}
func (RemoveCategoryWithSortKey) action() {}
