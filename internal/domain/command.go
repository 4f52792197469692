package domain

import (
	"strings"

	"github.com/shaiso/quickcategories/internal/engine"
)

// Command — одна страница и упорядоченный список действий над ней.
type Command struct {
	// Page — страница, которую нужно изменить.
	Page Page `json:"page"`

	// Actions — действия в порядке применения.
	Actions []Action `json:"actions"`
}

// NewCommand создаёт команду и проверяет её.
func NewCommand(page Page, actions ...Action) (Command, error) {
	cmd := Command{Page: page, Actions: actions}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Validate проверяет страницу и все действия.
func (c Command) Validate() error {
	if err := c.Page.Validate(); err != nil {
		return err
	}
	if len(c.Actions) == 0 {
		return NewValidationError("actions", ErrNoActions)
	}
	for _, a := range c.Actions {
		if err := ValidateAction(a); err != nil {
			return err
		}
	}
	return nil
}

// ActionResult — результат применения одного действия.
type ActionResult struct {
	Action Action
	Noop   bool // текст не изменился
}

// Apply применяет действия по порядку, передавая текст от одного к другому.
// Для каждого действия сообщает, было ли оно no-op.
func (c Command) Apply(text string, info engine.CategoryInfo) (string, []ActionResult) {
	results := make([]ActionResult, 0, len(c.Actions))
	for _, a := range c.Actions {
		next := a.Apply(text, info)
		results = append(results, ActionResult{Action: a, Noop: next == text})
		text = next
	}
	return text, results
}

// Cleanup возвращает копию команды, нормализованную для показа.
// Внешние системы не вызываются.
func (c Command) Cleanup() Command {
	out := Command{Page: c.Page, Actions: make([]Action, len(c.Actions))}
	out.Page.Cleanup()
	for i, a := range c.Actions {
		out.Actions[i] = a.Cleanup()
	}
	return out
}

// String возвращает команду в построчном формате: Title|+Cat|-Cat#key.
func (c Command) String() string {
	var b strings.Builder
	if c.Page.ResolveRedirects == RedirectsLiteral {
		b.WriteString(NoRedirectMarker)
	}
	b.WriteString(c.Page.Title)
	for _, a := range c.Actions {
		b.WriteByte('|')
		b.WriteString(actionLine(a))
	}
	return b.String()
}

func actionLine(a Action) string {
	switch a := a.(type) {
	case AddCategory:
		return "+" + a.Category
	case AddCategoryWithSortKey:
		return "+" + a.Category + "#" + a.SortKey
	case AddCategoryProvideSortKey:
		return "+" + a.Category + "##" + a.SortKey
	case AddCategoryReplaceSortKey:
		return "+" + a.Category + "###" + a.SortKey
	case RemoveCategory:
		return "-" + a.Category
	case RemoveCategoryWithSortKey:
		return "-" + a.Category + "#" + a.SortKey
	default:
		return "?"
	}
}

// IsMinorEdit возвращает true, если все действия, изменившие текст, малые.
func IsMinorEdit(results []ActionResult) bool {
	for _, r := range results {
		if !r.Noop && !r.Action.IsMinor() {
			return false
		}
	}
	return true
}

// Summary собирает описание правки из фрагментов действий.
// Фрагменты no-op действий берутся в скобки.
func Summary(results []ActionResult, info engine.CategoryInfo) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		fragment := r.Action.SummaryFragment(info)
		if r.Noop {
			fragment = "(" + fragment + ")"
		}
		parts = append(parts, fragment)
	}
	return strings.Join(parts, ", ")
}
