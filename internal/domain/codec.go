package domain

import (
	"encoding/json"
	"fmt"
)

// actionJSON — представление действия в JSON.
//
//	{"type": "add_category_with_sort_key", "category": "Foo", "sort_key": "bar"}
type actionJSON struct {
	Type     ActionKind `json:"type"`
	Category string     `json:"category"`
	SortKey  *string    `json:"sort_key,omitempty"`
}

func encodeAction(a Action) actionJSON {
	out := actionJSON{Type: a.Kind(), Category: a.CategoryName()}
	switch a := a.(type) {
	case AddCategoryWithSortKey:
		out.SortKey = &a.SortKey
	case AddCategoryProvideSortKey:
		out.SortKey = &a.SortKey
	case AddCategoryReplaceSortKey:
		out.SortKey = &a.SortKey
	case RemoveCategoryWithSortKey:
		out.SortKey = &a.SortKey
	}
	return out
}

func decodeAction(in actionJSON) (Action, error) {
	sortKey := ""
	if in.SortKey != nil {
		sortKey = *in.SortKey
	}

	switch in.Type {
	case ActionAddCategory:
		return AddCategory{Category: in.Category}, nil
	case ActionAddCategoryWithSortKey:
		return AddCategoryWithSortKey{Category: in.Category, SortKey: sortKey}, nil
	case ActionAddCategoryProvideSortKey:
		return AddCategoryProvideSortKey{Category: in.Category, SortKey: sortKey}, nil
	case ActionAddCategoryReplaceSortKey:
		return AddCategoryReplaceSortKey{Category: in.Category, SortKey: sortKey}, nil
	case ActionRemoveCategory:
		return RemoveCategory{Category: in.Category}, nil
	case ActionRemoveCategoryWithSortKey:
		return RemoveCategoryWithSortKey{Category: in.Category, SortKey: sortKey}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, in.Type)
	}
}

// MarshalActions сериализует список действий.
func MarshalActions(actions []Action) ([]byte, error) {
	out := make([]actionJSON, len(actions))
	for i, a := range actions {
		out[i] = encodeAction(a)
	}
	return json.Marshal(out)
}

// UnmarshalActions десериализует список действий. Валидация не выполняется.
func UnmarshalActions(data []byte) ([]Action, error) {
	var in []actionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	actions := make([]Action, len(in))
	for i, a := range in {
		action, err := decodeAction(a)
		if err != nil {
			return nil, err
		}
		actions[i] = action
	}
	return actions, nil
}

type commandJSON struct {
	Page    Page            `json:"page"`
	Actions json.RawMessage `json:"actions"`
}

// MarshalJSON реализует json.Marshaler.
func (c Command) MarshalJSON() ([]byte, error) {
	actions, err := MarshalActions(c.Actions)
	if err != nil {
		return nil, err
	}
	return json.Marshal(commandJSON{Page: c.Page, Actions: actions})
}

// UnmarshalJSON реализует json.Unmarshaler.
func (c *Command) UnmarshalJSON(data []byte) error {
	var in commandJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.Page = in.Page
	c.Actions = nil
	if len(in.Actions) == 0 || string(in.Actions) == "null" {
		return nil
	}
	actions, err := UnmarshalActions(in.Actions)
	if err != nil {
		return err
	}
	c.Actions = actions
	return nil
}

// EncodeStatus возвращает вид статуса и данные результата (nil для PLAN/PENDING).
func EncodeStatus(s Status) (StatusKind, []byte, error) {
	switch s := s.(type) {
	case Plan, Pending:
		return s.Kind(), nil, nil
	case Edit, Noop, Failure:
		data, err := json.Marshal(s)
		if err != nil {
			return "", nil, fmt.Errorf("encode %s outcome: %w", s.Kind(), err)
		}
		return s.Kind(), data, nil
	default:
		return "", nil, ErrUnknownStatus
	}
}

// DecodeStatus восстанавливает статус из вида и данных результата.
func DecodeStatus(kind StatusKind, outcome []byte) (Status, error) {
	switch kind {
	case StatusPlan:
		return Plan{}, nil
	case StatusPending:
		return Pending{}, nil
	case StatusEdit:
		var e Edit
		if err := json.Unmarshal(outcome, &e); err != nil {
			return nil, fmt.Errorf("decode edit outcome: %w", err)
		}
		return NewEdit(e.BaseRevision, e.Revision)
	case StatusNoop:
		var n Noop
		if err := json.Unmarshal(outcome, &n); err != nil {
			return nil, fmt.Errorf("decode noop outcome: %w", err)
		}
		return n, nil
	case StatusFailure:
		var f Failure
		if err := json.Unmarshal(outcome, &f); err != nil {
			return nil, fmt.Errorf("decode failure outcome: %w", err)
		}
		if !f.Known() {
			return nil, fmt.Errorf("%w: failure %q", ErrUnknownStatus, f.Type)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, kind)
	}
}
