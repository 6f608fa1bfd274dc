// Package demo is the todo list served by "viewcore serve".
package demo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/viewcore/pkg/view"
	"github.com/vango-dev/viewcore/pkg/views"
)

// Filters.
const (
	FilterAll    = "all"
	FilterActive = "active"
	FilterDone   = "done"
)

var filters = []string{FilterAll, FilterActive, FilterDone}

// Todo is one list item.
type Todo struct {
	ID    int
	Title string
	Done  bool
}

// State is the application state.
type State struct {
	Todos  []Todo
	NextID int
	Filter string
	Now    time.Time
}

// Actions.
type (
	Add       struct{ Title string }
	Toggle    struct{ ID int }
	Remove    struct{ ID int }
	SetFilter struct{ Filter string }
	ClearDone struct{}
	Tick      struct{ Now time.Time }
)

// App renders State and applies actions to it.
type App struct {
	// Dispatch feeds Tick actions back into the driver. With a nil
	// Dispatch or zero TickInterval the clock never ticks.
	Dispatch     func(action any) error
	TickInterval time.Duration
}

// Initial returns the starting state.
func Initial() State {
	return State{NextID: 1, Filter: FilterAll}
}

// Update implements driver.App.
func (a *App) Update(s State, action any) State {
	switch act := action.(type) {
	case Add:
		title := strings.TrimSpace(act.Title)
		if title == "" {
			return s
		}
		s.Todos = append(append([]Todo(nil), s.Todos...), Todo{ID: s.NextID, Title: title})
		s.NextID++
	case Toggle:
		s.Todos = mapTodos(s.Todos, func(t Todo) (Todo, bool) {
			if t.ID == act.ID {
				t.Done = !t.Done
			}
			return t, true
		})
	case Remove:
		s.Todos = mapTodos(s.Todos, func(t Todo) (Todo, bool) { return t, t.ID != act.ID })
	case ClearDone:
		s.Todos = mapTodos(s.Todos, func(t Todo) (Todo, bool) { return t, !t.Done })
	case SetFilter:
		s.Filter = act.Filter
	case Tick:
		s.Now = act.Now
	}
	return s
}

func mapTodos(in []Todo, fn func(Todo) (Todo, bool)) []Todo {
	out := make([]Todo, 0, len(in))
	for _, t := range in {
		if t, keep := fn(t); keep {
			out = append(out, t)
		}
	}
	return out
}

// View implements driver.App. The clock shows once a Tick has arrived, so
// the tree depends on State alone and a replayed session renders the same
// elements as the live one.
func (a *App) View(s State) view.View {
	children := view.Items(
		header(),
		views.Element{
			Tag:      "ul",
			Attrs:    map[string]string{"class": "todo-list"},
			Children: items(s),
		},
		footer(s),
	)
	if !s.Now.IsZero() {
		children = append(children, view.Keyed("clock", views.Text(s.Now.Format(time.Kitchen))))
	}
	return views.Subscribe{
		Start: a.startClock,
		Child: views.Element{
			Tag:      "section",
			Attrs:    map[string]string{"class": "todoapp"},
			Children: children,
		},
	}
}

// startClock ticks only with a Dispatch and a positive TickInterval.
func (a *App) startClock() func() {
	if a.Dispatch == nil || a.TickInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(a.TickInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				a.Dispatch(Tick{Now: now})
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func header() view.View {
	return views.Element{
		Tag: "form",
		Children: view.Items(views.El("input", map[string]string{
			"name":        "title",
			"placeholder": "What needs to be done?",
		})),
		On: func(payload any) any {
			if title := titleOf(payload); title != "" {
				return Add{Title: title}
			}
			return nil
		},
	}
}

// titleOf extracts the submitted title from a form payload.
func titleOf(payload any) string {
	switch p := payload.(type) {
	case string:
		return strings.TrimSpace(p)
	case map[string]any:
		if s, ok := p["title"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func visible(s State, t Todo) bool {
	switch s.Filter {
	case FilterActive:
		return !t.Done
	case FilterDone:
		return t.Done
	}
	return true
}

func items(s State) view.Seq {
	seq := make(view.Seq, 0, len(s.Todos))
	for _, t := range s.Todos {
		if !visible(s, t) {
			continue
		}
		id := t.ID
		seq = append(seq, view.Keyed(strconv.Itoa(id), views.Map{
			Child: views.Memo[Todo]{Data: t, Render: renderTodo},
			Fn: func(action any) any {
				switch action {
				case "toggle":
					return Toggle{ID: id}
				case "remove":
					return Remove{ID: id}
				}
				return nil
			},
		}))
	}
	return seq
}

func renderTodo(t Todo) view.View {
	class := "todo"
	if t.Done {
		class += " done"
	}
	return views.Element{
		Tag:   "li",
		Attrs: map[string]string{"class": class},
		Children: view.Items(
			views.Text(t.Title),
			views.Element{
				Tag:      "button",
				Attrs:    map[string]string{"class": "destroy"},
				Children: view.Items(views.Text("×")),
				On:       func(any) any { return "remove" },
			},
		),
		On: func(any) any { return "toggle" },
	}
}

func footer(s State) view.View {
	left, done := 0, 0
	for _, t := range s.Todos {
		if t.Done {
			done++
		} else {
			left++
		}
	}

	children := view.Seq{view.Keyed("count", views.Text(fmt.Sprintf("%d items left", left)))}
	for _, f := range filters {
		f := f
		attrs := map[string]string{"data-filter": f}
		if s.Filter == f {
			attrs["class"] = "selected"
		}
		children = append(children, view.Keyed(f, views.Element{
			Tag:      "button",
			Attrs:    attrs,
			Children: view.Items(views.Text(f)),
			On:       func(any) any { return SetFilter{Filter: f} },
		}))
	}
	if done > 0 {
		children = append(children, view.Keyed("clear", views.Element{
			Tag:      "button",
			Attrs:    map[string]string{"class": "clear-completed"},
			Children: view.Items(views.Text("Clear completed")),
			On:       func(any) any { return ClearDone{} },
		}))
	}

	return views.Element{
		Tag:      "footer",
		Attrs:    map[string]string{"class": "footer"},
		Children: children,
	}
}
