package http

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"budgetdash/internal/core"
	blog "budgetdash/internal/log"
	"budgetdash/internal/sheets"
)

// handleAddExpense appends a blank row to the posted category and answers
// with the re-rendered category group.
func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	f, err := newFormReader(r, s.detector)
	if err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}
	category := f.String("category")
	if err := f.Err(); err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}

	e, err := s.svc.AddExpense(r.Context(), category)
	if err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}
	s.success(w, r, sheets.TableExpenses,
		fmt.Sprintf("Added expense %d to %s", e.ID, e.Category),
		func(ctx context.Context) (string, error) { return s.categoryFragment(ctx, e.Category) })
}

// handleCreateCategory starts a new category. The response is the new
// group, appended to the category list by the client. Naming an existing
// category adds a row to it.
func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	f, err := newFormReader(r, s.detector)
	if err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}
	name := f.String("name")
	if err := f.Err(); err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}

	existing, err := s.svc.Categories(r.Context())
	if err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}
	e, err := s.svc.CreateCategory(r.Context(), name)
	if err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}
	if slices.Contains(existing, e.Category) {
		// The group is already on the page; reload rather than append a twin.
		s.countMutation()
		NewHTMXResponse().
			Refresh().
			TriggerFormReset().
			TriggerTableChanged(sheets.TableExpenses).
			TriggerSuccessNotification(fmt.Sprintf("Added expense %d to %s", e.ID, e.Category)).
			Write(w)
		return
	}
	s.respond(w, r, NewHTMXResponse().TriggerFormReset(), sheets.TableExpenses,
		fmt.Sprintf("Created category %s", e.Category),
		func(ctx context.Context) (string, error) { return s.categoryFragment(ctx, e.Category) })
}

func (s *Server) handleSaveExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	f, err := newFormReader(r, s.detector)
	if err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	u, err := parseExpenseUpdate(f, id)
	if err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}

	e, err := s.svc.SaveExpense(r.Context(), u)
	if err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}

	blog.FromContext(r.Context()).WithComponent(blog.ComponentBudget).DebugContext(r.Context(), "Expense saved",
		blog.NewFields().WithExpense(e.Category, e.Name, e.Amount.String(), e.Frequency.String()).ToSlice()...)

	s.success(w, r, sheets.TableExpenses,
		fmt.Sprintf("Expense %d saved!", e.ID),
		func(ctx context.Context) (string, error) { return s.categoryFragment(ctx, e.Category) })
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, blog.OpDelete)
		return
	}

	category, err := s.expenseCategory(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, blog.OpDelete)
		return
	}
	if err := s.svc.DeleteExpense(r.Context(), id); err != nil {
		s.fail(w, r, err, blog.OpDelete)
		return
	}
	s.success(w, r, sheets.TableExpenses,
		fmt.Sprintf("Deleted expense %d", id),
		func(ctx context.Context) (string, error) { return s.categoryFragment(ctx, category) })
}

// expenseCategory finds the category of row id so its group can be
// re-rendered once the row is gone.
func (s *Server) expenseCategory(ctx context.Context, id int64) (string, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return "", err
	}
	for _, e := range sum.Expenses {
		if e.ID == id {
			return e.Category, nil
		}
	}
	return "", fmt.Errorf("%s %d: %w", sheets.TableExpenses, id, sheets.ErrNotFound)
}

// frequencyOptions is shared by the table pages; a failure falls back to the
// built-in labels.
func (s *Server) frequencyOptions(ctx context.Context) []core.Frequency {
	freqs, err := s.svc.FrequencyOptions(ctx)
	if err != nil {
		blog.FromContext(ctx).WarnContext(ctx, "Frequency options unavailable", blog.FieldError, err)
		return core.Frequencies()
	}
	return freqs
}
