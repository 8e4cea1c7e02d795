package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"budgetdash/internal/core"
	blog "budgetdash/internal/log"
	"budgetdash/internal/services"
	"budgetdash/internal/sheets"
)

// incomeCard summarizes one selected source.
type incomeCard struct {
	Slot   services.Slot
	Source core.IncomeSource
	Income core.Income
}

type incomeView struct {
	pageMeta
	Sources     []core.IncomeSource
	Frequencies []core.Frequency
	Slots       []services.Slot
	Titles      []string
	Cards       []incomeCard
	Selected    core.Income
}

func (s *Server) incomeView(ctx context.Context) (incomeView, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return incomeView{}, err
	}
	s.seedSelection(sum.Income)

	view := incomeView{
		pageMeta:    pageMeta{Title: "Income", Nav: "income"},
		Sources:     sum.Income,
		Frequencies: core.Frequencies(),
		Slots:       s.selection.Slots(),
	}
	byTitle := make(map[string]core.IncomeSource, len(sum.Income))
	for _, src := range sum.Income {
		view.Titles = append(view.Titles, src.JobTitle)
		if _, ok := byTitle[src.JobTitle]; !ok {
			byTitle[src.JobTitle] = src
		}
	}
	for _, slot := range view.Slots {
		src, ok := byTitle[slot.JobTitle]
		if !ok {
			continue
		}
		view.Cards = append(view.Cards, incomeCard{
			Slot:   slot,
			Source: src,
			Income: core.Summarize([]core.IncomeSource{src}),
		})
	}
	view.Selected = core.Summarize(s.selection.Selected(sum.Income))
	return view, nil
}

// seedSelection points an untouched selection at the first income source.
func (s *Server) seedSelection(sources []core.IncomeSource) {
	if len(sources) == 0 {
		return
	}
	slots := s.selection.Slots()
	if len(slots) == 1 && slots[0].JobTitle == "" {
		_ = s.selection.Set(slots[0].ID, sources[0].JobTitle)
	}
}

func (s *Server) incomeFragment(ctx context.Context) (string, error) {
	view, err := s.incomeView(ctx)
	if err != nil {
		return "", err
	}
	return s.executeTemplate("income_section", view)
}

func (s *Server) firstJobTitle(ctx context.Context) string {
	sum, err := s.summary(ctx)
	if err != nil || len(sum.Income) == 0 {
		return ""
	}
	return sum.Income[0].JobTitle
}

func (s *Server) handleIncome(w http.ResponseWriter, r *http.Request) {
	view, err := s.incomeView(r.Context())
	if err != nil {
		s.fail(w, r, err, blog.OpRead)
		return
	}
	s.render(w, r, "income_page", view)
}

func (s *Server) handleAddIncome(w http.ResponseWriter, r *http.Request) {
	in, err := s.svc.AddIncome(r.Context())
	if err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}
	s.success(w, r, sheets.TableIncome, fmt.Sprintf("Added income source %d", in.ID), s.incomeFragment)
}

func (s *Server) handleSaveIncome(w http.ResponseWriter, r *http.Request) {
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
	in, err := parseIncome(f, id)
	if err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	if err := s.svc.SaveIncome(r.Context(), in); err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	s.success(w, r, sheets.TableIncome, fmt.Sprintf("Income source %d saved!", id), s.incomeFragment)
}

// handleIncomeAction serves POST /income/{id}/{action}; delete is the only
// action.
func (s *Server) handleIncomeAction(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("action") != "delete" {
		NotFoundError("Unknown action").Write(w)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, blog.OpDelete)
		return
	}
	if err := s.svc.DeleteIncome(r.Context(), id); err != nil {
		s.fail(w, r, err, blog.OpDelete)
		return
	}
	s.success(w, r, sheets.TableIncome, fmt.Sprintf("Deleted income source %d", id), s.incomeFragment)
}

// Selection handlers change view state only, so they re-render without a
// table change trigger.
func (s *Server) selectionResponse(w http.ResponseWriter, r *http.Request, message string) {
	html, err := s.incomeFragment(r.Context())
	if err != nil {
		s.fail(w, r, err, blog.OpRender)
		return
	}
	NewHTMXResponse().
		TriggerNotification(NotificationInfo, message, 2000).
		BodyHTML(html).
		Write(w)
}

func slotID(r *http.Request) (int, error) {
	raw := r.PathValue("slot")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: slot %q", ErrBadRequest, raw)
	}
	return id, nil
}

func (s *Server) handleAddSlot(w http.ResponseWriter, r *http.Request) {
	f, err := newFormReader(r, s.detector)
	if err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}
	title := f.String("job_title")
	if err := f.Err(); err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}
	if title == "" {
		title = s.firstJobTitle(r.Context())
	}
	id := s.selection.Add(title)
	s.selectionResponse(w, r, fmt.Sprintf("Added income slot %d", id))
}

func (s *Server) handleSetSlot(w http.ResponseWriter, r *http.Request) {
	id, err := slotID(r)
	if err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	f, err := newFormReader(r, s.detector)
	if err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	title := f.String("job_title")
	if err := f.Err(); err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	if err := s.selection.Set(id, title); err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	s.selectionResponse(w, r, fmt.Sprintf("Income slot %d set to %s", id, title))
}

func (s *Server) handleRemoveSlot(w http.ResponseWriter, r *http.Request) {
	id, err := slotID(r)
	if err != nil {
		s.fail(w, r, err, blog.OpDelete)
		return
	}
	s.selection.Remove(id)
	s.selectionResponse(w, r, fmt.Sprintf("Removed income slot %d", id))
}

func (s *Server) handleResetSelection(w http.ResponseWriter, r *http.Request) {
	s.selection.Reset(s.firstJobTitle(r.Context()))
	s.selectionResponse(w, r, "Income selection reset")
}
