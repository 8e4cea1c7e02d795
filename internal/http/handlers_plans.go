package http

import (
	"fmt"
	"net/http"

	blog "budgetdash/internal/log"
)

const tablePlans = "plans"

func (s *Server) handleSavePlan(w http.ResponseWriter, r *http.Request) {
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
	saved, err := s.svc.SavePlan(r.Context(), name)
	if err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}
	s.success(w, r, tablePlans, fmt.Sprintf("Saved plan %s", saved), s.plansFragment)
}

// handleResetPlan restores every table, so the whole page reloads.
func (s *Server) handleResetPlan(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.svc.ResetPlan(r.Context(), name); err != nil {
		s.fail(w, r, err, blog.OpRestore)
		return
	}
	s.countMutation()
	NewHTMXResponse().
		Refresh().
		TriggerSuccessNotification(fmt.Sprintf("Restored plan %s", name)).
		Write(w)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.svc.DeletePlan(r.Context(), name); err != nil {
		s.fail(w, r, err, blog.OpDelete)
		return
	}
	s.success(w, r, tablePlans, fmt.Sprintf("Deleted plan %s", name), s.plansFragment)
}
