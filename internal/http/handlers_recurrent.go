package http

import (
	"context"
	"fmt"
	"net/http"

	"budgetdash/internal/core"
	blog "budgetdash/internal/log"
	"budgetdash/internal/sheets"
)

type subscriptionsView struct {
	pageMeta
	Subscriptions []core.Subscription
	Plan          core.Plan
	Periods       []core.Period
	Shares        []core.Share
	Frequencies   []core.Frequency
}

type purchasesView struct {
	pageMeta
	Purchases   []core.PlannedPurchase
	Plan        core.Plan
	Periods     []core.Period
	Frequencies []core.Frequency
}

func (s *Server) subscriptionsView(ctx context.Context) (subscriptionsView, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return subscriptionsView{}, err
	}
	return subscriptionsView{
		pageMeta:      pageMeta{Title: "Subscriptions", Nav: "subscriptions"},
		Subscriptions: sum.Subscriptions,
		Plan:          sum.Budget.Subscriptions,
		Periods:       core.Periods(),
		Shares:        sum.SubscriptionShares,
		Frequencies:   s.frequencyOptions(ctx),
	}, nil
}

func (s *Server) purchasesView(ctx context.Context) (purchasesView, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return purchasesView{}, err
	}
	return purchasesView{
		pageMeta:    pageMeta{Title: "Planned Purchases", Nav: "purchases"},
		Purchases:   sum.Purchases,
		Plan:        sum.Budget.Purchases,
		Periods:     core.Periods(),
		Frequencies: core.Frequencies(),
	}, nil
}

func (s *Server) subscriptionsFragment(ctx context.Context) (string, error) {
	view, err := s.subscriptionsView(ctx)
	if err != nil {
		return "", err
	}
	return s.executeTemplate("subscriptions_section", view)
}

func (s *Server) purchasesFragment(ctx context.Context) (string, error) {
	view, err := s.purchasesView(ctx)
	if err != nil {
		return "", err
	}
	return s.executeTemplate("purchases_section", view)
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	view, err := s.subscriptionsView(r.Context())
	if err != nil {
		s.fail(w, r, err, blog.OpRead)
		return
	}
	s.render(w, r, "subscriptions_page", view)
}

func (s *Server) handleAddSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.AddSubscription(r.Context())
	if err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}
	s.success(w, r, sheets.TableSubscriptions, fmt.Sprintf("Added subscription %d", sub.ID), s.subscriptionsFragment)
}

func (s *Server) handleSaveSubscription(w http.ResponseWriter, r *http.Request) {
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
	sub, err := parseSubscription(f, id)
	if err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	if err := s.svc.SaveSubscription(r.Context(), sub); err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	s.success(w, r, sheets.TableSubscriptions, fmt.Sprintf("Subscription %d saved!", id), s.subscriptionsFragment)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, blog.OpDelete)
		return
	}
	if err := s.svc.DeleteSubscription(r.Context(), id); err != nil {
		s.fail(w, r, err, blog.OpDelete)
		return
	}
	s.success(w, r, sheets.TableSubscriptions, fmt.Sprintf("Deleted subscription %d", id), s.subscriptionsFragment)
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	view, err := s.purchasesView(r.Context())
	if err != nil {
		s.fail(w, r, err, blog.OpRead)
		return
	}
	s.render(w, r, "purchases_page", view)
}

func (s *Server) handleAddPurchase(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.AddPurchase(r.Context())
	if err != nil {
		s.fail(w, r, err, blog.OpCreate)
		return
	}
	s.success(w, r, sheets.TablePurchases, fmt.Sprintf("Added planned purchase %d", p.ID), s.purchasesFragment)
}

func (s *Server) handleSavePurchase(w http.ResponseWriter, r *http.Request) {
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
	p, err := parsePurchase(f, id)
	if err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	if err := s.svc.SavePurchase(r.Context(), p); err != nil {
		s.fail(w, r, err, blog.OpUpdate)
		return
	}
	s.success(w, r, sheets.TablePurchases, fmt.Sprintf("Planned purchase %d saved!", id), s.purchasesFragment)
}

func (s *Server) handleDeletePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, blog.OpDelete)
		return
	}
	if err := s.svc.DeletePurchase(r.Context(), id); err != nil {
		s.fail(w, r, err, blog.OpDelete)
		return
	}
	s.success(w, r, sheets.TablePurchases, fmt.Sprintf("Deleted planned purchase %d", id), s.purchasesFragment)
}
