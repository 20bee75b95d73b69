package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// QueryService answers read-only questions about imported data.
type QueryService struct {
	q Querier
}

// NewQueryService returns a QueryService reading through q.
func NewQueryService(q Querier) *QueryService {
	return &QueryService{q: q}
}

// UserPolicies is one search hit: a user with every policy they own.
type UserPolicies struct {
	User     UserSummary  `json:"user"`
	Policies []PolicyView `json:"policies"`
}

// SearchPoliciesByFirstName finds users whose first name contains name,
// ignoring case, together with their policies.
func (s *QueryService) SearchPoliciesByFirstName(ctx context.Context, name string) ([]UserPolicies, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("username is required: %w", ErrInvalidInput)
	}

	users, err := s.q.SearchUsers(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no users found matching %q: %w", name, ErrNotFound)
	}

	ids := make([]ID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	policies, err := s.q.Policies(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}

	byUser := make(map[ID][]PolicyView, len(users))
	for _, p := range policies {
		byUser[p.User.ID] = append(byUser[p.User.ID], p)
	}

	out := make([]UserPolicies, len(users))
	for i, u := range users {
		out[i] = UserPolicies{User: u, Policies: byUser[u.ID]}
		if out[i].Policies == nil {
			out[i].Policies = []PolicyView{}
		}
	}
	return out, nil
}

// PolicySummary is a policy as listed in a per-user aggregate.
type PolicySummary struct {
	PolicyNumber string    `json:"policyNumber"`
	StartDate    time.Time `json:"policyStartDate"`
	EndDate      time.Time `json:"policyEndDate"`
	Category     string    `json:"category"`
	Company      string    `json:"company"`
}

// UserAggregate lists one user's policies.
type UserAggregate struct {
	UserID        ID              `json:"userId"`
	FirstName     string          `json:"firstName"`
	Email         string          `json:"email"`
	PhoneNumber   string          `json:"phoneNumber"`
	TotalPolicies int             `json:"totalPolicies"`
	Policies      []PolicySummary `json:"policies"`
}

// AggregatePoliciesByUser groups every policy under its owner.
func (s *QueryService) AggregatePoliciesByUser(ctx context.Context) ([]UserAggregate, error) {
	policies, err := s.q.Policies(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}

	out := []UserAggregate{}
	index := make(map[ID]int)
	for _, p := range policies {
		i, ok := index[p.User.ID]
		if !ok {
			i = len(out)
			index[p.User.ID] = i
			out = append(out, UserAggregate{
				UserID:      p.User.ID,
				FirstName:   p.User.FirstName,
				Email:       p.User.Email,
				PhoneNumber: p.User.PhoneNumber,
			})
		}
		out[i].Policies = append(out[i].Policies, PolicySummary{
			PolicyNumber: p.PolicyNumber,
			StartDate:    p.StartDate,
			EndDate:      p.EndDate,
			Category:     p.Category,
			Company:      p.Company,
		})
		out[i].TotalPolicies++
	}
	return out, nil
}

// StoreStatus is a quick health view of the data set.
type StoreStatus struct {
	Counts       map[string]int64 `json:"counts"`
	SampleUser   *UserSummary     `json:"sampleUser"`
	SamplePolicy *PolicyView      `json:"samplePolicy"`
}

// Status counts every entity kind, keyed by table name, and returns one
// sample user and policy when any exist.
func (s *QueryService) Status(ctx context.Context) (StoreStatus, error) {
	st := StoreStatus{Counts: make(map[string]int64, len(Kinds))}
	for _, def := range All() {
		n, err := s.q.CountDocuments(ctx, def.Info.Kind)
		if err != nil {
			return StoreStatus{}, fmt.Errorf("count %s: %w", def.Info.Kind, err)
		}
		st.Counts[def.Info.Table] = n
	}

	user, err := s.q.SampleUser(ctx)
	switch {
	case err == nil:
		st.SampleUser = &user
	case !errors.Is(err, ErrNotFound):
		return StoreStatus{}, fmt.Errorf("sample user: %w", err)
	}

	policy, err := s.q.SamplePolicy(ctx)
	switch {
	case err == nil:
		st.SamplePolicy = &policy
	case !errors.Is(err, ErrNotFound):
		return StoreStatus{}, fmt.Errorf("sample policy: %w", err)
	}
	return st, nil
}
