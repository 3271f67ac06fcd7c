package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/planscope/planscope/internal/domain"
	"github.com/planscope/planscope/internal/platform/textutil"
	"github.com/planscope/planscope/internal/repositories"
)

var errClassifierDirectoryRequired = errors.New("classifier: directory repository is required")

// ErrClassifierUnavailable indicates the service cannot complete the request
// due to missing dependencies.
var ErrClassifierUnavailable = errors.New("classifier: service unavailable")

const runIDPrefix = "run_"

// ClassifierServiceDeps wires the directory access and run history for
// classification. History is optional; without it runs are not recorded.
type ClassifierServiceDeps struct {
	Directory   repositories.DirectoryRepository
	History     repositories.HistoryRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type classifierService struct {
	directory repositories.DirectoryRepository
	history   repositories.HistoryRepository
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewClassifierService constructs a ClassifierService with the provided dependencies.
func NewClassifierService(deps ClassifierServiceDeps) (ClassifierService, error) {
	if deps.Directory == nil {
		return nil, errClassifierDirectoryRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &classifierService{
		directory: deps.Directory,
		history:   deps.History,
		now:       func() time.Time { return clock().UTC() },
		newID:     func() string { return runIDPrefix + strings.ToLower(idGen()) },
		logger:    logger,
	}, nil
}

// ClassifyAssignments cross references the supplied users and subscribed SKUs
// with the target plan ids. An empty target set yields no assignments. With
// IncludeDisabled unset, disabled matching plans are dropped and assignments
// left without matches are omitted entirely.
func (s *classifierService) ClassifyAssignments(ctx context.Context, cmd ClassifyCommand) ([]domain.Assignment, error) {
	if s == nil {
		return nil, ErrClassifierUnavailable
	}

	targets := textutil.NewFoldSet(cmd.TargetPlanIDs...)
	if targets.Len() == 0 {
		return nil, nil
	}

	skuPlans := make(map[string][]domain.SKUServicePlan, len(cmd.SubscribedSKUs))
	skuParts := make(map[string]string, len(cmd.SubscribedSKUs))
	for _, sku := range cmd.SubscribedSKUs {
		key := textutil.Fold(sku.SKUID)
		if key == "" {
			continue
		}
		skuPlans[key] = sku.ServicePlans
		skuParts[key] = sku.SKUPartNumber
	}

	var assignments []domain.Assignment
	for _, user := range cmd.Users {
		for _, license := range user.AssignedLicenses {
			key := textutil.Fold(license.SKUID)
			plans, ok := skuPlans[key]
			if !ok {
				// A SKU missing from the subscription list cannot be expanded
				// into service plans, so it cannot match.
				continue
			}

			disabled := textutil.NewFoldSet(license.DisabledPlanIDs...)

			var matching []domain.MatchingPlan
			enabledCount := 0
			for _, plan := range plans {
				if !targets.Contains(plan.ServicePlanID) {
					continue
				}
				enabled := !disabled.Contains(plan.ServicePlanID)
				if !enabled && !cmd.IncludeDisabled {
					continue
				}
				if enabled {
					enabledCount++
				}
				matching = append(matching, domain.MatchingPlan{
					ServicePlanID:   plan.ServicePlanID,
					ServicePlanName: plan.ServicePlanName,
					Enabled:         enabled,
				})
			}
			if len(matching) == 0 {
				continue
			}
			sort.Slice(matching, func(i, j int) bool {
				return textutil.Fold(matching[i].ServicePlanID) < textutil.Fold(matching[j].ServicePlanID)
			})

			assignments = append(assignments, domain.Assignment{
				UserID:                   user.ID,
				UserDisplayName:          user.DisplayName,
				UserPrincipalName:        user.UserPrincipalName,
				SKUID:                    license.SKUID,
				SKUPartNumber:            skuParts[key],
				MatchingPlans:            matching,
				MatchingPlanCount:        len(matching),
				EnabledMatchingPlanCount: enabledCount,
			})
		}
	}

	return assignments, nil
}

// BuildReport fetches the live tenant data, classifies it, and assembles the
// full run report. The run is recorded in history on a best effort basis.
func (s *classifierService) BuildReport(ctx context.Context, cmd BuildReportCommand) (domain.AssignmentReport, error) {
	if s == nil || s.directory == nil {
		return domain.AssignmentReport{}, ErrClassifierUnavailable
	}

	tenant, err := s.directory.TenantContext(ctx)
	if err != nil {
		return domain.AssignmentReport{}, fmt.Errorf("classifier service: tenant context: %w", err)
	}

	users, err := s.directory.ListLicensedUsers(ctx)
	if err != nil {
		return domain.AssignmentReport{}, fmt.Errorf("classifier service: list licensed users: %w", err)
	}

	skus, err := s.directory.ListSubscribedSKUs(ctx)
	if err != nil {
		return domain.AssignmentReport{}, fmt.Errorf("classifier service: list subscribed skus: %w", err)
	}

	targets := textutil.NewFoldSet(cmd.TargetPlanIDs...)
	assignments, err := s.ClassifyAssignments(ctx, ClassifyCommand{
		Users:           users,
		SubscribedSKUs:  skus,
		TargetPlanIDs:   targets.Values(),
		IncludeDisabled: cmd.IncludeDisabled,
	})
	if err != nil {
		return domain.AssignmentReport{}, err
	}

	matchedUsers := textutil.NewFoldSet()
	uniqueSKUs := textutil.NewFoldSet()
	for _, assignment := range assignments {
		matchedUsers.Add(assignment.UserID)
		uniqueSKUs.Add(assignment.SKUID)
	}

	report := domain.AssignmentReport{
		RunID:           s.newID(),
		GeneratedAt:     s.now(),
		Criteria:        cmd.Criteria,
		TargetPlanIDs:   targets.Values(),
		IncludeDisabled: cmd.IncludeDisabled,
		Summary: domain.ReportSummary{
			UsersProcessed:      len(users),
			UsersMatched:        matchedUsers.Len(),
			MatchingAssignments: len(assignments),
			UniqueSKUs:          uniqueSKUs.Len(),
		},
		Assignments: assignments,
		Tenant:      tenant,
	}

	if s.history != nil {
		if err := s.history.Record(ctx, report); err != nil {
			s.logger(ctx, "classifier.history_record_failed", map[string]any{
				"run_id": report.RunID,
				"error":  err.Error(),
			})
		}
	}

	return report, nil
}
