package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communityfood/discovery-engine/internal/confidence"
	"github.com/communityfood/discovery-engine/internal/cooldown"
	"github.com/communityfood/discovery-engine/internal/dedupe"
	"github.com/communityfood/discovery-engine/internal/model"
)

// Collector runs one area search. *Orchestrator implements it.
type Collector interface {
	Provider() string
	Collect(ctx context.Context, area model.Area, progress ProgressFunc) (*Outcome, error)
}

// DuplicateChecker classifies a result against stored inventory.
// *dedupe.Guard implements it.
type DuplicateChecker interface {
	Check(ctx context.Context, r model.DiscoveryResult) (dedupe.Verdict, error)
}

// ResourceWriter persists scored resources. It reports whether the row
// was newly inserted.
type ResourceWriter interface {
	UpsertResource(ctx context.Context, r *model.Resource) (bool, error)
}

// RunRequest asks for one discovery run.
type RunRequest struct {
	Area     model.Area
	UserID   *string
	Progress ProgressFunc
}

// RunReport summarizes a run for the caller.
type RunReport struct {
	EventID      string                `json:"event_id,omitempty"`
	LocationHash string                `json:"location_hash"`
	Status       model.EventStatus     `json:"status,omitempty"`
	Blocked      bool                  `json:"blocked"`
	Reason       string                `json:"reason,omitempty"`
	Eligibility  *cooldown.Eligibility `json:"eligibility,omitempty"`

	Found               int `json:"found"`
	Inserted            int `json:"inserted"`
	Updated             int `json:"updated"`
	Duplicates          int `json:"duplicates"`
	PotentialDuplicates int `json:"potential_duplicates"`
	AutoApproved        int `json:"auto_approved"`
	Skipped             int `json:"skipped"`
	ExtractionFailures  int `json:"extraction_failures"`
	GeocodingFailures   int `json:"geocoding_failures"`

	Resources []model.Resource `json:"resources,omitempty"`
	Duration  time.Duration    `json:"duration_ns"`
}

// Summary is the one-line, user-facing outcome.
func (r *RunReport) Summary() string {
	if r.Blocked {
		return fmt.Sprintf("%s: not searched: %s", r.LocationHash, r.Reason)
	}
	return fmt.Sprintf("%s: %d resources found, %d skipped due to data-quality issues (%d new, %d updated, %d duplicates, %d pending review)",
		r.LocationHash, r.Found, r.Skipped, r.Inserted, r.Updated, r.Duplicates, r.PotentialDuplicates)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithFreshnessMax selects the confidence freshness variant.
func WithFreshnessMax(points int) RunnerOption {
	return func(r *Runner) { r.freshnessMax = points }
}

// WithRunnerClock overrides the time source.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// Runner drives a full discovery run: cooldown gate, search, duplicate
// check, scoring and persistence.
type Runner struct {
	cooldown     *cooldown.Guard
	collector    Collector
	duplicates   DuplicateChecker
	writer       ResourceWriter
	freshnessMax int
	now          func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(gate *cooldown.Guard, collector Collector, duplicates DuplicateChecker, writer ResourceWriter, opts ...RunnerOption) *Runner {
	r := &Runner{
		cooldown:     gate,
		collector:    collector,
		duplicates:   duplicates,
		writer:       writer,
		freshnessMax: confidence.DefaultFreshness,
		now:          time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes one discovery run. A blocked area is reported, not an error.
// When search fails the event is finalized as failed and the error returned.
func (rn *Runner) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	start := rn.now()
	hash := req.Area.LocationHash()
	report := &RunReport{LocationHash: hash}
	log := zap.L().With(zap.String("phase", "run"), zap.String("location_hash", hash))

	elig, err := rn.cooldown.CheckEligibility(ctx, hash)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: check eligibility")
	}
	if !elig.ShouldSearch {
		report.Blocked = true
		report.Reason = elig.Reason
		report.Eligibility = &elig
		log.Info("discovery run skipped", zap.String("reason", elig.Reason))
		return report, nil
	}

	eventID, err := rn.cooldown.LogStart(ctx, hash, req.UserID, rn.collector.Provider(), map[string]any{
		"city":  req.Area.City,
		"state": req.Area.State,
	})
	if err != nil {
		if errors.Is(err, cooldown.ErrRunInProgress) {
			report.Blocked = true
			report.Reason = fmt.Sprintf("%s has a discovery run in progress", hash)
			return report, nil
		}
		return nil, eris.Wrap(err, "discovery: log start")
	}
	report.EventID = eventID
	log = log.With(zap.String("event_id", eventID))

	out, err := rn.collector.Collect(ctx, req.Area, req.Progress)
	if err != nil {
		rn.finalize(ctx, report, model.EventFailed, 0)
		return report, err
	}
	report.Found = len(out.Results)
	report.ExtractionFailures = out.ExtractionFailures
	report.GeocodingFailures = out.GeocodingFailures
	report.Skipped = out.Skipped()

	for _, res := range out.Results {
		if err := rn.persist(ctx, report, res); err != nil {
			rn.finalize(ctx, report, model.EventFailed, report.Inserted+report.Updated)
			return report, err
		}
	}

	status := model.EventCompleted
	if report.Found == 0 {
		status = model.EventNoResults
	}
	rn.finalize(ctx, report, status, report.Found)
	report.Duration = rn.now().Sub(start)

	log.Info(report.Summary(), zap.Int("auto_approved", report.AutoApproved))
	return report, nil
}

func (rn *Runner) persist(ctx context.Context, report *RunReport, res model.DiscoveryResult) error {
	verdict, err := rn.duplicates.Check(ctx, res)
	if err != nil {
		return eris.Wrapf(err, "discovery: duplicate check for %s", res.Name)
	}
	if verdict.IsDuplicate {
		report.Duplicates++
		zap.L().Debug("duplicate skipped",
			zap.String("name", res.Name),
			zap.String("reason", verdict.Reason),
		)
		return nil
	}

	score, factors := confidence.Score(res, confidence.Options{
		ConfirmingSources: res.ConfirmingSources(),
		FreshnessMax:      rn.freshnessMax,
	})
	approved := confidence.ShouldAutoApprove(score, res.SourceURL, verdict.PotentialDuplicate)

	row := &model.Resource{
		Fingerprint:  dedupe.MergeKey(res),
		Result:       res,
		Confidence:   score,
		Factors:      factors,
		Status:       model.ResourcePendingReview,
		NeedsReview:  !approved,
		DiscoveredBy: rn.collector.Provider(),
	}
	if approved {
		row.Status = model.ResourcePublished
		report.AutoApproved++
	}
	if verdict.PotentialDuplicate {
		report.PotentialDuplicates++
	}

	inserted, err := rn.writer.UpsertResource(ctx, row)
	if err != nil {
		return eris.Wrapf(err, "discovery: persist %s", res.Name)
	}
	if inserted {
		report.Inserted++
	} else {
		report.Updated++
	}
	report.Resources = append(report.Resources, *row)
	return nil
}

// finalize closes the event even when ctx is already cancelled.
func (rn *Runner) finalize(ctx context.Context, report *RunReport, status model.EventStatus, found int) {
	report.Status = status
	if err := rn.cooldown.LogComplete(context.WithoutCancel(ctx), report.EventID, status, found); err != nil {
		zap.L().Error("finalize discovery event",
			zap.String("event_id", report.EventID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}
