package campaign

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/powerdialer/internal/dialqueue"
	"github.com/acme/powerdialer/internal/domain"
	"github.com/acme/powerdialer/internal/events"
	"github.com/acme/powerdialer/internal/report"
	"github.com/acme/powerdialer/internal/repository"
	apperrors "github.com/acme/powerdialer/pkg/errors"
	"github.com/acme/powerdialer/pkg/logger"
)

// Dialer drives the dialing loop for started campaigns. Launch must be
// idempotent: launching an already running campaign is a no-op.
type Dialer interface {
	Launch(ctx context.Context, st *State) error
	Pause(campaignID uuid.UUID)
	Resume(campaignID uuid.UUID)
	Stop(campaignID uuid.UUID)
}

// Manager orchestrates the campaign lifecycle. All transitions happen
// against the in-memory store first and are written through to the
// repository; a write-through failure is logged, never fatal, except at
// creation time.
type Manager struct {
	store        *Store
	campaigns    repository.CampaignRepository
	contacts     repository.ContactRepository
	builder      *dialqueue.Builder
	reports      *report.Generator
	sink         events.Sink
	dialer       Dialer
	defaultRetry domain.RetryPolicy
	log          *logger.Logger
	now          func() time.Time
}

// NewManager constructs a campaign manager.
func NewManager(
	store *Store,
	campaigns repository.CampaignRepository,
	contacts repository.ContactRepository,
	builder *dialqueue.Builder,
	reports *report.Generator,
	sink events.Sink,
	dialer Dialer,
	defaultRetry domain.RetryPolicy,
	log *logger.Logger,
) *Manager {
	return &Manager{
		store:        store,
		campaigns:    campaigns,
		contacts:     contacts,
		builder:      builder,
		reports:      reports,
		sink:         sink,
		dialer:       dialer,
		defaultRetry: defaultRetry,
		log:          log,
		now:          time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// CreateInput captures campaign creation parameters.
type CreateInput struct {
	Name        string
	AgentID     string
	Mode        domain.DialMode
	Script      string
	Contacts    []domain.Contact
	Filter      domain.ContactFilter
	Schedule    domain.ScheduleWindow
	Goals       domain.Goals
	RetryPolicy domain.RetryPolicy
}

// Create provisions a new campaign with a frozen contact snapshot.
func (m *Manager) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: campaign name is required", apperrors.ErrValidation)
	}
	if len(input.Contacts) == 0 {
		return nil, fmt.Errorf("%w: campaign needs at least one contact", apperrors.ErrValidation)
	}
	if !domain.ValidDialMode(input.Mode) {
		return nil, fmt.Errorf("%w: unknown dial mode %q", apperrors.ErrValidation, input.Mode)
	}

	contacts := make([]domain.Contact, len(input.Contacts))
	copy(contacts, input.Contacts)
	for i := range contacts {
		if contacts[i].ID == uuid.Nil {
			contacts[i].ID = uuid.New()
		}
	}

	now := m.now().UTC()
	c := &domain.Campaign{
		ID:          uuid.New(),
		Name:        input.Name,
		AgentID:     input.AgentID,
		Mode:        input.Mode,
		Script:      input.Script,
		Contacts:    contacts,
		Filter:      input.Filter,
		Schedule:    input.Schedule,
		Goals:       input.Goals,
		RetryPolicy: normalizeRetry(input.RetryPolicy, m.defaultRetry),
		Status:      domain.CampaignStatusCreated,
		CreatedAt:   now,
	}

	if err := m.campaigns.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("campaign manager: save campaign: %w", err)
	}
	if err := m.contacts.BulkInsert(ctx, c.ID, contacts); err != nil {
		return nil, fmt.Errorf("campaign manager: save contacts: %w", err)
	}

	m.store.Put(NewState(c))
	m.log.Info("campaign created",
		zap.String("campaign_id", c.ID.String()),
		zap.String("mode", string(c.Mode)),
		zap.Int("contacts", len(contacts)),
	)
	return c, nil
}

// Start moves a created campaign to active and launches its dialing loop.
// Starting an active campaign is a no-op; starting a paused campaign resumes
// it; starting a completed campaign is a conflict.
func (m *Manager) Start(ctx context.Context, id uuid.UUID) error {
	st, ok := m.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: campaign %s", apperrors.ErrNotFound, id)
	}

	var launch bool
	var conflict error
	st.mu.Lock()
	switch st.campaign.Status {
	case domain.CampaignStatusCreated:
		now := m.now().UTC()
		st.Queue = m.builder.Build(st.campaign, now)
		st.campaign.Status = domain.CampaignStatusActive
		st.campaign.StartedAt = &now
		launch = true
	case domain.CampaignStatusActive:
		launch = true
	case domain.CampaignStatusPaused:
		st.mu.Unlock()
		return m.Resume(ctx, id)
	case domain.CampaignStatusCompleted:
		conflict = fmt.Errorf("%w: campaign %s already completed", apperrors.ErrConflict, id)
	}
	st.mu.Unlock()

	if conflict != nil {
		return conflict
	}
	if launch {
		if err := m.dialer.Launch(ctx, st); err != nil {
			return fmt.Errorf("campaign manager: launch dialer: %w", err)
		}
	}
	m.persist(ctx, st)
	return nil
}

// Pause suspends dialing. In-flight calls finish; no new calls are placed.
// Pausing a paused campaign is a no-op.
func (m *Manager) Pause(ctx context.Context, id uuid.UUID) error {
	st, ok := m.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: campaign %s", apperrors.ErrNotFound, id)
	}

	var conflict error
	st.mu.Lock()
	switch st.campaign.Status {
	case domain.CampaignStatusActive:
		now := m.now().UTC()
		st.campaign.Status = domain.CampaignStatusPaused
		st.campaign.PausedAt = &now
	case domain.CampaignStatusPaused:
		// already paused
	default:
		conflict = fmt.Errorf("%w: cannot pause campaign in status %s", apperrors.ErrConflict, st.campaign.Status)
	}
	st.mu.Unlock()

	if conflict != nil {
		return conflict
	}
	m.dialer.Pause(id)
	m.persist(ctx, st)
	m.log.Info("campaign paused", zap.String("campaign_id", id.String()))
	return nil
}

// Resume restarts dialing for a paused campaign.
func (m *Manager) Resume(ctx context.Context, id uuid.UUID) error {
	st, ok := m.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: campaign %s", apperrors.ErrNotFound, id)
	}

	var conflict error
	st.mu.Lock()
	switch st.campaign.Status {
	case domain.CampaignStatusPaused:
		st.campaign.Status = domain.CampaignStatusActive
		st.campaign.PausedAt = nil
		if st.Queue == nil {
			st.Queue = m.builder.Build(st.campaign, m.now().UTC())
		}
	case domain.CampaignStatusActive:
		// already running
	default:
		conflict = fmt.Errorf("%w: cannot resume campaign in status %s", apperrors.ErrConflict, st.campaign.Status)
	}
	st.mu.Unlock()

	if conflict != nil {
		return conflict
	}
	if err := m.dialer.Launch(ctx, st); err != nil {
		return fmt.Errorf("campaign manager: launch dialer: %w", err)
	}
	m.dialer.Resume(id)
	m.persist(ctx, st)
	m.log.Info("campaign resumed", zap.String("campaign_id", id.String()))
	return nil
}

// Complete finishes a campaign, freezes its statistics and generates the
// final report. Completing a paused or created campaign requires force.
func (m *Manager) Complete(ctx context.Context, id uuid.UUID, force bool) (*domain.CampaignReport, error) {
	st, ok := m.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: campaign %s", apperrors.ErrNotFound, id)
	}

	st.mu.Lock()
	switch st.campaign.Status {
	case domain.CampaignStatusActive:
	case domain.CampaignStatusPaused, domain.CampaignStatusCreated:
		if !force {
			status := st.campaign.Status
			st.mu.Unlock()
			return nil, fmt.Errorf("%w: campaign is %s, complete requires force", apperrors.ErrConflict, status)
		}
	case domain.CampaignStatusCompleted:
		rep := st.Report
		st.mu.Unlock()
		return rep, nil
	}
	now := m.now().UTC()
	st.campaign.Status = domain.CampaignStatusCompleted
	st.campaign.CompletedAt = &now
	rep := m.reports.Generate(st.campaign)
	st.Report = rep
	st.mu.Unlock()

	m.dialer.Stop(id)
	m.persist(ctx, st)
	m.publishReport(ctx, id, rep)
	m.log.Info("campaign completed",
		zap.String("campaign_id", id.String()),
		zap.Int("total_dialed", rep.TotalDialed),
		zap.Int("connected", rep.Connected),
	)
	return rep, nil
}

// AutoComplete finishes a campaign whose queue ran dry. Invoked by the
// dialing loop; the runner has already stopped itself.
func (m *Manager) AutoComplete(ctx context.Context, id uuid.UUID) {
	st, ok := m.store.Get(id)
	if !ok {
		return
	}

	st.mu.Lock()
	if st.campaign.Status == domain.CampaignStatusCompleted {
		st.mu.Unlock()
		return
	}
	now := m.now().UTC()
	st.campaign.Status = domain.CampaignStatusCompleted
	st.campaign.CompletedAt = &now
	rep := m.reports.Generate(st.campaign)
	st.Report = rep
	st.mu.Unlock()

	m.persist(ctx, st)
	m.publishReport(ctx, id, rep)
	m.log.Info("campaign exhausted, auto-completed", zap.String("campaign_id", id.String()))
}

// AssignAgent points the campaign at a different agent device.
func (m *Manager) AssignAgent(ctx context.Context, id uuid.UUID, agentID string) error {
	st, ok := m.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: campaign %s", apperrors.ErrNotFound, id)
	}
	st.Update(func(c *domain.Campaign) { c.AgentID = agentID })
	m.persist(ctx, st)
	return nil
}

// QueueSize reports how many items remain in the campaign's queue. Zero for
// campaigns that have not started.
func (m *Manager) QueueSize(id uuid.UUID) (int, error) {
	st, ok := m.store.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: campaign %s", apperrors.ErrNotFound, id)
	}
	st.mu.Lock()
	q := st.Queue
	st.mu.Unlock()
	if q == nil {
		return 0, nil
	}
	return q.Size(), nil
}

// Get returns the current campaign document.
func (m *Manager) Get(id uuid.UUID) (domain.Campaign, error) {
	st, ok := m.store.Get(id)
	if !ok {
		return domain.Campaign{}, fmt.Errorf("%w: campaign %s", apperrors.ErrNotFound, id)
	}
	return st.Snapshot(), nil
}

// Report returns the final report of a completed campaign.
func (m *Manager) Report(id uuid.UUID) (*domain.CampaignReport, error) {
	st, ok := m.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: campaign %s", apperrors.ErrNotFound, id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.Report == nil {
		return nil, fmt.Errorf("%w: campaign %s has no report yet", apperrors.ErrNotFound, id)
	}
	return st.Report, nil
}

// List returns all known campaigns, newest first.
func (m *Manager) List() []domain.Campaign {
	states := m.store.List()
	out := make([]domain.Campaign, 0, len(states))
	for _, st := range states {
		out = append(out, st.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ReloadUnfinished loads active and paused campaigns from the repository
// after a restart. Reloaded campaigns come back paused with a fresh queue
// built from the persisted contact snapshot; an operator resumes them.
func (m *Manager) ReloadUnfinished(ctx context.Context) error {
	campaigns, err := m.campaigns.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("campaign manager: list unfinished: %w", err)
	}

	for _, c := range campaigns {
		contacts, err := m.contacts.ListByCampaign(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("campaign manager: load contacts for %s: %w", c.ID, err)
		}
		c.Contacts = contacts
		if c.Status == domain.CampaignStatusActive {
			now := m.now().UTC()
			c.Status = domain.CampaignStatusPaused
			c.PausedAt = &now
		}

		st := NewState(c)
		st.Queue = m.builder.Build(c, m.now().UTC())
		m.store.Put(st)
		m.persist(ctx, st)
		m.log.Info("campaign reloaded",
			zap.String("campaign_id", c.ID.String()),
			zap.String("status", string(c.Status)),
		)
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, st *State) {
	snapshot := st.Snapshot()
	if err := m.campaigns.Save(ctx, &snapshot); err != nil {
		m.log.Warn("campaign write-through failed",
			zap.String("campaign_id", snapshot.ID.String()),
			zap.Error(err),
		)
	}
}

func (m *Manager) publishReport(ctx context.Context, id uuid.UUID, rep *domain.CampaignReport) {
	ev := events.ReportEvent{CampaignID: id, Report: rep, OccurredAt: m.now().UTC()}
	if err := m.sink.PublishReport(ctx, ev); err != nil {
		m.log.Warn("report publish failed", zap.String("campaign_id", id.String()), zap.Error(err))
	}
}

func normalizeRetry(p, def domain.RetryPolicy) domain.RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.MaxRetries == 0 && p.RetryDelay == 0 {
		return def
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = def.RetryDelay
	}
	return p
}
