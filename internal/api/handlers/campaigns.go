package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/campaign"
	"github.com/acme/powerdialer/internal/domain"
	apperrors "github.com/acme/powerdialer/pkg/errors"
)

type createCampaignRequest struct {
	Name        string              `json:"name"`
	AgentID     string              `json:"agent_id"`
	Mode        string              `json:"mode"`
	Script      string              `json:"script"`
	Contacts    []contactRequest    `json:"contacts"`
	Filter      *filterRequest      `json:"filter"`
	Schedule    *scheduleRequest    `json:"schedule"`
	Goals       *goalsRequest       `json:"goals"`
	RetryPolicy *retryPolicyRequest `json:"retry_policy"`
}

type contactRequest struct {
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	Priority        string     `json:"priority"`
	LeadScore       int        `json:"lead_score"`
	DoNotCall       bool       `json:"do_not_call"`
	LastContactedAt *time.Time `json:"last_contacted_at"`
}

type filterRequest struct {
	Priority   string `json:"priority"`
	MaxRecency string `json:"max_recency"`
}

type scheduleRequest struct {
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	TimeZone  string `json:"time_zone"`
	Weekdays  []int  `json:"weekdays"`
}

type goalsRequest struct {
	TargetCalls        int `json:"target_calls"`
	TargetConnects     int `json:"target_connects"`
	TargetAppointments int `json:"target_appointments"`
}

type retryPolicyRequest struct {
	MaxRetries int    `json:"max_retries"`
	RetryDelay string `json:"retry_delay"`
}

type statisticsResponse struct {
	TotalDialed     int     `json:"total_dialed"`
	Connected       int     `json:"connected"`
	Voicemails      int     `json:"voicemails"`
	Callbacks       int     `json:"callbacks"`
	Appointments    int     `json:"appointments"`
	AbandonedCalls  int     `json:"abandoned_calls"`
	ComplianceHolds int     `json:"compliance_holds"`
	AvgCallDuration string  `json:"avg_call_duration"`
	ConversionRate  float64 `json:"conversion_rate"`
}

type startCampaignRequest struct {
	AgentDevice string `json:"agent_device"`
}

type campaignStatusResponse struct {
	ID         uuid.UUID             `json:"id"`
	Status     domain.CampaignStatus `json:"status"`
	Statistics statisticsResponse    `json:"statistics"`
	Goals      goalsRequest          `json:"goals"`
	QueueSize  int                   `json:"queue_size"`
}

type campaignResponse struct {
	ID          uuid.UUID             `json:"id"`
	Name        string                `json:"name"`
	AgentID     string                `json:"agent_id"`
	Mode        domain.DialMode       `json:"mode"`
	Status      domain.CampaignStatus `json:"status"`
	Contacts    int                   `json:"contacts"`
	Statistics  statisticsResponse    `json:"statistics"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	PausedAt    *time.Time            `json:"paused_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

type reportResponse struct {
	CampaignID      uuid.UUID `json:"campaign_id"`
	CampaignName    string    `json:"campaign_name"`
	Duration        string    `json:"duration"`
	TotalDialed     int       `json:"total_dialed"`
	Connected       int       `json:"connected"`
	ConnectRate     float64   `json:"connect_rate"`
	AvgCallDuration string    `json:"avg_call_duration"`
	Voicemails      int       `json:"voicemails"`
	Callbacks       int       `json:"callbacks"`
	Appointments    int       `json:"appointments"`
	AbandonedCalls  int       `json:"abandoned_calls"`
	ComplianceHolds int       `json:"compliance_holds"`
	EstimatedCost   float64   `json:"estimated_cost"`
	Recommendations []string  `json:"recommendations"`
	GeneratedAt     time.Time `json:"generated_at"`
}

type attemptResponse struct {
	ID             uuid.UUID `json:"id"`
	QueueItemID    uuid.UUID `json:"queue_item_id"`
	Phone          string    `json:"phone"`
	Attempt        int       `json:"attempt"`
	Outcome        string    `json:"outcome"`
	DurationMs     int64     `json:"duration_ms"`
	Abandoned      bool      `json:"abandoned"`
	ComplianceHold bool      `json:"compliance_hold"`
	Error          string    `json:"error,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (h *HandlerSet) createCampaign(ctx *fiber.Ctx) error {
	var req createCampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	input, err := toCreateInput(req)
	if err != nil {
		return translateError(err)
	}

	created, err := h.manager.Create(ctx.Context(), input)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toCampaignResponse(*created))
}

func (h *HandlerSet) listCampaigns(ctx *fiber.Ctx) error {
	campaigns := h.manager.List()
	resp := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		resp = append(resp, toCampaignResponse(c))
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"campaigns": resp})
}

func (h *HandlerSet) getCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	c, err := h.manager.Get(id)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(c))
}

func (h *HandlerSet) campaignStatus(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	c, err := h.manager.Get(id)
	if err != nil {
		return translateError(err)
	}
	size, err := h.manager.QueueSize(id)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(campaignStatusResponse{
		ID:         c.ID,
		Status:     c.Status,
		Statistics: toStatisticsResponse(c.Statistics),
		Goals: goalsRequest{
			TargetCalls:        c.Goals.TargetCalls,
			TargetConnects:     c.Goals.TargetConnects,
			TargetAppointments: c.Goals.TargetAppointments,
		},
		QueueSize: size,
	})
}

func (h *HandlerSet) startCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	// The start body is optional; a device here reassigns the campaign agent.
	if len(ctx.Body()) > 0 {
		var req startCampaignRequest
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid request body")
		}
		if req.AgentDevice != "" {
			if err := h.manager.AssignAgent(ctx.Context(), id, req.AgentDevice); err != nil {
				return translateError(err)
			}
		}
	}

	if err := h.manager.Start(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) pauseCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.manager.Pause(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) resumeCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.manager.Resume(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) completeCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	force := ctx.QueryBool("force", false)

	rep, err := h.manager.Complete(ctx.Context(), id, force)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toReportResponse(rep))
}

func (h *HandlerSet) campaignReport(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	rep, err := h.manager.Report(id)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toReportResponse(rep))
}

func (h *HandlerSet) campaignAttempts(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))

	records, err := h.attempts.ListByCampaign(ctx.Context(), id, limit)
	if err != nil {
		return translateError(err)
	}

	resp := make([]attemptResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, attemptResponse{
			ID:             rec.ID,
			QueueItemID:    rec.QueueItemID,
			Phone:          rec.Phone,
			Attempt:        rec.Attempt,
			Outcome:        rec.Outcome,
			DurationMs:     rec.DurationMs,
			Abandoned:      rec.Abandoned,
			ComplianceHold: rec.ComplianceHold,
			Error:          rec.Error,
			OccurredAt:     rec.OccurredAt,
		})
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"attempts": resp})
}

func toCreateInput(req createCampaignRequest) (campaign.CreateInput, error) {
	input := campaign.CreateInput{
		Name:    req.Name,
		AgentID: req.AgentID,
		Mode:    domain.DialMode(req.Mode),
		Script:  req.Script,
	}

	input.Contacts = make([]domain.Contact, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		priority, ok := domain.ParseContactPriority(c.Priority)
		if c.Priority != "" && !ok {
			return campaign.CreateInput{}, fmt.Errorf("%w: invalid priority %q", apperrors.ErrValidation, c.Priority)
		}
		input.Contacts = append(input.Contacts, domain.Contact{
			ID:              uuid.New(),
			Name:            c.Name,
			Phone:           c.Phone,
			Priority:        priority,
			LeadScore:       c.LeadScore,
			DoNotCall:       c.DoNotCall,
			LastContactedAt: c.LastContactedAt,
		})
	}

	if req.Filter != nil {
		if req.Filter.Priority != "" {
			priority, ok := domain.ParseContactPriority(req.Filter.Priority)
			if !ok {
				return campaign.CreateInput{}, fmt.Errorf("%w: invalid filter priority %q", apperrors.ErrValidation, req.Filter.Priority)
			}
			input.Filter.Priority = &priority
		}
		if req.Filter.MaxRecency != "" {
			d, err := time.ParseDuration(req.Filter.MaxRecency)
			if err != nil {
				return campaign.CreateInput{}, fmt.Errorf("%w: invalid max_recency", apperrors.ErrValidation)
			}
			input.Filter.MaxRecency = d
		}
	}

	if req.Schedule != nil {
		weekdays := make([]time.Weekday, 0, len(req.Schedule.Weekdays))
		for _, d := range req.Schedule.Weekdays {
			if d < 0 || d > 6 {
				return campaign.CreateInput{}, fmt.Errorf("%w: invalid weekday %d", apperrors.ErrValidation, d)
			}
			weekdays = append(weekdays, time.Weekday(d))
		}
		input.Schedule = domain.ScheduleWindow{
			StartHour: req.Schedule.StartHour,
			EndHour:   req.Schedule.EndHour,
			TimeZone:  req.Schedule.TimeZone,
			Weekdays:  weekdays,
		}
	}

	if req.Goals != nil {
		input.Goals = domain.Goals{
			TargetCalls:        req.Goals.TargetCalls,
			TargetConnects:     req.Goals.TargetConnects,
			TargetAppointments: req.Goals.TargetAppointments,
		}
	}

	if req.RetryPolicy != nil {
		input.RetryPolicy.MaxRetries = req.RetryPolicy.MaxRetries
		if req.RetryPolicy.RetryDelay != "" {
			d, err := time.ParseDuration(req.RetryPolicy.RetryDelay)
			if err != nil {
				return campaign.CreateInput{}, fmt.Errorf("%w: invalid retry_delay", apperrors.ErrValidation)
			}
			input.RetryPolicy.RetryDelay = d
		}
	}

	return input, nil
}

func toCampaignResponse(c domain.Campaign) campaignResponse {
	return campaignResponse{
		ID:          c.ID,
		Name:        c.Name,
		AgentID:     c.AgentID,
		Mode:        c.Mode,
		Status:      c.Status,
		Contacts:    len(c.Contacts),
		Statistics:  toStatisticsResponse(c.Statistics),
		CreatedAt:   c.CreatedAt,
		StartedAt:   c.StartedAt,
		PausedAt:    c.PausedAt,
		CompletedAt: c.CompletedAt,
	}
}

func toStatisticsResponse(s domain.Statistics) statisticsResponse {
	return statisticsResponse{
		TotalDialed:     s.TotalDialed,
		Connected:       s.Connected,
		Voicemails:      s.Voicemails,
		Callbacks:       s.Callbacks,
		Appointments:    s.Appointments,
		AbandonedCalls:  s.AbandonedCalls,
		ComplianceHolds: s.ComplianceHolds,
		AvgCallDuration: s.AvgCallDuration.String(),
		ConversionRate:  s.ConversionRate,
	}
}

func toReportResponse(rep *domain.CampaignReport) reportResponse {
	return reportResponse{
		CampaignID:      rep.CampaignID,
		CampaignName:    rep.CampaignName,
		Duration:        rep.Duration.String(),
		TotalDialed:     rep.TotalDialed,
		Connected:       rep.Connected,
		ConnectRate:     rep.ConnectRate,
		AvgCallDuration: rep.AvgCallDuration.String(),
		Voicemails:      rep.Voicemails,
		Callbacks:       rep.Callbacks,
		Appointments:    rep.Appointments,
		AbandonedCalls:  rep.AbandonedCalls,
		ComplianceHolds: rep.ComplianceHolds,
		EstimatedCost:   rep.EstimatedCost,
		Recommendations: rep.Recommendations,
		GeneratedAt:     rep.GeneratedAt,
	}
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
