package memstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Users and profiles
// =============================================================================

func (c *conn) CreateUser(ctx context.Context, arg repository.CreateUserParams) (repository.User, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	if _, ok := c.st.users[arg.ID]; ok {
		return repository.User{}, uniqueViolation("users_pkey")
	}
	for _, u := range c.st.users {
		if u.Email == arg.Email {
			return repository.User{}, uniqueViolation("users_email_key")
		}
	}

	u := repository.User{
		ID:        arg.ID,
		Email:     arg.Email,
		Name:      arg.Name,
		IsActive:  true,
		CreatedAt: c.st.now(),
	}
	saveRow(c, c.st.users, u.ID)
	c.st.users[u.ID] = u
	return u, nil
}

func (c *conn) GetUser(ctx context.Context, id uuid.UUID) (repository.User, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	u, ok := c.st.users[id]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (c *conn) SetUserActive(ctx context.Context, arg repository.SetUserActiveParams) error {
	release, err := c.lockRow(ctx, rowKey("users", arg.ID))
	if err != nil {
		return err
	}
	defer release()

	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	u, ok := c.st.users[arg.ID]
	if !ok {
		return nil
	}
	saveRow(c, c.st.users, arg.ID)
	u.IsActive = arg.IsActive
	c.st.users[arg.ID] = u
	return nil
}

func (c *conn) CreateProfile(ctx context.Context, userID uuid.UUID) (repository.Profile, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	if _, ok := c.st.profiles[userID]; ok {
		return repository.Profile{}, uniqueViolation("profiles_pkey")
	}
	p := repository.Profile{
		UserID:    userID,
		UpdatedAt: c.st.now(),
	}
	saveRow(c, c.st.profiles, userID)
	c.st.profiles[userID] = p
	return p, nil
}

func (c *conn) GetProfile(ctx context.Context, userID uuid.UUID) (repository.Profile, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	p, ok := c.st.profiles[userID]
	if !ok {
		return repository.Profile{}, sql.ErrNoRows
	}
	return p, nil
}

func (c *conn) GetProfileForUpdate(ctx context.Context, userID uuid.UUID) (repository.Profile, error) {
	release, err := c.lockRow(ctx, rowKey("profiles", userID))
	if err != nil {
		return repository.Profile{}, err
	}
	defer release()
	return c.GetProfile(ctx, userID)
}

func (c *conn) UpdateProfileDisabled(ctx context.Context, arg repository.UpdateProfileDisabledParams) error {
	release, err := c.lockRow(ctx, rowKey("profiles", arg.UserID))
	if err != nil {
		return err
	}
	defer release()

	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	p, ok := c.st.profiles[arg.UserID]
	if !ok {
		return nil
	}
	saveRow(c, c.st.profiles, arg.UserID)
	p.IsDisabled = arg.IsDisabled
	p.DisabledReason = arg.DisabledReason
	p.DisabledAt = arg.DisabledAt
	p.UpdatedAt = c.st.now()
	c.st.profiles[arg.UserID] = p
	return nil
}

// =============================================================================
// Subscriptions
// =============================================================================

func (c *conn) InitSubscription(ctx context.Context, arg repository.InitSubscriptionParams) error {
	release, err := c.lockRow(ctx, rowKey("subscriptions", arg.UserID))
	if err != nil {
		return err
	}
	defer release()

	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	if _, ok := c.st.subscriptions[arg.UserID]; ok {
		return nil
	}
	saveRow(c, c.st.subscriptions, arg.UserID)
	c.st.subscriptions[arg.UserID] = repository.Subscription{
		UserID:    arg.UserID,
		PlanTier:  arg.PlanTier,
		Status:    arg.Status,
		StartedAt: arg.StartedAt,
		UpdatedAt: c.st.now(),
	}
	return nil
}

func (c *conn) GetSubscription(ctx context.Context, userID uuid.UUID) (repository.Subscription, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	s, ok := c.st.subscriptions[userID]
	if !ok {
		return repository.Subscription{}, sql.ErrNoRows
	}
	return s, nil
}

func (c *conn) GetSubscriptionForUpdate(ctx context.Context, userID uuid.UUID) (repository.Subscription, error) {
	release, err := c.lockRow(ctx, rowKey("subscriptions", userID))
	if err != nil {
		return repository.Subscription{}, err
	}
	defer release()
	return c.GetSubscription(ctx, userID)
}

// updateSubscription locks the row and applies fn to it. It reports whether
// the row existed.
func (c *conn) updateSubscription(ctx context.Context, userID uuid.UUID, fn func(*repository.Subscription) error) (repository.Subscription, bool, error) {
	release, err := c.lockRow(ctx, rowKey("subscriptions", userID))
	if err != nil {
		return repository.Subscription{}, false, err
	}
	defer release()

	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	s, ok := c.st.subscriptions[userID]
	if !ok {
		return repository.Subscription{}, false, nil
	}
	if err := fn(&s); err != nil {
		return repository.Subscription{}, true, err
	}
	s.UpdatedAt = c.st.now()
	saveRow(c, c.st.subscriptions, userID)
	c.st.subscriptions[userID] = s
	return s, true, nil
}

func (c *conn) increment(ctx context.Context, userID uuid.UUID, field func(*repository.Subscription) *int32) (int64, error) {
	_, ok, err := c.updateSubscription(ctx, userID, func(s *repository.Subscription) error {
		*field(s)++
		return nil
	})
	if err != nil || !ok {
		return 0, err
	}
	return 1, nil
}

func (c *conn) IncrementConnectionsUsed(ctx context.Context, userID uuid.UUID) (int64, error) {
	return c.increment(ctx, userID, func(s *repository.Subscription) *int32 { return &s.ConnectionsUsed })
}

func (c *conn) IncrementChatUsersCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return c.increment(ctx, userID, func(s *repository.Subscription) *int32 { return &s.ChatUsersCount })
}

func (c *conn) IncrementSessionsUsed(ctx context.Context, userID uuid.UUID) (int64, error) {
	return c.increment(ctx, userID, func(s *repository.Subscription) *int32 { return &s.SessionsUsed })
}

func (c *conn) UpdateUsageCounters(ctx context.Context, arg repository.UpdateUsageCountersParams) error {
	if arg.ConnectionsUsed < 0 || arg.ChatUsersCount < 0 || arg.SessionsUsed < 0 {
		return checkViolation("subscriptions_counters_check")
	}
	_, _, err := c.updateSubscription(ctx, arg.UserID, func(s *repository.Subscription) error {
		s.ConnectionsUsed = arg.ConnectionsUsed
		s.ChatUsersCount = arg.ChatUsersCount
		s.SessionsUsed = arg.SessionsUsed
		return nil
	})
	return err
}

func (c *conn) CorrectUsageCounters(ctx context.Context, arg repository.CorrectUsageCountersParams) error {
	for _, v := range []sql.NullInt32{arg.ConnectionsUsed, arg.ChatUsersCount, arg.SessionsUsed} {
		if v.Valid && v.Int32 < 0 {
			return checkViolation("subscriptions_counters_check")
		}
	}
	_, _, err := c.updateSubscription(ctx, arg.UserID, func(s *repository.Subscription) error {
		if arg.ConnectionsUsed.Valid {
			s.ConnectionsUsed = arg.ConnectionsUsed.Int32
		}
		if arg.ChatUsersCount.Valid {
			s.ChatUsersCount = arg.ChatUsersCount.Int32
		}
		if arg.SessionsUsed.Valid {
			s.SessionsUsed = arg.SessionsUsed.Int32
		}
		return nil
	})
	return err
}

func (c *conn) ResetUsageWindow(ctx context.Context, arg repository.ResetUsageWindowParams) error {
	_, _, err := c.updateSubscription(ctx, arg.UserID, func(s *repository.Subscription) error {
		s.ConnectionsUsed = 0
		s.SessionsUsed = 0
		s.LastResetAt = arg.LastResetAt
		return nil
	})
	return err
}

func (c *conn) UpdateSubscriptionPlan(ctx context.Context, arg repository.UpdateSubscriptionPlanParams) (repository.Subscription, error) {
	s, ok, err := c.updateSubscription(ctx, arg.UserID, func(s *repository.Subscription) error {
		s.PlanTier = arg.PlanTier
		s.Status = arg.Status
		return nil
	})
	if err != nil {
		return repository.Subscription{}, err
	}
	if !ok {
		return repository.Subscription{}, sql.ErrNoRows
	}
	return s, nil
}

func (c *conn) ListSubscriptionUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(c.st.subscriptions))
	for id := range c.st.subscriptions {
		ids = append(ids, id)
	}
	sortUUIDs(ids)
	return ids, nil
}

func (c *conn) ListSubscriptionsByUserIDs(ctx context.Context, userIds []uuid.UUID) ([]repository.Subscription, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	seen := make(map[uuid.UUID]bool, len(userIds))
	var ids []uuid.UUID
	for _, id := range userIds {
		if _, ok := c.st.subscriptions[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sortUUIDs(ids)

	items := make([]repository.Subscription, 0, len(ids))
	for _, id := range ids {
		items = append(items, c.st.subscriptions[id])
	}
	return items, nil
}

func (c *conn) ListSubscriptionsDueForReset(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	var ids []uuid.UUID
	for id, s := range c.st.subscriptions {
		if s.Status != "active" {
			continue
		}
		start := s.StartedAt
		if s.LastResetAt.Valid {
			start = s.LastResetAt.Time
		}
		if !start.After(cutoff) {
			ids = append(ids, id)
		}
	}
	sortUUIDs(ids)
	return ids, nil
}

// =============================================================================
// Connections
// =============================================================================

func samePair(row repository.Connection, a, b uuid.UUID) bool {
	return (row.FromUserID == a && row.ToUserID == b) || (row.FromUserID == b && row.ToUserID == a)
}

func (c *conn) CreateConnection(ctx context.Context, arg repository.CreateConnectionParams) (repository.Connection, error) {
	if arg.FromUserID == arg.ToUserID {
		return repository.Connection{}, checkViolation("connections_distinct_users")
	}

	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	if _, ok := c.st.connections[arg.ID]; ok {
		return repository.Connection{}, uniqueViolation("connections_pkey")
	}
	if err := c.st.requireUsers("connections", arg.FromUserID, arg.ToUserID); err != nil {
		return repository.Connection{}, err
	}
	if arg.Status != "rejected" {
		for _, existing := range c.st.connections {
			if existing.Status != "rejected" && samePair(existing, arg.FromUserID, arg.ToUserID) {
				return repository.Connection{}, uniqueViolation(repository.ConstraintLivePair)
			}
		}
	}

	row := repository.Connection{
		ID:         arg.ID,
		FromUserID: arg.FromUserID,
		ToUserID:   arg.ToUserID,
		Status:     arg.Status,
		CreatedAt:  arg.CreatedAt,
	}
	saveRow(c, c.st.connections, row.ID)
	c.st.connections[row.ID] = row
	return row, nil
}

func (c *conn) GetConnectionForUpdate(ctx context.Context, id uuid.UUID) (repository.Connection, error) {
	release, err := c.lockRow(ctx, rowKey("connections", id))
	if err != nil {
		return repository.Connection{}, err
	}
	defer release()

	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	row, ok := c.st.connections[id]
	if !ok {
		return repository.Connection{}, sql.ErrNoRows
	}
	return row, nil
}

func (c *conn) GetLiveConnectionBetween(ctx context.Context, arg repository.GetLiveConnectionBetweenParams) (repository.Connection, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	for _, row := range c.st.connections {
		if row.Status != "rejected" && samePair(row, arg.UserA, arg.UserB) {
			return row, nil
		}
	}
	return repository.Connection{}, sql.ErrNoRows
}

func (c *conn) UpdateConnectionStatus(ctx context.Context, arg repository.UpdateConnectionStatusParams) (repository.Connection, error) {
	release, err := c.lockRow(ctx, rowKey("connections", arg.ID))
	if err != nil {
		return repository.Connection{}, err
	}
	defer release()

	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	row, ok := c.st.connections[arg.ID]
	if !ok {
		return repository.Connection{}, sql.ErrNoRows
	}
	saveRow(c, c.st.connections, arg.ID)
	row.Status = arg.Status
	row.RespondedAt = arg.RespondedAt
	c.st.connections[arg.ID] = row
	return row, nil
}

func (c *conn) DeleteConnection(ctx context.Context, id uuid.UUID) (int64, error) {
	release, err := c.lockRow(ctx, rowKey("connections", id))
	if err != nil {
		return 0, err
	}
	defer release()

	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	if _, ok := c.st.connections[id]; !ok {
		return 0, nil
	}
	saveRow(c, c.st.connections, id)
	delete(c.st.connections, id)
	return 1, nil
}

func (c *conn) ListConnectionsForUser(ctx context.Context, userID uuid.UUID) ([]repository.Connection, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	var items []repository.Connection
	for _, row := range c.st.connections {
		if row.FromUserID == userID || row.ToUserID == userID {
			items = append(items, row)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (c *conn) CountConnectionsSentSince(ctx context.Context, arg repository.CountConnectionsSentSinceParams) (int64, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	var n int64
	for _, row := range c.st.connections {
		if row.FromUserID == arg.FromUserID && !row.CreatedAt.Before(arg.Since) {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Messages
// =============================================================================

func (c *conn) CreateMessage(ctx context.Context, arg repository.CreateMessageParams) (repository.Message, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	for _, m := range c.st.messages {
		if m.ID == arg.ID {
			return repository.Message{}, uniqueViolation("messages_pkey")
		}
	}
	if err := c.st.requireUsers("messages", arg.SenderID, arg.ReceiverID); err != nil {
		return repository.Message{}, err
	}

	m := repository.Message{
		ID:         arg.ID,
		SenderID:   arg.SenderID,
		ReceiverID: arg.ReceiverID,
		Body:       arg.Body,
		CreatedAt:  arg.CreatedAt,
	}
	c.st.messages = append(c.st.messages, m)
	c.record(func() {
		c.st.messages = removeFirst(c.st.messages, func(x repository.Message) bool { return x.ID == m.ID })
	})
	return m, nil
}

func (c *conn) HasExchangedMessages(ctx context.Context, arg repository.HasExchangedMessagesParams) (bool, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	for _, m := range c.st.messages {
		if (m.SenderID == arg.UserID && m.ReceiverID == arg.PartnerID) ||
			(m.SenderID == arg.PartnerID && m.ReceiverID == arg.UserID) {
			return true, nil
		}
	}
	return false, nil
}

func (c *conn) CountDistinctPartners(ctx context.Context, userID uuid.UUID) (int64, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	partners := make(map[uuid.UUID]struct{})
	for _, m := range c.st.messages {
		switch userID {
		case m.SenderID:
			partners[m.ReceiverID] = struct{}{}
		case m.ReceiverID:
			partners[m.SenderID] = struct{}{}
		}
	}
	return int64(len(partners)), nil
}

// =============================================================================
// Call sessions
// =============================================================================

func (c *conn) CreateCallSession(ctx context.Context, arg repository.CreateCallSessionParams) (repository.CallSession, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	if _, ok := c.st.sessions[arg.ID]; ok {
		return repository.CallSession{}, uniqueViolation("call_sessions_pkey")
	}
	if err := c.st.requireUsers("call_sessions", arg.InitiatorID, arg.ParticipantID); err != nil {
		return repository.CallSession{}, err
	}
	s := repository.CallSession{
		ID:            arg.ID,
		InitiatorID:   arg.InitiatorID,
		ParticipantID: arg.ParticipantID,
		Status:        arg.Status,
		CreatedAt:     arg.CreatedAt,
	}
	saveRow(c, c.st.sessions, s.ID)
	c.st.sessions[s.ID] = s
	return s, nil
}

func (c *conn) GetCallSession(ctx context.Context, id uuid.UUID) (repository.CallSession, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	s, ok := c.st.sessions[id]
	if !ok {
		return repository.CallSession{}, sql.ErrNoRows
	}
	return s, nil
}

func (c *conn) SetCallSessionMeetingURL(ctx context.Context, arg repository.SetCallSessionMeetingURLParams) error {
	release, err := c.lockRow(ctx, rowKey("call_sessions", arg.ID))
	if err != nil {
		return err
	}
	defer release()

	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	s, ok := c.st.sessions[arg.ID]
	if !ok {
		return nil
	}
	saveRow(c, c.st.sessions, arg.ID)
	s.MeetingUrl = arg.MeetingUrl
	c.st.sessions[arg.ID] = s
	return nil
}

func (c *conn) CountCallSessionsSince(ctx context.Context, arg repository.CountCallSessionsSinceParams) (int64, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	var n int64
	for _, s := range c.st.sessions {
		if s.InitiatorID == arg.InitiatorID && !s.CreatedAt.Before(arg.Since) {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Reports and usage corrections
// =============================================================================

func (c *conn) CreateReport(ctx context.Context, arg repository.CreateReportParams) (repository.Report, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	if _, ok := c.st.reports[arg.ID]; ok {
		return repository.Report{}, uniqueViolation("reports_pkey")
	}
	if err := c.st.requireUsers("reports", arg.ReporterID, arg.ReportedID); err != nil {
		return repository.Report{}, err
	}
	r := repository.Report{
		ID:         arg.ID,
		ReporterID: arg.ReporterID,
		ReportedID: arg.ReportedID,
		Reason:     arg.Reason,
		Status:     arg.Status,
		CreatedAt:  arg.CreatedAt,
	}
	saveRow(c, c.st.reports, r.ID)
	c.st.reports[r.ID] = r
	return r, nil
}

func (c *conn) DismissReport(ctx context.Context, id uuid.UUID) (repository.Report, error) {
	release, err := c.lockRow(ctx, rowKey("reports", id))
	if err != nil {
		return repository.Report{}, err
	}
	defer release()

	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	r, ok := c.st.reports[id]
	if !ok || r.Status != "pending" {
		return repository.Report{}, sql.ErrNoRows
	}
	saveRow(c, c.st.reports, id)
	r.Status = "dismissed"
	c.st.reports[id] = r
	return r, nil
}

func (c *conn) CountDistinctPendingReporters(ctx context.Context, reportedID uuid.UUID) (int64, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	reporters := make(map[uuid.UUID]struct{})
	for _, r := range c.st.reports {
		if r.ReportedID == reportedID && r.Status == "pending" {
			reporters[r.ReporterID] = struct{}{}
		}
	}
	return int64(len(reporters)), nil
}

func (c *conn) ListReportThresholdCandidates(ctx context.Context) ([]uuid.UUID, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	set := make(map[uuid.UUID]struct{})
	for _, r := range c.st.reports {
		if r.Status == "pending" {
			set[r.ReportedID] = struct{}{}
		}
	}
	for id, p := range c.st.profiles {
		if p.IsDisabled && p.DisabledReason.Valid && p.DisabledReason.String == "auto_report_threshold" {
			set[id] = struct{}{}
		}
	}

	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sortUUIDs(ids)
	return ids, nil
}

func (c *conn) CreateUsageCorrection(ctx context.Context, arg repository.CreateUsageCorrectionParams) (repository.UsageCorrection, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	uc := repository.UsageCorrection{
		ID:        arg.ID,
		UserID:    arg.UserID,
		Kind:      arg.Kind,
		Details:   arg.Details,
		CreatedAt: arg.CreatedAt,
	}
	c.st.corrections = append(c.st.corrections, uc)
	c.record(func() {
		c.st.corrections = removeFirst(c.st.corrections, func(x repository.UsageCorrection) bool { return x.ID == uc.ID })
	})
	return uc, nil
}

func (c *conn) ListUsageCorrections(ctx context.Context, arg repository.ListUsageCorrectionsParams) ([]repository.UsageCorrection, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	var items []repository.UsageCorrection
	for _, uc := range c.st.corrections {
		if uc.UserID == arg.UserID {
			items = append(items, uc)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if arg.Limit >= 0 && len(items) > int(arg.Limit) {
		items = items[:arg.Limit]
	}
	return items, nil
}

// =============================================================================
// Jobs
// =============================================================================

func (c *conn) EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	payload := arg.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	j := repository.Job{
		ID:          uuid.New(),
		JobType:     arg.JobType,
		Payload:     payload,
		Status:      "pending",
		Priority:    arg.Priority,
		MaxAttempts: arg.MaxAttempts,
		ScheduledAt: arg.ScheduledAt,
		CreatedAt:   c.st.now(),
	}
	saveRow(c, c.st.jobs, j.ID)
	c.st.jobs[j.ID] = j
	return j, nil
}

func (c *conn) DequeueJob(ctx context.Context) (repository.Job, error) {
	c.st.mu.Lock()
	now := c.st.now()
	var ready []repository.Job
	for _, j := range c.st.jobs {
		if j.Status == "pending" && !j.ScheduledAt.After(now) && j.Attempts < j.MaxAttempts {
			ready = append(ready, j)
		}
	}
	c.st.mu.Unlock()

	sort.Slice(ready, func(i, k int) bool {
		if ready[i].Priority != ready[k].Priority {
			return ready[i].Priority > ready[k].Priority
		}
		return ready[i].ScheduledAt.Before(ready[k].ScheduledAt)
	})
	for _, j := range ready {
		if c.tryLockRow(rowKey("jobs", j.ID)) {
			return j, nil
		}
	}
	return repository.Job{}, sql.ErrNoRows
}

func (c *conn) updateJob(ctx context.Context, id uuid.UUID, fn func(*repository.Job)) error {
	release, err := c.lockRow(ctx, rowKey("jobs", id))
	if err != nil {
		return err
	}
	defer release()

	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	j, ok := c.st.jobs[id]
	if !ok {
		return nil
	}
	saveRow(c, c.st.jobs, id)
	fn(&j)
	c.st.jobs[id] = j
	return nil
}

func (c *conn) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	return c.updateJob(ctx, id, func(j *repository.Job) {
		j.Status = "running"
		j.StartedAt = nullTime(c.st.now())
		j.Attempts++
	})
}

func (c *conn) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	return c.updateJob(ctx, id, func(j *repository.Job) {
		j.Status = "completed"
		j.CompletedAt = nullTime(c.st.now())
		j.ErrorMessage = sql.NullString{}
	})
}

func (c *conn) UpdateJobFailed(ctx context.Context, arg repository.UpdateJobFailedParams) error {
	return c.updateJob(ctx, arg.ID, func(j *repository.Job) {
		if arg.Permanent || j.Attempts >= j.MaxAttempts {
			j.Status = "failed"
		} else {
			j.Status = "pending"
		}
		j.ErrorMessage = arg.ErrorMessage
		backoff := time.Duration(j.Attempts*j.Attempts) * 30 * time.Second
		j.ScheduledAt = c.st.now().Add(backoff)
	})
}

func (c *conn) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	cutoff := c.st.now().Add(-time.Duration(thresholdSeconds * float64(time.Second)))
	var n int64
	for id, j := range c.st.jobs {
		if j.Status == "running" && j.StartedAt.Valid && j.StartedAt.Time.Before(cutoff) {
			saveRow(c, c.st.jobs, id)
			j.Status = "pending"
			c.st.jobs[id] = j
			n++
		}
	}
	return n, nil
}

// Jobs returns a snapshot of every queued job, oldest first.
func (s *Store) Jobs() []repository.Job {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	jobs := make([]repository.Job, 0, len(s.st.jobs))
	for _, j := range s.st.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
	return jobs
}
