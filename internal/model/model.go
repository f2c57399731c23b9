package model

import (
	"context"
	"time"
)

// UserRole represents a console user's access level.
type UserRole string

const (
	// UserRoleProctor can schedule reviews and run grading sessions.
	UserRoleProctor UserRole = "proctor"
	// UserRoleAdmin can additionally manage users and system questions.
	UserRoleAdmin UserRole = "admin"
)

// User represents a console user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// ReviewStatus represents the lifecycle state of a scheduled review.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewOngoing   ReviewStatus = "ongoing"
	ReviewCompleted ReviewStatus = "completed"
	ReviewFailed    ReviewStatus = "failed"
)

// Judgement is the proctor's verdict on a single question.
type Judgement string

const (
	JudgementAnswered        Judgement = "answered"
	JudgementNeedImprovement Judgement = "need-improvement"
	JudgementWrong           Judgement = "wrong"
	JudgementSkip            Judgement = "skip"
)

// Valid reports whether j is one of the four known judgements.
func (j Judgement) Valid() bool {
	switch j {
	case JudgementAnswered, JudgementNeedImprovement, JudgementWrong, JudgementSkip:
		return true
	}
	return false
}

// Points returns the theoretical score contribution for a judgement.
func (j Judgement) Points() int {
	switch j {
	case JudgementAnswered:
		return 10
	case JudgementNeedImprovement:
		return 5
	default:
		return 0
	}
}

// ScoreBreakdown is the persisted score summary of a finished review.
type ScoreBreakdown struct {
	Theoretical    int     `json:"theoretical"`
	MaxTheoretical int     `json:"maxTheoretical"`
	Practical      float64 `json:"practical"`
	Total          float64 `json:"total"`
}

// Review identifies one scheduled assessment.
type Review struct {
	ID          int64           `json:"id"`
	StudentName string          `json:"studentName"`
	Batch       string          `json:"batch"`
	ModuleID    int             `json:"moduleId"`
	Status      ReviewStatus    `json:"status"`
	ScheduledAt time.Time       `json:"scheduledAt"`
	Scores      *ScoreBreakdown `json:"scores,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	// SessionData is the opaque audit blob written once on finalization.
	// It is read back only for display, never computed upon.
	SessionData map[string]any `json:"sessionData,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Question belongs to exactly one module. A question with no owner is a
// shared "system" question visible to all graders.
type Question struct {
	ID       int64  `json:"id"`
	ModuleID int    `json:"moduleId"`
	Text     string `json:"text"`
	Answer   string `json:"answer,omitempty"`
	OwnerID  *int64 `json:"ownerId,omitempty"`
}

// System reports whether the question is ownerless (shared).
func (q Question) System() bool { return q.OwnerID == nil }

// EditableBy reports whether u may mutate the question: owned questions by
// their owner, system questions by admins only.
func (q Question) EditableBy(u *User) bool {
	if u == nil {
		return false
	}
	if q.OwnerID == nil {
		return u.Role == UserRoleAdmin
	}
	return *q.OwnerID == u.ID || u.Role == UserRoleAdmin
}

// ReviewPatch carries an administrative edit of a scheduled review.
// Nil fields are left unchanged.
type ReviewPatch struct {
	StudentName *string
	Batch       *string
	ModuleID    *int
	ScheduledAt *time.Time
}

// QuestionPatch carries an edit of a question. Nil fields are left unchanged.
type QuestionPatch struct {
	Text     *string
	ModuleID *int
	Answer   *string
}

// FinalReport is the terminal verdict committed by the report finalizer.
type FinalReport struct {
	Status      ReviewStatus
	Scores      ScoreBreakdown
	Notes       string
	SessionData map[string]any
}
