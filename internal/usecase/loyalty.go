package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
	"github.com/jbleroy75/boisson-api/internal/core/port"
	"github.com/jbleroy75/boisson-api/internal/repository"
)

const (
	defaultRedemptionLimit = 10
	maxRedemptionLimit     = 50

	// memberCreateRetries bounds re-fetch attempts after losing the
	// fetch-or-create race.
	memberCreateRetries = 2
)

var (
	// ErrLoyaltyUnavailable indicates the service is not properly configured.
	ErrLoyaltyUnavailable = errors.New("loyalty service unavailable")
	// ErrInsufficientPoints indicates a redemption asked for more points than the member holds.
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
	// ErrInvalidRedemption indicates a malformed redemption request.
	ErrInvalidRedemption = errors.New("invalid redemption request")
)

// LoyaltyService owns the loyalty member lifecycle: fetch-or-create, tier
// derivation, redemption history, point spending, and order-driven accrual.
type LoyaltyService struct {
	members port.LoyaltyRepository
	users   port.UserRepository
	events  port.EventPublisher
	logger  *zap.Logger
	now     func() time.Time
}

// MemberProfile bundles a member record with its derived tier and the static
// tier metadata.
type MemberProfile struct {
	Member   domain.LoyaltyMember
	Name     string
	Tier     domain.Tier
	TierInfo domain.TierInfo
}

// RedeemInput captures a point-spending request.
type RedeemInput struct {
	UserID string
	Points int
	Reward string
}

// RedeemResult summarizes the outcome of a redemption.
type RedeemResult struct {
	RedemptionID string
	Points       int
	Balance      int
	Tier         domain.Tier
	RedeemedAt   time.Time
}

// NewLoyaltyService constructs a LoyaltyService.
func NewLoyaltyService(members port.LoyaltyRepository, users port.UserRepository, logger *zap.Logger) *LoyaltyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoyaltyService{
		members: members,
		users:   users,
		logger:  logger,
		now:     time.Now,
	}
}

// WithEventPublisher injects the event bus after construction.
func (s *LoyaltyService) WithEventPublisher(events port.EventPublisher) *LoyaltyService {
	s.events = events
	return s
}

// WithClock allows tests to override the clock used by the service.
func (s *LoyaltyService) WithClock(clock func() time.Time) *LoyaltyService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// GetOrCreateMember returns the loyalty record for the user, creating a zeroed
// one on first access. The tier is recomputed from the stored balance on every
// call and never persisted.
func (s *LoyaltyService) GetOrCreateMember(ctx context.Context, userID string) (*MemberProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if s.members == nil {
		return nil, ErrLoyaltyUnavailable
	}

	member, err := s.fetchOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile := &MemberProfile{
		Member:   *member,
		Tier:     member.Tier(),
		TierInfo: domain.TierInfoFor(member.Tier()),
	}

	if s.users != nil {
		if user, err := s.users.GetByID(ctx, userID); err == nil {
			profile.Name = user.Name
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
	}

	return profile, nil
}

// fetchOrCreate resolves the lookup/insert race by deferring to the primary
// key constraint: a conflicting insert means another request created the row,
// so the lookup is retried and must succeed.
func (s *LoyaltyService) fetchOrCreate(ctx context.Context, userID string) (*domain.LoyaltyMember, error) {
	for attempt := 0; ; attempt++ {
		member, err := s.members.GetMember(ctx, userID)
		if err == nil {
			return member, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup loyalty member: %w", err)
		}

		fresh := domain.LoyaltyMember{
			UserID:   userID,
			JoinedAt: s.now().UTC(),
		}

		err = s.members.CreateMember(ctx, fresh)
		if err == nil {
			return &fresh, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("create loyalty member: %w", err)
		}
		if attempt >= memberCreateRetries {
			return nil, fmt.Errorf("create loyalty member: retries exhausted")
		}
		// Lost the race; the winning row is there on re-fetch.
	}
}

// ListRedemptions returns the most recent point-spending events, newest first.
// There is no pagination token; callers re-query for a fresh snapshot.
func (s *LoyaltyService) ListRedemptions(ctx context.Context, userID string, limit int) ([]domain.Redemption, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if s.members == nil {
		return nil, ErrLoyaltyUnavailable
	}

	if limit <= 0 {
		limit = defaultRedemptionLimit
	}
	if limit > maxRedemptionLimit {
		limit = maxRedemptionLimit
	}

	redemptions, err := s.members.ListRedemptions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}

	return redemptions, nil
}

// Redeem spends points on a reward. The balance check and deduction happen in
// one conditional write, so concurrent redemptions cannot overdraw.
func (s *LoyaltyService) Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if s.members == nil {
		return nil, ErrLoyaltyUnavailable
	}
	if input.Points <= 0 {
		return nil, fmt.Errorf("%w: points must be positive", ErrInvalidRedemption)
	}
	reward := strings.TrimSpace(input.Reward)
	if reward == "" {
		return nil, fmt.Errorf("%w: reward is required", ErrInvalidRedemption)
	}

	redemption := domain.Redemption{
		ID:         uuid.NewString(),
		UserID:     userID,
		Points:     input.Points,
		Reward:     reward,
		RedeemedAt: s.now().UTC(),
	}

	member, err := s.members.SpendPoints(ctx, redemption)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientPoints) {
			return nil, ErrInsufficientPoints
		}
		return nil, fmt.Errorf("spend points: %w", err)
	}

	s.publishPointsRedeemed(ctx, redemption, member)

	return &RedeemResult{
		RedemptionID: redemption.ID,
		Points:       redemption.Points,
		Balance:      member.Points,
		Tier:         member.Tier(),
		RedeemedAt:   redemption.RedeemedAt,
	}, nil
}

// AccrueOrder credits points for a completed order: one point per whole unit
// of currency, rounded down. The member record is created first if the order
// is the user's initial touchpoint with the program.
func (s *LoyaltyService) AccrueOrder(ctx context.Context, event domain.OrderCompletedEvent) (*domain.LoyaltyMember, error) {
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if s.members == nil {
		return nil, ErrLoyaltyUnavailable
	}
	if event.Total < 0 {
		return nil, fmt.Errorf("order total must be non-negative")
	}

	if _, err := s.fetchOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	points := int(math.Floor(event.Total))

	member, err := s.members.AccrueOrder(ctx, userID, points, event.Total)
	if err != nil {
		return nil, fmt.Errorf("accrue order: %w", err)
	}

	s.publishPointsAccrued(ctx, event, points, member)

	return member, nil
}

func (s *LoyaltyService) publishPointsRedeemed(ctx context.Context, redemption domain.Redemption, member *domain.LoyaltyMember) {
	if s.events == nil {
		return
	}

	event := domain.PointsRedeemedEvent{
		EventID:      uuid.NewString(),
		UserID:       redemption.UserID,
		RedemptionID: redemption.ID,
		Points:       redemption.Points,
		Balance:      member.Points,
		Reward:       redemption.Reward,
		RedeemedAt:   redemption.RedeemedAt,
	}

	if err := s.events.PublishPointsRedeemed(ctx, event); err != nil {
		s.logger.Warn("publish points redeemed failed", zap.String("user_id", redemption.UserID), zap.Error(err))
	}
}

func (s *LoyaltyService) publishPointsAccrued(ctx context.Context, order domain.OrderCompletedEvent, points int, member *domain.LoyaltyMember) {
	if s.events == nil {
		return
	}

	event := domain.PointsAccruedEvent{
		EventID:   uuid.NewString(),
		UserID:    member.UserID,
		OrderID:   order.OrderID,
		Points:    points,
		Balance:   member.Points,
		Tier:      member.Tier(),
		AccruedAt: s.now().UTC(),
	}

	if err := s.events.PublishPointsAccrued(ctx, event); err != nil {
		s.logger.Warn("publish points accrued failed", zap.String("user_id", member.UserID), zap.Error(err))
	}
}
