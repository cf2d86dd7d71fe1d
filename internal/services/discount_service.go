package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/repositories"
)

var (
	// ErrDiscountNotFound indicates the code does not exist.
	ErrDiscountNotFound = errors.New("discount: not found")
	// ErrDiscountIneligible indicates the code exists but cannot be applied.
	ErrDiscountIneligible = errors.New("discount: not eligible")
)

// DiscountServiceDeps bundles collaborators for the discount service.
type DiscountServiceDeps struct {
	Preorders repositories.PreorderRepository
	Discounts repositories.DiscountRepository
	Clock     func() time.Time
}

type discountService struct {
	preorders repositories.PreorderRepository
	discounts repositories.DiscountRepository
	clock     func() time.Time
}

// NewDiscountService wires dependencies into a DiscountService implementation.
func NewDiscountService(deps DiscountServiceDeps) (DiscountService, error) {
	if deps.Preorders == nil {
		return nil, errors.New("discount service: preorder repository is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("discount service: discount repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &discountService{
		preorders: deps.Preorders,
		discounts: deps.Discounts,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *discountService) PendingPreorders(ctx context.Context, userID string) ([]domain.Preorder, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrDiscountIneligible)
	}
	preorders, err := s.preorders.ListPendingByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return preorders, nil
}

// FoldPreorders applies each pending preorder against the first matching line.
// A preorder matches a line when product, color, and size agree; preorders
// without a color or size constraint match on product alone. Each preorder is
// consumed once, and each contributes its discount plus the deposit already
// paid.
func (s *discountService) FoldPreorders(preorders []domain.Preorder, lines []PricedLine) PreorderFold {
	var fold PreorderFold
	for _, preorder := range preorders {
		for _, line := range lines {
			if !preorderMatchesLine(preorder, line) {
				continue
			}
			fold.Deduction += preorder.DiscountFor(line.UnitPrice)
			fold.ConsumedIDs = append(fold.ConsumedIDs, preorder.ID)
			break
		}
	}
	return fold
}

func preorderMatchesLine(preorder domain.Preorder, line PricedLine) bool {
	if preorder.ProductID != line.ProductID {
		return false
	}
	if preorder.Color != "" && !strings.EqualFold(preorder.Color, line.Color) {
		return false
	}
	if preorder.Size != "" && !strings.EqualFold(preorder.Size, line.Size) {
		return false
	}
	return true
}

func (s *discountService) EvaluateCode(ctx context.Context, userID, code string, lines []PricedLine, subtotal int64) (CodeEvaluation, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return CodeEvaluation{}, fmt.Errorf("%w: code is required", ErrDiscountIneligible)
	}

	discount, err := s.discounts.FindByCode(ctx, trimmed)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return CodeEvaluation{}, fmt.Errorf("%w: %q", ErrDiscountNotFound, trimmed)
		}
		return CodeEvaluation{}, err
	}

	if err := s.checkEligibility(discount, userID, lines, subtotal); err != nil {
		return CodeEvaluation{}, err
	}

	deduction := computeDeduction(discount, eligibleSubtotal(discount, lines, subtotal))
	if deduction > subtotal {
		deduction = subtotal
	}
	return CodeEvaluation{Discount: discount, Deduction: deduction}, nil
}

func (s *discountService) checkEligibility(discount domain.Discount, userID string, lines []PricedLine, subtotal int64) error {
	now := s.clock()

	if !discount.IsActive {
		return fmt.Errorf("%w: code %s is inactive", ErrDiscountIneligible, discount.Code)
	}
	if discount.Expired(now) {
		return fmt.Errorf("%w: code %s expired on %s", ErrDiscountIneligible, discount.Code, discount.ExpiryDate.Format(time.DateOnly))
	}
	if discount.UsageLimit > 0 && discount.UsedCount >= discount.UsageLimit {
		return fmt.Errorf("%w: code %s usage limit reached", ErrDiscountIneligible, discount.Code)
	}
	if discount.UsedBy(userID) {
		return fmt.Errorf("%w: code %s already redeemed", ErrDiscountIneligible, discount.Code)
	}
	if len(discount.AllowedUsers) > 0 && !containsString(discount.AllowedUsers, userID) {
		return fmt.Errorf("%w: code %s is not available for this account", ErrDiscountIneligible, discount.Code)
	}
	if discount.MinOrderAmount > 0 && subtotal < discount.MinOrderAmount {
		return fmt.Errorf("%w: order total below minimum %d for code %s", ErrDiscountIneligible, discount.MinOrderAmount, discount.Code)
	}

	if len(discount.ProductSlugs) > 0 {
		qty := 0
		for _, line := range lines {
			if containsString(discount.ProductSlugs, line.Slug) {
				qty += line.Quantity
			}
		}
		if qty == 0 {
			return fmt.Errorf("%w: code %s does not apply to any item in the order", ErrDiscountIneligible, discount.Code)
		}
		if discount.MinQuantity > 0 && qty < discount.MinQuantity {
			return fmt.Errorf("%w: code %s requires at least %d eligible items", ErrDiscountIneligible, discount.Code, discount.MinQuantity)
		}
	} else if discount.MinQuantity > 0 {
		qty := 0
		for _, line := range lines {
			qty += line.Quantity
		}
		if qty < discount.MinQuantity {
			return fmt.Errorf("%w: code %s requires at least %d items", ErrDiscountIneligible, discount.Code, discount.MinQuantity)
		}
	}
	return nil
}

// eligibleSubtotal scopes the deduction base: slug-restricted codes discount
// only the matching lines, everything else discounts the whole subtotal.
func eligibleSubtotal(discount domain.Discount, lines []PricedLine, subtotal int64) int64 {
	if len(discount.ProductSlugs) == 0 {
		return subtotal
	}
	var eligible int64
	for _, line := range lines {
		if containsString(discount.ProductSlugs, line.Slug) {
			eligible += line.UnitPrice * int64(line.Quantity)
		}
	}
	if eligible > subtotal {
		eligible = subtotal
	}
	return eligible
}

func computeDeduction(discount domain.Discount, base int64) int64 {
	switch discount.DiscountType {
	case domain.DiscountPercentage:
		return base * discount.DiscountValue / 100
	case domain.DiscountFixed:
		if discount.DiscountValue > base {
			return base
		}
		return discount.DiscountValue
	default:
		return 0
	}
}

// RedeemCode records the redemption after re-checking the usage guards
// against current data. Run inside the order transaction, the re-read keeps a
// concurrent order from redeeming a one-per-user or exhausted code twice.
func (s *discountService) RedeemCode(ctx context.Context, discountID, userID string) error {
	if strings.TrimSpace(discountID) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: discount and user ids are required", ErrDiscountIneligible)
	}
	discount, err := s.discounts.FindByID(ctx, discountID)
	if err != nil {
		return err
	}
	if discount.UsedBy(userID) {
		return fmt.Errorf("%w: code %s already redeemed", ErrDiscountIneligible, discount.Code)
	}
	if discount.UsageLimit > 0 && discount.UsedCount >= discount.UsageLimit {
		return fmt.Errorf("%w: code %s usage limit reached", ErrDiscountIneligible, discount.Code)
	}
	return s.discounts.RecordRedemption(ctx, discountID, userID)
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
