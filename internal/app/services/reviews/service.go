package reviews

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/patisserie-labs/storefront/internal/app/domain/review"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// MaxCommentLength bounds review text, counted in characters.
const MaxCommentLength = 2000

// Service handles product reviews and their moderation.
type Service struct {
	store    storage.ReviewStore
	products storage.ProductStore
	orders   storage.OrderStore
	users    storage.UserStore
	log      *logger.Logger
}

func New(store storage.ReviewStore, products storage.ProductStore, orders storage.OrderStore, users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reviews")
	}
	return &Service{store: store, products: products, orders: orders, users: users, log: log}
}

// Submit records a pending review. A user may review a product once.
func (s *Service) Submit(ctx context.Context, userID, productID string, rating int, comment string) (review.Review, error) {
	if rating < 1 || rating > 5 {
		return review.Review{}, svcerrors.Validation("rating", "rating must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return review.Review{}, svcerrors.Validation("comment", fmt.Sprintf("comment must be at most %d characters", MaxCommentLength))
	}

	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return review.Review{}, storage.ServiceError(err, "product", productID)
	}
	if !p.Active {
		return review.Review{}, svcerrors.NotFound("product", productID)
	}

	verified, err := s.orders.HasDeliveredProduct(ctx, userID, productID)
	if err != nil {
		return review.Review{}, err
	}

	var name string
	if s.users != nil {
		if u, err := s.users.GetUser(ctx, userID); err == nil {
			name = u.Name
		}
	}

	created, err := s.store.CreateReview(ctx, review.Review{
		ProductID:        productID,
		UserID:           userID,
		UserName:         name,
		Rating:           rating,
		Comment:          comment,
		Status:           review.StatusPending,
		VerifiedPurchase: verified,
	})
	if err != nil {
		if storage.IsConflict(err) {
			return review.Review{}, svcerrors.Conflict("you have already reviewed this product")
		}
		return review.Review{}, err
	}
	s.log.WithContext(ctx).
		WithField("review_id", created.ID).
		WithField("product_id", productID).
		WithField("verified", verified).
		Info("review submitted")
	return created, nil
}

// ListApproved returns the reviews shoppers can see for a product.
func (s *Service) ListApproved(ctx context.Context, productID string) ([]review.Review, error) {
	return s.store.ListReviews(ctx, review.ListFilter{ProductID: productID, Status: review.StatusApproved})
}

// List returns reviews for moderation. An empty status matches all.
func (s *Service) List(ctx context.Context, status string) ([]review.Review, error) {
	if status != "" && !validStatus(status) {
		return nil, svcerrors.Validation("status", fmt.Sprintf("unknown status %q", status))
	}
	return s.store.ListReviews(ctx, review.ListFilter{Status: status})
}

// Moderate approves or rejects a review and refreshes the product rating.
func (s *Service) Moderate(ctx context.Context, id, status string) (review.Review, error) {
	if status != review.StatusApproved && status != review.StatusRejected {
		return review.Review{}, svcerrors.Validation("status", "status must be approved or rejected")
	}
	r, err := s.store.GetReview(ctx, id)
	if err != nil {
		return review.Review{}, storage.ServiceError(err, "review", id)
	}
	r.Status = status
	updated, err := s.store.UpdateReview(ctx, r)
	if err != nil {
		return review.Review{}, storage.ServiceError(err, "review", id)
	}
	if err := s.refreshRating(ctx, r.ProductID); err != nil {
		return review.Review{}, err
	}
	s.log.WithContext(ctx).WithField("review_id", id).WithField("status", status).Info("review moderated")
	return updated, nil
}

// Delete removes a review and refreshes the product rating.
func (s *Service) Delete(ctx context.Context, id string) error {
	r, err := s.store.GetReview(ctx, id)
	if err != nil {
		return storage.ServiceError(err, "review", id)
	}
	if err := s.store.DeleteReview(ctx, id); err != nil {
		return storage.ServiceError(err, "review", id)
	}
	s.log.WithContext(ctx).WithField("review_id", id).Info("review deleted")
	return s.refreshRating(ctx, r.ProductID)
}

// refreshRating recomputes the average of approved reviews, rounded to one decimal.
func (s *Service) refreshRating(ctx context.Context, productID string) error {
	approved, err := s.store.ListReviews(ctx, review.ListFilter{ProductID: productID, Status: review.StatusApproved})
	if err != nil {
		return err
	}
	var avg float64
	if len(approved) > 0 {
		sum := 0
		for _, r := range approved {
			sum += r.Rating
		}
		avg = math.Round(float64(sum)/float64(len(approved))*10) / 10
	}
	err = s.products.SetProductRating(ctx, productID, avg, len(approved))
	if storage.IsNotFound(err) {
		return nil
	}
	return err
}

func validStatus(status string) bool {
	switch status {
	case review.StatusPending, review.StatusApproved, review.StatusRejected:
		return true
	}
	return false
}
